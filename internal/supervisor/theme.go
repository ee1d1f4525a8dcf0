package supervisor

import "github.com/charmbracelet/lipgloss"

// Theme defines all colors used by the mixer TUI.
// Use DarkTheme() or LightTheme() to get a pre-built theme,
// or construct a custom Theme.
type Theme struct {
	Primary         lipgloss.Color // title, cursor
	Secondary       lipgloss.Color // checked sessions
	Accent          lipgloss.Color // selected device, find prompt
	Error           lipgloss.Color // failed actions
	Warning         lipgloss.Color // locks, muted
	Success         lipgloss.Color // volume bar fill
	Info            lipgloss.Color // event feed
	Text            lipgloss.Color // primary text
	TextMuted       lipgloss.Color // hints, hidden sessions
	BackgroundPanel lipgloss.Color // find dialog background
	BackgroundElem  lipgloss.Color // cursor row background
	Border          lipgloss.Color // separators, empty volume bar
}

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Primary:         lipgloss.Color("#fab283"),
		Secondary:       lipgloss.Color("#5c9cf5"),
		Accent:          lipgloss.Color("#9d7cd8"),
		Error:           lipgloss.Color("#e06c75"),
		Warning:         lipgloss.Color("#f5a742"),
		Success:         lipgloss.Color("#7fd88f"),
		Info:            lipgloss.Color("#56b6c2"),
		Text:            lipgloss.Color("#eeeeee"),
		TextMuted:       lipgloss.Color("#808080"),
		BackgroundPanel: lipgloss.Color("#141414"),
		BackgroundElem:  lipgloss.Color("#1e1e1e"),
		Border:          lipgloss.Color("#484848"),
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:         lipgloss.Color("#b35c00"),
		Secondary:       lipgloss.Color("#0550ae"),
		Accent:          lipgloss.Color("#6639ba"),
		Error:           lipgloss.Color("#cf222e"),
		Warning:         lipgloss.Color("#bf8700"),
		Success:         lipgloss.Color("#116329"),
		Info:            lipgloss.Color("#0969da"),
		Text:            lipgloss.Color("#1f2328"),
		TextMuted:       lipgloss.Color("#656d76"),
		BackgroundPanel: lipgloss.Color("#ffffff"),
		BackgroundElem:  lipgloss.Color("#f6f8fa"),
		Border:          lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds all lipgloss styles derived from a Theme.
type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	cursor  lipgloss.Style
	checked lipgloss.Style
	device  lipgloss.Style
	locked  lipgloss.Style
	muted   lipgloss.Style
	barFill lipgloss.Style
	barRest lipgloss.Style
	err     lipgloss.Style
	event   lipgloss.Style
	dim     lipgloss.Style
	text    lipgloss.Style
	prompt  lipgloss.Style

	hintKey  lipgloss.Style
	hintDesc lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		header:  lipgloss.NewStyle().Foreground(t.Border),
		cursor:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Background(t.BackgroundElem),
		checked: lipgloss.NewStyle().Foreground(t.Secondary),
		device:  lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		locked:  lipgloss.NewStyle().Foreground(t.Warning),
		muted:   lipgloss.NewStyle().Foreground(t.Warning),
		barFill: lipgloss.NewStyle().Foreground(t.Success),
		barRest: lipgloss.NewStyle().Foreground(t.Border),
		err:     lipgloss.NewStyle().Foreground(t.Error),
		event:   lipgloss.NewStyle().Foreground(t.Info),
		dim:     lipgloss.NewStyle().Foreground(t.TextMuted),
		text:    lipgloss.NewStyle().Foreground(t.Text),
		prompt:  lipgloss.NewStyle().Foreground(t.Accent).Background(t.BackgroundPanel).Padding(0, 1),

		hintKey:  lipgloss.NewStyle().Foreground(t.Text),
		hintDesc: lipgloss.NewStyle().Foreground(t.TextMuted),
	}
}
