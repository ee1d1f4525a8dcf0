package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/events"
)

// view mode
type viewMode int

const (
	modeMixer viewMode = iota
	modeFind
	modeRename
)

// headerRows is the number of lines above the first session row.
const headerRows = 2

// messages
type notificationMsg struct{ n audio.Notification }

type watchDoneMsg struct{ err error }

type refreshMsg struct{}

// TUI runs the interactive mixer over a single Mixer. Bubbletea's update
// loop is the mixer goroutine: provider notifications arrive as messages.
type TUI struct {
	Mixer      *Mixer
	Provider   Watcher
	VolumeStep int
	Theme      Theme
}

// model implements tea.Model
type tuiModel struct {
	mixer *Mixer
	ctx   context.Context
	notes <-chan audio.Notification
	errs  <-chan error
	step  int
	st    styles

	mode       viewMode
	showHidden bool
	findInput  textinput.Model

	renameInput textinput.Model
	renaming    *audio.Session

	// dimensions
	width  int
	height int

	// status
	message   string
	isError   bool
	lastEvent string
	applied   int
}

func newTUIModel(ctx context.Context, mixer *Mixer, step int, theme Theme) *tuiModel {
	ti := textinput.New()
	ti.Placeholder = "pid, process, pid:process or pid:process:direction"
	ti.CharLimit = 256
	ti.Width = 60
	ri := textinput.New()
	ri.Placeholder = "custom name, empty resets"
	ri.CharLimit = 128
	ri.Width = 60
	if step <= 0 {
		step = DefaultVolumeStep
	}
	return &tuiModel{
		mixer:       mixer,
		ctx:         ctx,
		step:        step,
		st:          newStyles(theme),
		findInput:   ti,
		renameInput: ri,
	}
}

func (t *TUI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newTUIModel(ctx, t.Mixer, t.VolumeStep, t.Theme)
	unsubscribe := t.Mixer.Subscribe(m.onEvent)
	defer unsubscribe()

	if t.Provider != nil {
		notes := make(chan audio.Notification, 64)
		errs := make(chan error, 1)
		go func() {
			defer close(notes)
			errs <- t.Provider.Watch(ctx, notes)
		}()
		m.notes = notes
		m.errs = errs
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *tuiModel) Init() tea.Cmd {
	return m.waitForNotification()
}

// waitForNotification reads the next provider notification.
func (m *tuiModel) waitForNotification() tea.Cmd {
	if m.notes == nil {
		return nil
	}
	notes, errs := m.notes, m.errs
	return func() tea.Msg {
		n, ok := <-notes
		if !ok {
			return watchDoneMsg{err: <-errs}
		}
		return notificationMsg{n: n}
	}
}

func (m *tuiModel) onEvent(e events.Event) {
	m.lastEvent = fmt.Sprintf("%s %s", e.Kind, e.Target)
	if e.Message != "" {
		m.lastEvent += " " + e.Message
	}
}

func (m *tuiModel) setStatus(err error, format string, args ...any) {
	if err != nil {
		m.message = err.Error()
		m.isError = true
		return
	}
	m.message = fmt.Sprintf(format, args...)
	m.isError = false
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case notificationMsg:
		if m.mixer.Apply(m.ctx, msg.n) {
			m.applied++
		}
		return m, m.waitForNotification()

	case watchDoneMsg:
		m.notes = nil
		if msg.err != nil {
			m.setStatus(fmt.Errorf("provider stopped: %w", msg.err), "")
		}
		return m, nil

	case refreshMsg:
		err := m.mixer.Refresh(m.ctx)
		m.setStatus(err, "Refreshed: %d devices, %d sessions", m.mixer.Devices.Len(), len(m.mixer.Sessions.Visible()))
		return m, nil
	}

	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeMixer:
		return m.handleMixerKey(msg)
	case modeFind:
		return m.handleFindKey(msg)
	case modeRename:
		return m.handleRenameKey(msg)
	}
	return m, nil
}

func (m *tuiModel) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeMixer {
		return m, nil
	}
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.mixer.Multi.DecrementCurrentIndex()
		return m, nil
	case msg.Button == tea.MouseButtonWheelDown:
		m.mixer.Multi.IncrementCurrentIndex()
		return m, nil
	case msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft:
		return m, nil
	}

	row := msg.Y - headerRows
	if row < 0 || row >= m.mixer.Multi.Len() {
		return m, nil
	}
	if row == m.mixer.Multi.CurrentIndex() {
		m.mixer.Multi.ToggleCurrent()
		return m, nil
	}
	if err := m.mixer.Multi.SetCurrentIndex(row); err != nil {
		m.setStatus(err, "")
	}
	return m, nil
}

func (m *tuiModel) handleMixerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	multi := m.mixer.Multi
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		multi.DecrementCurrentIndex()

	case "down", "j":
		multi.IncrementCurrentIndex()

	case " ", "x":
		multi.ToggleCurrent()

	case "a":
		multi.SetAllSelectionStates(true)

	case "n":
		multi.SetAllSelectionStates(false)

	case "enter":
		s := multi.CurrentSession()
		if s == nil {
			return m, nil
		}
		if m.mixer.Selector.SetSelected(s) {
			m.setStatus(nil, "Following %s", s.Identity())
		}

	case "+", "=", "right":
		err := m.mixer.VolumeUp(m.step)
		m.setStatus(err, "Volume +%d%%", m.step)

	case "-", "_", "left":
		err := m.mixer.VolumeDown(m.step)
		m.setStatus(err, "Volume -%d%%", m.step)

	case "m":
		err := m.mixer.ToggleMute()
		m.setStatus(err, "Toggled mute")

	case "l":
		lock := !multi.LockSelection()
		multi.SetLockSelection(lock)
		m.mixer.Selector.SetLockSelection(lock)
		m.setStatus(nil, "Selection lock %s", onOff(lock))

	case "c":
		lock := !multi.LockCurrentIndex()
		multi.SetLockCurrentIndex(lock)
		m.setStatus(nil, "Cursor lock %s", onOff(lock))

	case "h":
		name, err := m.mixer.HideCurrent()
		m.setStatus(err, "Hid %s", name)

	case "H":
		m.showHidden = !m.showHidden

	case "u":
		n := m.mixer.Hidden().Len()
		m.mixer.Hidden().Replace(nil)
		m.setStatus(nil, "Unhid %d names", n)

	case "tab":
		m.mixer.DeviceSelector.SelectNext()

	case "shift+tab":
		m.mixer.DeviceSelector.SelectPrevious()

	case "d":
		if !m.mixer.DeviceSelector.SelectDefault() {
			m.setStatus(nil, "No default device to select")
		}

	case "e":
		s := multi.CurrentSession()
		if s == nil {
			m.setStatus(ErrNothingSelected, "")
			return m, nil
		}
		m.renaming = s
		m.mode = modeRename
		m.renameInput.SetValue(s.CustomName())
		m.renameInput.Focus()
		return m, textinput.Blink

	case "/":
		m.mode = modeFind
		m.findInput.SetValue("")
		m.findInput.Focus()
		return m, textinput.Blink

	case "r":
		m.message = ""
		return m, func() tea.Msg { return refreshMsg{} }
	}

	return m, nil
}

func (m *tuiModel) handleFindKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "escape":
		m.mode = modeMixer
		m.findInput.Blur()
		return m, nil

	case "enter":
		query := strings.TrimSpace(m.findInput.Value())
		if query != "" {
			s, err := m.mixer.Select(query)
			if err == nil {
				m.setStatus(nil, "Selected %s", s.Identity())
			} else {
				m.setStatus(err, "")
			}
		}
		m.mode = modeMixer
		m.findInput.Blur()
		return m, nil
	}

	// Forward all other keys to the text input component
	var cmd tea.Cmd
	m.findInput, cmd = m.findInput.Update(msg)
	return m, cmd
}

func (m *tuiModel) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "escape":
		m.closeRename()
		return m, nil

	case "enter":
		s := m.renaming
		m.closeRename()
		if !m.mixer.Sessions.Contains(s) {
			m.setStatus(fmt.Errorf("%s: %w", s.Identity(), audio.ErrSessionNotFound), "")
			return m, nil
		}
		s.SetName(m.renameInput.Value())
		switch {
		case !s.HasCustomName():
			m.setStatus(nil, "Reset name of %s", s.Identity())
		case s.Hidden():
			m.setStatus(nil, "Renamed %s to %s (hidden)", s.Identity(), s.Name())
		default:
			m.setStatus(nil, "Renamed %s to %s", s.Identity(), s.Name())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

func (m *tuiModel) closeRename() {
	m.mode = modeMixer
	m.renaming = nil
	m.renameInput.Blur()
}

func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.mode {
	case modeMixer:
		return m.viewMixer()
	case modeFind:
		return m.viewFind()
	case modeRename:
		return m.viewRename()
	}
	return ""
}

func (m *tuiModel) viewMixer() string {
	var b strings.Builder
	st := m.st

	b.WriteString(st.title.Render("Volume Patrol"))
	b.WriteString("  ")
	b.WriteString(st.dim.Render("↑↓=move  space=toggle  +/-=volume  m=mute  enter=follow  /=find  e=rename  h=hide  H=hidden  tab=device  l/c=lock  r=refresh  q=quit"))
	b.WriteString("\n")
	b.WriteString(m.viewDevice())
	b.WriteString("\n")

	visible := m.mixer.Sessions.Visible()
	if len(visible) == 0 {
		b.WriteString(st.dim.Render("  No sessions."))
		b.WriteString("\n")
	}

	nameWidth := 24
	for _, s := range visible {
		if w := len(s.Name()) + 2; w > nameWidth {
			nameWidth = w
		}
	}
	if limit := m.width / 2; nameWidth > limit && limit > 10 {
		nameWidth = limit
	}
	barWidth := m.width - nameWidth - 24
	if barWidth > 30 {
		barWidth = 30
	}
	if barWidth < 5 {
		barWidth = 5
	}

	current := m.mixer.Multi.CurrentIndex()
	followed := m.mixer.Selector.Selected()
	for i, s := range visible {
		b.WriteString(m.renderSessionRow(s, i == current, m.mixer.Multi.IsSelected(i), s == followed, nameWidth, barWidth))
		b.WriteString("\n")
	}

	hidden := m.mixer.Sessions.Hidden()
	if m.showHidden && len(hidden) > 0 {
		b.WriteString(st.header.Render("  ── hidden ──"))
		b.WriteString("\n")
		for _, s := range hidden {
			b.WriteString(st.dim.Render(fmt.Sprintf("      %s  %3d%%", padRight(truncate(s.Name(), nameWidth), nameWidth), s.VolumePercent())))
			b.WriteString("\n")
		}
	}

	summary := fmt.Sprintf("  %d visible | %d hidden | %d selected | %d devices | %d notifications",
		len(visible), len(hidden), len(m.mixer.Multi.SelectedSessions()), m.mixer.Devices.Len(), m.applied)
	b.WriteString(st.dim.Render(summary))
	if locks := m.lockLabel(); locks != "" {
		b.WriteString("  ")
		b.WriteString(st.locked.Render(locks))
	}
	b.WriteString("\n")

	if m.lastEvent != "" {
		b.WriteString(st.event.Render("  " + truncate(m.lastEvent, maxInt(m.width-2, 10))))
		b.WriteString("\n")
	}
	if m.message != "" {
		style := st.dim
		if m.isError {
			style = st.err
		}
		b.WriteString(style.Render("  " + m.message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *tuiModel) viewDevice() string {
	d := m.mixer.DeviceSelector.Selected()
	if d == nil {
		return m.st.dim.Render(fmt.Sprintf("  no device selected (%d available)", m.mixer.Devices.Len()))
	}
	label := fmt.Sprintf("  %s (%s) %d%%", d.Name(), d.Direction(), d.VolumePercent())
	if d.IsDefault() {
		label += " default"
	}
	out := m.st.device.Render(label)
	if d.Muted() {
		out += " " + m.st.muted.Render("muted")
	}
	if m.mixer.DeviceSelector.LockSelection() {
		out += " " + m.st.locked.Render("locked")
	}
	return out
}

func (m *tuiModel) renderSessionRow(s *audio.Session, isCursor, isChecked, isFollowed bool, nameWidth, barWidth int) string {
	st := m.st

	marker := "  "
	if isCursor {
		marker = "→ "
	}
	check := "[ ]"
	if isChecked {
		check = "[x]"
	}
	follow := " "
	if isFollowed {
		follow = "*"
	}

	name := padRight(truncate(s.Name(), nameWidth), nameWidth)
	pct := fmt.Sprintf("%3d%%", s.VolumePercent())
	bar := volumeBar(st, s.VolumePercent(), barWidth)
	tail := ""
	if s.Muted() {
		tail = " " + st.muted.Render("muted")
	}

	if isCursor {
		return st.cursor.Render(fmt.Sprintf("%s%s%s %s", marker, check, follow, name)) + " " + bar + " " + pct + tail
	}
	if isChecked {
		check = st.checked.Render(check)
	}
	return fmt.Sprintf("%s%s%s %s %s %s%s", marker, check, follow, name, bar, pct, tail)
}

func (m *tuiModel) lockLabel() string {
	var parts []string
	if m.mixer.Multi.LockSelection() {
		parts = append(parts, "selection locked")
	}
	if m.mixer.Multi.LockCurrentIndex() {
		parts = append(parts, "cursor locked")
	}
	return strings.Join(parts, ", ")
}

func (m *tuiModel) viewFind() string {
	var b strings.Builder

	b.WriteString(m.st.title.Render("  Find Session"))
	b.WriteString("\n")
	b.WriteString(m.st.header.Render("  ─────────────────────────────────────────"))
	b.WriteString("\n")
	b.WriteString(m.st.dim.Render("  Enter=select  Escape=cancel"))
	b.WriteString("\n\n")
	b.WriteString("  " + m.st.prompt.Render(m.findInput.View()))
	b.WriteString("\n")

	return b.String()
}

func (m *tuiModel) viewRename() string {
	var b strings.Builder

	b.WriteString(m.st.title.Render("  Rename Session"))
	b.WriteString("\n")
	if m.renaming != nil {
		b.WriteString(m.st.dim.Render("  " + m.renaming.Identity()))
		b.WriteString("\n")
	}
	b.WriteString(m.st.header.Render("  ─────────────────────────────────────────"))
	b.WriteString("\n")
	b.WriteString(m.st.dim.Render("  Enter=rename  Escape=cancel"))
	b.WriteString("\n\n")
	b.WriteString("  " + m.st.prompt.Render(m.renameInput.View()))
	b.WriteString("\n")

	return b.String()
}

// volumeBar renders pct as a horizontal bar of width cells.
func volumeBar(st styles, pct, width int) string {
	filled := pct * width / 100
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return st.barFill.Render(strings.Repeat("█", filled)) + st.barRest.Render(strings.Repeat("░", width-filled))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// truncate cuts a string to at most maxLen characters.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// padRight pads a string with spaces to reach the desired visible width.
func padRight(s string, width int) string {
	visible := visibleLen(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// visibleLen returns the visible length of a string, ignoring ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		n++
	}
	return n
}
