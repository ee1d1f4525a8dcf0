package audio

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/model"
)

// SessionEvent carries a session and its index in the partition the event
// refers to. For removals the index is captured before the list changes.
type SessionEvent struct {
	Session *Session
	Index   int
}

// NamePreview suggests a display name for a session about to join the
// aggregate. An empty result means no suggestion.
type NamePreview func(*Session) string

// HiddenPreview reports whether a session about to join the aggregate
// belongs in the Hidden partition.
type HiddenPreview func(*Session) bool

// SessionAggregator merges the sessions of any number of attached
// DeviceSessionRegistry instances into two flat partitions, Visible and
// Hidden. It holds non-owning references and never disposes a session.
type SessionAggregator struct {
	hiddenNames *NameSet
	folder      nameFolder
	logger      *zap.SugaredLogger

	registries []*DeviceSessionRegistry
	regCancels map[*DeviceSessionRegistry][]func()
	visible    []*Session
	hidden     []*Session
	// shadowed holds sessions rejected because another session with the
	// same pid was already aggregated; they are promoted when it leaves.
	shadowed []*Session
	// renames holds the OnRenamed cancel func of every aggregated session.
	renames map[*Session]func()

	namePreviews   []*NamePreview
	hiddenPreviews []*HiddenPreview
	cancelNames    func()

	visibleAdded   Signal[SessionEvent]
	visibleRemoved Signal[SessionEvent]
	hiddenAdded    Signal[SessionEvent]
	hiddenRemoved  Signal[SessionEvent]
	managerAdded   Signal[*DeviceSessionRegistry]
	managerRemoved Signal[*DeviceSessionRegistry]
}

// NewSessionAggregator returns an aggregator that hides sessions whose
// process name or custom name is in hiddenNames. A nil set means nothing
// is hidden by name.
func NewSessionAggregator(hiddenNames *NameSet, opts ...Option) *SessionAggregator {
	o := buildOptions(opts)
	if hiddenNames == nil {
		hiddenNames = newNameSet(o.caseSensitive, nil)
	}
	a := &SessionAggregator{
		hiddenNames: hiddenNames,
		folder:      nameFolder{sensitive: o.caseSensitive},
		logger:      o.logger.Named("session_aggregator"),
		regCancels:  make(map[*DeviceSessionRegistry][]func()),
		renames:     make(map[*Session]func()),
	}
	a.cancelNames = hiddenNames.OnChanged(a.onHiddenNamesChanged)
	return a
}

// HiddenNames returns the hidden-name set the aggregator observes.
func (a *SessionAggregator) HiddenNames() *NameSet { return a.hiddenNames }

// Visible returns a copy of the Visible partition.
func (a *SessionAggregator) Visible() []*Session { return cloneSessions(a.visible) }

// Hidden returns a copy of the Hidden partition.
func (a *SessionAggregator) Hidden() []*Session { return cloneSessions(a.hidden) }

// Sessions returns Visible followed by Hidden.
func (a *SessionAggregator) Sessions() []*Session {
	out := make([]*Session, 0, len(a.visible)+len(a.hidden))
	out = append(out, a.visible...)
	return append(out, a.hidden...)
}

// VisibleIndex returns the position of s in Visible, or -1.
func (a *SessionAggregator) VisibleIndex(s *Session) int { return indexOfSession(a.visible, s) }

// HiddenIndex returns the position of s in Hidden, or -1.
func (a *SessionAggregator) HiddenIndex(s *Session) int { return indexOfSession(a.hidden, s) }

// IsHidden reports whether s is currently in the Hidden partition.
func (a *SessionAggregator) IsHidden(s *Session) bool { return a.HiddenIndex(s) >= 0 }

// Contains reports whether s is in either partition.
func (a *SessionAggregator) Contains(s *Session) bool {
	return a.VisibleIndex(s) >= 0 || a.HiddenIndex(s) >= 0
}

// Registries returns the attached session registries in attach order.
func (a *SessionAggregator) Registries() []*DeviceSessionRegistry {
	out := make([]*DeviceSessionRegistry, len(a.registries))
	copy(out, a.registries)
	return out
}

// IsAttached reports whether reg is attached.
func (a *SessionAggregator) IsAttached(reg *DeviceSessionRegistry) bool {
	_, ok := a.regCancels[reg]
	return ok
}

// Attach starts aggregating reg. Its current sessions go through the same
// add path as live additions. Returns false if reg is nil or attached.
func (a *SessionAggregator) Attach(reg *DeviceSessionRegistry) bool {
	if reg == nil || a.IsAttached(reg) {
		return false
	}
	a.registries = append(a.registries, reg)
	a.regCancels[reg] = []func(){
		reg.OnSessionAdded(func(s *Session) { a.addSession(s) }),
		reg.OnSessionRemoved(a.onRegistrySessionRemoved),
	}
	for _, s := range reg.Sessions() {
		a.addSession(s)
	}
	a.logger.Debugw("registry attached", "device", reg.device.id, "sessions", reg.Len())
	a.managerAdded.emit(reg)
	return true
}

// Detach stops aggregating reg and evicts its sessions from whichever
// partition holds them. Nothing is disposed. Returns false if reg is not
// attached.
func (a *SessionAggregator) Detach(reg *DeviceSessionRegistry) bool {
	cancels, ok := a.regCancels[reg]
	if !ok {
		return false
	}
	for _, cancel := range cancels {
		cancel()
	}
	delete(a.regCancels, reg)
	for i, other := range a.registries {
		if other == reg {
			a.registries = append(a.registries[:i], a.registries[i+1:]...)
			break
		}
	}

	var evicted []int
	for _, s := range reg.Sessions() {
		a.dropShadow(s)
		if a.removeSession(s) {
			evicted = append(evicted, s.pid)
		}
	}
	for i := len(a.shadowed) - 1; i >= 0; i-- {
		if reg.Contains(a.shadowed[i]) {
			a.shadowed = append(a.shadowed[:i], a.shadowed[i+1:]...)
		}
	}
	for _, pid := range evicted {
		a.promote(pid)
	}
	a.logger.Debugw("registry detached", "device", reg.device.id)
	a.managerRemoved.emit(reg)
	return true
}

// Close detaches every registry and stops observing the hidden-name set.
func (a *SessionAggregator) Close() {
	for len(a.registries) > 0 {
		a.Detach(a.registries[len(a.registries)-1])
	}
	if a.cancelNames != nil {
		a.cancelNames()
		a.cancelNames = nil
	}
}

// AddNamePreview registers a name suggestion hook. The first registered
// preview that returns a non-empty name wins.
func (a *SessionAggregator) AddNamePreview(fn NamePreview) (cancel func()) {
	p := &fn
	a.namePreviews = append(a.namePreviews, p)
	return func() { a.namePreviews = removePtr(a.namePreviews, p) }
}

// AddHiddenPreview registers a hiding hook. A session is hidden if the
// hidden-name set or any registered preview says so.
func (a *SessionAggregator) AddHiddenPreview(fn HiddenPreview) (cancel func()) {
	p := &fn
	a.hiddenPreviews = append(a.hiddenPreviews, p)
	return func() { a.hiddenPreviews = removePtr(a.hiddenPreviews, p) }
}

// PreviewHidden evaluates the hiding decision for s without moving it.
func (a *SessionAggregator) PreviewHidden(s *Session) bool {
	if a.matchesNames(s, a.hiddenNames) {
		return true
	}
	for _, p := range a.hiddenPreviews {
		if (*p)(s) {
			return true
		}
	}
	return false
}

// Reclassify re-runs the add path for s if its hiding decision no longer
// matches its partition. Renames are reclassified automatically; callers
// use it after changing what a HiddenPreview decides. Returns true if s
// moved.
func (a *SessionAggregator) Reclassify(s *Session) bool {
	if !a.Contains(s) || a.PreviewHidden(s) == a.IsHidden(s) {
		return false
	}
	a.removeSession(s)
	return a.addSession(s)
}

func (a *SessionAggregator) addSession(s *Session) bool {
	if s == nil || s.disposed || a.Contains(s) {
		return false
	}
	if other := a.FindSessionWithPID(s.pid, true); other != nil {
		a.logger.Debugw("duplicate pid rejected", "pid", s.pid, "instance", s.instanceID, "existing", other.instanceID)
		if indexOfSession(a.shadowed, s) < 0 {
			a.shadowed = append(a.shadowed, s)
		}
		return false
	}
	a.dropShadow(s)

	for _, p := range a.namePreviews {
		if name := (*p)(s); name != "" {
			s.displayName = name
			break
		}
	}

	if a.PreviewHidden(s) {
		s.hidden = true
		a.hidden = append(a.hidden, s)
		a.watchRename(s)
		a.hiddenAdded.emit(SessionEvent{Session: s, Index: len(a.hidden) - 1})
	} else {
		s.hidden = false
		a.visible = append(a.visible, s)
		a.watchRename(s)
		a.visibleAdded.emit(SessionEvent{Session: s, Index: len(a.visible) - 1})
	}
	return true
}

// watchRename reclassifies s whenever its custom name changes, since the
// hidden-name set matches custom names too.
func (a *SessionAggregator) watchRename(s *Session) {
	a.renames[s] = s.OnRenamed(func(s *Session) { a.Reclassify(s) })
}

// removeSession routes by membership: Hidden first, then Visible.
func (a *SessionAggregator) removeSession(s *Session) bool {
	if cancel, ok := a.renames[s]; ok {
		cancel()
		delete(a.renames, s)
	}
	if i := indexOfSession(a.hidden, s); i >= 0 {
		a.hidden = append(a.hidden[:i], a.hidden[i+1:]...)
		a.hiddenRemoved.emit(SessionEvent{Session: s, Index: i})
		return true
	}
	if i := indexOfSession(a.visible, s); i >= 0 {
		a.visible = append(a.visible[:i], a.visible[i+1:]...)
		a.visibleRemoved.emit(SessionEvent{Session: s, Index: i})
		return true
	}
	return false
}

func (a *SessionAggregator) onRegistrySessionRemoved(s *Session) {
	a.dropShadow(s)
	if a.removeSession(s) {
		a.promote(s.pid)
	}
}

// promote admits the first shadowed session with pid, if any.
func (a *SessionAggregator) promote(pid int) {
	for _, s := range a.shadowed {
		if s.pid == pid && !s.disposed {
			a.addSession(s)
			return
		}
	}
}

func (a *SessionAggregator) dropShadow(s *Session) {
	if i := indexOfSession(a.shadowed, s); i >= 0 {
		a.shadowed = append(a.shadowed[:i], a.shadowed[i+1:]...)
	}
}

// onHiddenNamesChanged moves every session whose name entered or left the
// hidden set. The whole opposite partition is scanned because several
// sessions may share a process name.
func (a *SessionAggregator) onHiddenNamesChanged(c NameSetChange) {
	if len(c.Removed) > 0 {
		removed := newNameSet(a.folder.sensitive, c.Removed)
		a.move(a.hidden, removed)
	}
	if len(c.Added) > 0 {
		added := newNameSet(a.folder.sensitive, c.Added)
		a.move(a.visible, added)
	}
}

func (a *SessionAggregator) move(from []*Session, names *NameSet) {
	var matches []*Session
	for _, s := range from {
		if a.matchesNames(s, names) {
			matches = append(matches, s)
		}
	}
	// Sessions still hidden (or shown) for another reason stay put.
	for _, s := range matches {
		a.Reclassify(s)
	}
}

func (a *SessionAggregator) matchesNames(s *Session, names *NameSet) bool {
	if names.Contains(s.processName) {
		return true
	}
	return s.customName != "" && names.Contains(s.customName)
}

// scan visits Visible, then Hidden when includeHidden is set, and returns
// the first session match accepts.
func (a *SessionAggregator) scan(includeHidden bool, match func(*Session) bool) *Session {
	for _, s := range a.visible {
		if match(s) {
			return s
		}
	}
	if includeHidden {
		for _, s := range a.hidden {
			if match(s) {
				return s
			}
		}
	}
	return nil
}

// FindSessionWithPID returns the session with the exact pid.
func (a *SessionAggregator) FindSessionWithPID(pid int, includeHidden bool) *Session {
	return a.scan(includeHidden, func(s *Session) bool { return s.pid == pid })
}

// FindSessionWithProcessName matches the process name, honouring the
// configured case sensitivity.
func (a *SessionAggregator) FindSessionWithProcessName(name string, includeHidden bool) *Session {
	return a.scan(includeHidden, func(s *Session) bool { return a.folder.equal(s.processName, name) })
}

// FindSessionWithName matches custom names first, then process names.
func (a *SessionAggregator) FindSessionWithName(name string, includeHidden bool) *Session {
	if name == "" {
		return nil
	}
	if s := a.scan(includeHidden, func(s *Session) bool {
		return s.customName != "" && a.folder.equal(s.customName, name)
	}); s != nil {
		return s
	}
	return a.FindSessionWithProcessName(name, includeHidden)
}

// FindSessionWithIdentifier matches the full identity string exactly.
func (a *SessionAggregator) FindSessionWithIdentifier(identity string, includeHidden bool) *Session {
	return a.scan(includeHidden, func(s *Session) bool { return s.Identity() == identity })
}

// FindSessionWithSimilarIdentifier resolves loosely typed identities:
// "1234", "app.exe", "1234:app.exe" or "1234:app.exe:render". With a pid
// and a name both must match; if the pid part is not a number only the
// name is used.
func (a *SessionAggregator) FindSessionWithSimilarIdentifier(identity string, includeHidden bool) *Session {
	identity = strings.Trim(identity, ": \t")
	if identity == "" {
		return nil
	}
	if !strings.Contains(identity, ":") {
		if pid, err := strconv.Atoi(identity); err == nil {
			if s := a.FindSessionWithPID(pid, includeHidden); s != nil {
				return s
			}
		}
		return a.FindSessionWithName(identity, includeHidden)
	}

	parts := strings.SplitN(identity, ":", 3)
	pidPart := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])
	pid, err := strconv.Atoi(pidPart)
	if err != nil {
		return a.FindSessionWithName(name, includeHidden)
	}

	var dir *model.Direction
	if len(parts) == 3 {
		if d, err := model.ParseDirection(parts[2]); err == nil {
			dir = &d
		}
	}
	return a.scan(includeHidden, func(s *Session) bool {
		if s.pid != pid {
			return false
		}
		if dir != nil && s.direction != *dir {
			return false
		}
		if name == "" {
			return true
		}
		return a.folder.equal(s.processName, name) ||
			(s.customName != "" && a.folder.equal(s.customName, name))
	})
}

// FindSessionWithSessionID matches the native session id.
func (a *SessionAggregator) FindSessionWithSessionID(id string, includeHidden bool) *Session {
	if id == "" {
		return nil
	}
	return a.scan(includeHidden, func(s *Session) bool { return s.sessionID == id })
}

// FindSessionWithInstanceID matches the native session-instance id.
func (a *SessionAggregator) FindSessionWithInstanceID(id string, includeHidden bool) *Session {
	if id == "" {
		return nil
	}
	return a.scan(includeHidden, func(s *Session) bool { return s.instanceID == id })
}

// OnSessionAdded subscribes to additions to Visible.
func (a *SessionAggregator) OnSessionAdded(fn func(SessionEvent)) (cancel func()) {
	return a.visibleAdded.Subscribe(fn)
}

// OnSessionRemoved subscribes to removals from Visible.
func (a *SessionAggregator) OnSessionRemoved(fn func(SessionEvent)) (cancel func()) {
	return a.visibleRemoved.Subscribe(fn)
}

// OnHiddenSessionAdded subscribes to additions to Hidden.
func (a *SessionAggregator) OnHiddenSessionAdded(fn func(SessionEvent)) (cancel func()) {
	return a.hiddenAdded.Subscribe(fn)
}

// OnHiddenSessionRemoved subscribes to removals from Hidden.
func (a *SessionAggregator) OnHiddenSessionRemoved(fn func(SessionEvent)) (cancel func()) {
	return a.hiddenRemoved.Subscribe(fn)
}

// OnSessionManagerAdded subscribes to registry attachment.
func (a *SessionAggregator) OnSessionManagerAdded(fn func(*DeviceSessionRegistry)) (cancel func()) {
	return a.managerAdded.Subscribe(fn)
}

// OnSessionManagerRemoved subscribes to registry detachment.
func (a *SessionAggregator) OnSessionManagerRemoved(fn func(*DeviceSessionRegistry)) (cancel func()) {
	return a.managerRemoved.Subscribe(fn)
}

func cloneSessions(in []*Session) []*Session {
	out := make([]*Session, len(in))
	copy(out, in)
	return out
}

func indexOfSession(list []*Session, s *Session) int {
	for i, other := range list {
		if other == s {
			return i
		}
	}
	return -1
}

func removePtr[T any](list []*T, p *T) []*T {
	for i, other := range list {
		if other == p {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
