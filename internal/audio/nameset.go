package audio

import "strings"

// NameSetChange describes one mutation of a NameSet.
type NameSetChange struct {
	Added   []string
	Removed []string
}

// NameSet is an ordered set of process or display names that notifies
// subscribers when its contents change. Membership tests honour the
// configured case sensitivity. Blank names are never stored.
type NameSet struct {
	folder  nameFolder
	names   []string
	changed Signal[NameSetChange]
}

// NewNameSet returns a case-insensitive set holding names, in order, with
// duplicates dropped.
func NewNameSet(names ...string) *NameSet {
	return newNameSet(false, names)
}

// NewCaseSensitiveNameSet is NewNameSet with exact-match comparison.
func NewCaseSensitiveNameSet(names ...string) *NameSet {
	return newNameSet(true, names)
}

func newNameSet(sensitive bool, names []string) *NameSet {
	s := &NameSet{folder: nameFolder{sensitive: sensitive}}
	for _, n := range names {
		s.insert(n)
	}
	return s
}

// CaseSensitive reports whether the set compares names exactly.
func (s *NameSet) CaseSensitive() bool { return s.folder.sensitive }

// Names returns a copy of the names in insertion order.
func (s *NameSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of names.
func (s *NameSet) Len() int { return len(s.names) }

// Contains reports whether name is in the set.
func (s *NameSet) Contains(name string) bool {
	return s.indexOf(name) >= 0
}

// ContainsAny reports whether any of names is in the set.
func (s *NameSet) ContainsAny(names ...string) bool {
	for _, n := range names {
		if n != "" && s.Contains(n) {
			return true
		}
	}
	return false
}

// Add inserts name and notifies subscribers. Returns false if name was
// blank or already present.
func (s *NameSet) Add(name string) bool {
	if !s.insert(name) {
		return false
	}
	s.changed.emit(NameSetChange{Added: []string{strings.TrimSpace(name)}})
	return true
}

// Remove deletes name and notifies subscribers. Returns false if absent.
func (s *NameSet) Remove(name string) bool {
	i := s.indexOf(name)
	if i < 0 {
		return false
	}
	removed := s.names[i]
	s.names = append(s.names[:i], s.names[i+1:]...)
	s.changed.emit(NameSetChange{Removed: []string{removed}})
	return true
}

// Replace sets the contents to names and emits a single change carrying
// the difference. No notification fires when nothing changed.
func (s *NameSet) Replace(names []string) {
	next := newNameSet(s.folder.sensitive, names)
	var change NameSetChange
	for _, n := range s.names {
		if !next.Contains(n) {
			change.Removed = append(change.Removed, n)
		}
	}
	for _, n := range next.names {
		if !s.Contains(n) {
			change.Added = append(change.Added, n)
		}
	}
	s.names = next.names
	if len(change.Added) > 0 || len(change.Removed) > 0 {
		s.changed.emit(change)
	}
}

// OnChanged subscribes to membership changes.
func (s *NameSet) OnChanged(fn func(NameSetChange)) (cancel func()) {
	return s.changed.Subscribe(fn)
}

func (s *NameSet) insert(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || s.Contains(name) {
		return false
	}
	s.names = append(s.names, name)
	return true
}

func (s *NameSet) indexOf(name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1
	}
	for i, n := range s.names {
		if s.folder.equal(n, name) {
			return i
		}
	}
	return -1
}
