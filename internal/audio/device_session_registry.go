package audio

import (
	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/model"
)

// DeviceSessionRegistry tracks the sessions open on one Device. It is only
// created by its Device and owns every Session it lists.
type DeviceSessionRegistry struct {
	device    *Device
	sessions  []*Session
	lifecycle map[*Session]func()
	disposed  bool
	logger    *zap.SugaredLogger

	added   Signal[*Session]
	removed Signal[*Session]
}

func newDeviceSessionRegistry(d *Device, handles []SessionHandle, logger *zap.SugaredLogger) *DeviceSessionRegistry {
	r := &DeviceSessionRegistry{
		device:    d,
		lifecycle: make(map[*Session]func()),
		logger:    logger.With("device", d.id),
	}
	for _, h := range handles {
		r.CreateIfUnique(h)
	}
	return r
}

// Device returns the owning device.
func (r *DeviceSessionRegistry) Device() *Device { return r.device }

// Sessions returns a copy of the tracked sessions in creation order.
func (r *DeviceSessionRegistry) Sessions() []*Session {
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func (r *DeviceSessionRegistry) Len() int { return len(r.sessions) }

// Contains reports whether s is tracked by this registry.
func (r *DeviceSessionRegistry) Contains(s *Session) bool { return r.indexOf(s) >= 0 }

// FindByInstanceID returns the session with the given instance id, or nil.
func (r *DeviceSessionRegistry) FindByInstanceID(id string) *Session {
	for _, s := range r.sessions {
		if s.instanceID == id {
			return s
		}
	}
	return nil
}

// CreateIfUnique constructs and tracks a session for h. It returns nil when
// the instance id is already tracked or construction failed; failures are
// logged.
func (r *DeviceSessionRegistry) CreateIfUnique(h SessionHandle) *Session {
	if r.disposed || h == nil {
		return nil
	}
	if r.FindByInstanceID(h.InstanceID()) != nil {
		return nil
	}
	s, err := newSession(h, r.device)
	if err != nil {
		r.logger.Warnw("skipping session", "pid", h.PID(), "process", h.ProcessName(), "error", err)
		return nil
	}
	r.sessions = append(r.sessions, s)
	r.lifecycle[s] = s.stateChanged.Subscribe(func(st model.SessionState) {
		if st.Terminal() {
			r.deleteSession(s)
		}
	})
	r.logger.Debugw("session added", "identity", s.Identity(), "instance", s.instanceID)
	r.added.emit(s)
	return s
}

// OnSessionAdded subscribes to session creation.
func (r *DeviceSessionRegistry) OnSessionAdded(fn func(*Session)) (cancel func()) {
	return r.added.Subscribe(fn)
}

// OnSessionRemoved subscribes to session removal. The session is already
// out of the list and is disposed after handlers return.
func (r *DeviceSessionRegistry) OnSessionRemoved(fn func(*Session)) (cancel func()) {
	return r.removed.Subscribe(fn)
}

// handleSessionCreated re-resolves the new session's controls through its
// handle and tracks it.
func (r *DeviceSessionRegistry) handleSessionCreated(h SessionHandle) bool {
	return r.CreateIfUnique(h) != nil
}

func (r *DeviceSessionRegistry) handleSessionState(instanceID string, st model.SessionState) bool {
	s := r.FindByInstanceID(instanceID)
	if s == nil {
		return false
	}
	s.applyState(st)
	return true
}

// deleteSession removes, unsubscribes, announces and disposes s. Calling it
// for a session that is no longer tracked does nothing.
func (r *DeviceSessionRegistry) deleteSession(s *Session) bool {
	i := r.indexOf(s)
	if i < 0 {
		return false
	}
	r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
	if cancel, ok := r.lifecycle[s]; ok {
		cancel()
		delete(r.lifecycle, s)
	}
	r.logger.Debugw("session removed", "identity", s.Identity(), "instance", s.instanceID)
	r.removed.emit(s)
	s.dispose()
	return true
}

func (r *DeviceSessionRegistry) dispose() {
	if r.disposed {
		return
	}
	for len(r.sessions) > 0 {
		r.deleteSession(r.sessions[len(r.sessions)-1])
	}
	r.disposed = true
	r.added = Signal[*Session]{}
	r.removed = Signal[*Session]{}
}

func (r *DeviceSessionRegistry) indexOf(s *Session) int {
	for i, other := range r.sessions {
		if other == s {
			return i
		}
	}
	return -1
}
