package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Info is a point-in-time view of one session.
type Info struct {
	ID       string
	State    State
	Started  time.Time
	ChildAge int
}

type entry struct {
	fsm      *stateMachine
	started  time.Time
	childAge int
}

// Registry lists the live sessions for health checks and shutdown. Only
// the controller adds and removes sessions; everyone else reads snapshots.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]entry
	changed  chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]entry), changed: make(chan struct{})}
}

func (r *Registry) add(id string, fsm *stateMachine, childAge int) {
	r.mu.Lock()
	r.sessions[id] = entry{fsm: fsm, started: time.Now(), childAge: childAge}
	r.notifyLocked()
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.notifyLocked()
	r.mu.Unlock()
}

func (r *Registry) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Snapshot returns the sessions ordered by start time.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, Info{ID: id, State: e.fsm.State(), Started: e.started, ChildAge: e.childAge})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// WaitForEmpty blocks until no session is registered or ctx is done. It
// reports whether the registry drained.
func (r *Registry) WaitForEmpty(ctx context.Context) bool {
	for {
		r.mu.RLock()
		n := len(r.sessions)
		changed := r.changed
		r.mu.RUnlock()
		if n == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-changed:
		}
	}
}
