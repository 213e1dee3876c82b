package session

import (
	"slices"
	"sync"
	"time"
)

// State is a lifecycle state of one connection.
type State string

const (
	StateConnecting       State = "connecting"
	StateConfigValidating State = "config_validating"
	StateActive           State = "active"
	StateIdleTimedOut     State = "idle_timed_out"
	StateDisconnecting    State = "disconnecting"
	StateFaulted          State = "faulted"
	StateClosed           State = "closed"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateClosed }

// StateChange represents a state transition event.
type StateChange struct {
	SessionID string
	From      State
	To        State
	Timestamp time.Time
	Reason    string
}

// StateListener observes session state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(event StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

var transitions = map[State][]State{
	StateConnecting:       {StateConfigValidating, StateFaulted},
	StateConfigValidating: {StateActive, StateDisconnecting, StateFaulted},
	StateActive:           {StateActive, StateIdleTimedOut, StateDisconnecting, StateFaulted},
	StateIdleTimedOut:     {StateClosed, StateFaulted},
	StateDisconnecting:    {StateClosed, StateFaulted},
	StateFaulted:          {StateClosed},
}

// stateMachine guards the session state. Listeners run outside the lock.
type stateMachine struct {
	mu        sync.RWMutex
	sessionID string
	current   State
	since     time.Time
	listeners []StateListener
}

func newStateMachine(sessionID string, listeners ...StateListener) *stateMachine {
	return &stateMachine{
		sessionID: sessionID,
		current:   StateConnecting,
		since:     time.Now(),
		listeners: listeners,
	}
}

// State returns the current state.
func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *stateMachine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves to state or returns an *InvalidTransitionError.
func (m *stateMachine) Transition(state State, reason string) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(transitions[from], state) {
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: state}
	}
	now := time.Now()
	m.current = state
	if from != state {
		m.since = now
	}
	listeners := append([]StateListener(nil), m.listeners...)
	m.mu.Unlock()

	event := StateChange{
		SessionID: m.sessionID,
		From:      from,
		To:        state,
		Timestamp: now,
		Reason:    reason,
	}
	for _, l := range listeners {
		l.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (m *stateMachine) AddListener(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
