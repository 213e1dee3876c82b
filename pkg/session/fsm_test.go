package session

import (
	"errors"
	"testing"
)

func TestStateMachineHappyPath(t *testing.T) {
	var seen []State
	m := newStateMachine("s1", StateListenerFunc(func(ev StateChange) { seen = append(seen, ev.To) }))
	for _, to := range []State{StateConfigValidating, StateActive, StateActive, StateIdleTimedOut, StateClosed} {
		if err := m.Transition(to, "test"); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if len(seen) != 5 || seen[4] != StateClosed {
		t.Fatalf("unexpected events %v", seen)
	}
}

func TestStateMachineRejectsInvalid(t *testing.T) {
	m := newStateMachine("s1")
	err := m.Transition(StateActive, "skip validation")
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) || invalid.From != StateConnecting || invalid.To != StateActive {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	if m.State() != StateConnecting {
		t.Fatalf("state changed on rejected transition")
	}
}

func TestClosedIsTerminal(t *testing.T) {
	m := newStateMachine("s1")
	for _, to := range []State{StateConfigValidating, StateFaulted, StateClosed} {
		if err := m.Transition(to, "test"); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	for _, to := range []State{StateConnecting, StateActive, StateFaulted, StateClosed} {
		if err := m.Transition(to, "test"); err == nil {
			t.Fatalf("transition out of closed to %s accepted", to)
		}
	}
	if !m.State().Terminal() {
		t.Fatalf("closed must be terminal")
	}
}

func TestFaultFromAnyLiveState(t *testing.T) {
	for _, from := range []State{StateConnecting, StateConfigValidating, StateActive, StateIdleTimedOut, StateDisconnecting} {
		if !containsState(transitions[from], StateFaulted) {
			t.Errorf("%s cannot fault", from)
		}
	}
}

func containsState(states []State, s State) bool {
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}
