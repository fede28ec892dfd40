package status

import (
	"testing"
	"time"

	"github.com/helia-im/helia/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{AuthRequired}},
		{[]State{Connecting}},
		{[]State{AuthRequired, Connecting}},
		{[]State{Connecting, Ready}},
		{[]State{Connecting, Ready, Reconnecting}},
		{[]State{Connecting, Ready, Reconnecting, Connecting}},
		{[]State{Connecting, Ready, LoggedOut}},
		{[]State{Connecting, Ready, LoggedOut, AuthRequired}},
		{[]State{Error, Booting}},
	}
	for _, tt := range tests {
		m := NewMachine(nil)
		for _, next := range tt.path {
			if err := m.Transition(next); err != nil {
				t.Fatalf("path %v: transition to %s: %v", tt.path, next, err)
			}
		}
		if m.Current() != tt.path[len(tt.path)-1] {
			t.Errorf("path %v: state = %s", tt.path, m.Current())
		}
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("BOOTING -> READY should be rejected")
	}
	if m.Current() != Booting {
		t.Errorf("state changed after rejected transition: %s", m.Current())
	}
}

func TestAuthenticated(t *testing.T) {
	m := NewMachine(nil)
	if m.Authenticated() {
		t.Error("BOOTING should not count as authenticated")
	}
	mustTransition(t, m, Connecting)
	if !m.Authenticated() {
		t.Error("CONNECTING should count as authenticated")
	}
	mustTransition(t, m, Ready)
	mustTransition(t, m, LoggedOut)
	if m.Authenticated() {
		t.Error("LOGGED_OUT should not count as authenticated")
	}
}

func TestTransitionPublishesChange(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	mustTransition(t, m, Connecting)

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload = %T, want Change", evt.Payload)
		}
		if change.From != Booting || change.To != Connecting {
			t.Errorf("change = %+v, want BOOTING -> CONNECTING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

func mustTransition(t *testing.T, m *Machine, to State) {
	t.Helper()
	if err := m.Transition(to); err != nil {
		t.Fatalf("transition to %s: %v", to, err)
	}
}
