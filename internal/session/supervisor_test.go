package session

import (
	"testing"
	"time"
)

func waitForState(t *testing.T, sv *Supervisor, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sv.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, stuck at %s", want, sv.State())
}

func TestSupervisorTransitionsToConnectedOnSuccessfulProbe(t *testing.T) {
	fc := &fakeClient{data: make([]byte, 4)}
	s := connectedSession(fc)

	sv := NewSupervisor(s, 10*time.Millisecond, 101, 0)
	sv.Start()
	defer sv.Stop()

	waitForState(t, sv, StateConnected, 500*time.Millisecond)
}

func TestSupervisorTransitionsToDisconnectedOnFailedProbe(t *testing.T) {
	fc := &fakeClient{data: make([]byte, 4), readErr: errTest}
	s := connectedSession(fc)

	sv := NewSupervisor(s, 10*time.Millisecond, 101, 0)
	sv.Start()
	defer sv.Stop()

	waitForState(t, sv, StateDisconnected, 500*time.Millisecond)
}

func TestSupervisorHeartbeatTogglesBit(t *testing.T) {
	fc := &fakeClient{data: make([]byte, 4)}
	s := connectedSession(fc)

	sv := NewSupervisor(s, 10*time.Millisecond, 101, 0)
	sv.EnableHeartbeat(101, 1, 0)
	sv.Start()
	defer sv.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if fc.lastWriteAt == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("heartbeat never wrote to offset 1")
}

var errTest = &testError{"erro de teste"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
