package connectivity

import "testing"

func TestFiresOncePerEdge(t *testing.T) {
	m := NewMonitor(false)

	fired := 0
	m.Notify(func() { fired++ })

	m.SetOnline(true)
	if fired != 1 {
		t.Fatalf("fired = %d after first reconnect, want 1", fired)
	}

	// Repeated online reports are not new edges.
	m.SetOnline(true)
	m.SetOnline(true)
	if fired != 1 {
		t.Errorf("fired = %d after duplicate online reports, want 1", fired)
	}

	m.SetOnline(false)
	if fired != 1 {
		t.Errorf("going offline fired a callback")
	}

	m.SetOnline(true)
	if fired != 2 {
		t.Errorf("fired = %d after second reconnect, want 2", fired)
	}
}

func TestInitialStateNoCallback(t *testing.T) {
	m := NewMonitor(true)

	fired := 0
	m.Notify(func() { fired++ })

	if !m.Online() {
		t.Error("Online() = false, want true")
	}
	m.SetOnline(true)
	if fired != 0 {
		t.Errorf("callback fired without a transition")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	m := NewMonitor(false)

	a, b := 0, 0
	m.Notify(func() { a++ })
	m.Notify(func() { b++ })

	m.SetOnline(true)
	if a != 1 || b != 1 {
		t.Errorf("subscribers fired a=%d b=%d, want 1 each", a, b)
	}
}
