// Package connectivity tracks whether the advisory backend is considered
// reachable. State changes are pushed in (from the front-end or CLI); the
// monitor itself never polls. Transitions from offline to online fire the
// registered callbacks exactly once per edge, so a flickering signal cannot
// re-trigger replay for every report of the same state.
package connectivity

import "sync"

// Monitor converts raw online/offline reports into edge-triggered
// reconnect notifications.
type Monitor struct {
	mu       sync.Mutex
	online   bool
	onOnline []func()
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Notify registers fn to be called on every offline-to-online transition.
// Callbacks run synchronously on the goroutine that reported the transition.
func (m *Monitor) Notify(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// SetOnline records a state report. Reporting the current state again is a
// no-op; going offline updates state only; coming back online fires the
// reconnect callbacks once.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var cbs []func()
	if online {
		cbs = append(cbs, m.onOnline...)
	}
	m.mu.Unlock()

	for _, fn := range cbs {
		fn()
	}
}
