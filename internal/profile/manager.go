// Package profile manages the farmer's profile: the small set of facts (name,
// location, crops, land) injected into advisory prompts so answers come out
// region- and crop-specific.
package profile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Field keys accepted by SetField. A closed set keeps the prompt summary and
// the CLI/API surfaces in sync.
var knownFields = map[string]string{
	"name":      "Name",
	"state":     "State",
	"district":  "District",
	"crops":     "Crops",
	"land_size": "Land size",
	"soil_type": "Soil type",
}

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(key, value string) error
	GetAllProfileKeys() (map[string]string, error)
}

// Manager provides cached access to the farmer profile stored in SQLite.
type Manager struct {
	store ProfileStore
	ttl   time.Duration

	mu       sync.RWMutex
	cached   map[string]string
	cachedAt time.Time
	now      func() time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return &Manager{
		store: store,
		ttl:   60 * time.Second,
		now:   time.Now,
	}
}

// Fields returns the accepted profile field keys, sorted.
func Fields() []string {
	keys := make([]string, 0, len(knownFields))
	for k := range knownFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get reads the whole profile from storage (or cache).
func (m *Manager) Get() (map[string]string, error) {
	m.mu.RLock()
	if m.cached != nil && m.now().Before(m.cachedAt.Add(m.ttl)) {
		p := copyMap(m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.now().Before(m.cachedAt.Add(m.ttl)) {
		return copyMap(m.cached), nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return nil, fmt.Errorf("loading profile keys: %w", err)
	}
	m.cached = keys
	m.cachedAt = m.now()
	return copyMap(keys), nil
}

// SetField persists one profile field and invalidates the cache.
// Unknown keys are rejected.
func (m *Manager) SetField(key, value string) error {
	if _, ok := knownFields[key]; !ok {
		return fmt.Errorf("unknown profile field %q (valid: %s)", key, strings.Join(Fields(), ", "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetProfileKey(key, value); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}
	m.cached = nil
	return nil
}

// Summary returns a compact one-liner-per-field representation suitable for
// injection into the advisory system prompt. Empty profile yields "".
func (m *Manager) Summary() string {
	p, err := m.Get()
	if err != nil || len(p) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, key := range Fields() {
		v := strings.TrimSpace(p[key])
		if v == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(knownFields[key])
		sb.WriteString(": ")
		sb.WriteString(v)
	}
	return sb.String()
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
