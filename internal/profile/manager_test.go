package profile

import (
	"strings"
	"testing"

	"github.com/gramvani/kisan/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemory())
}

func TestSetAndGetField(t *testing.T) {
	m := newTestManager(t)

	if err := m.SetField("state", "Karnataka"); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := m.SetField("crops", "rice, ragi"); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	p, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p["state"] != "Karnataka" || p["crops"] != "rice, ragi" {
		t.Errorf("profile = %v", p)
	}
}

func TestSetFieldRejectsUnknownKey(t *testing.T) {
	m := newTestManager(t)

	if err := m.SetField("favourite_color", "green"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestSummary(t *testing.T) {
	m := newTestManager(t)

	if got := m.Summary(); got != "" {
		t.Errorf("empty profile summary = %q, want empty", got)
	}

	m.SetField("name", "Ravi")
	m.SetField("state", "Karnataka")
	m.SetField("land_size", "2 acres")

	got := m.Summary()
	for _, want := range []string{"Name: Ravi", "State: Karnataka", "Land size: 2 acres"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestCacheInvalidatedOnSet(t *testing.T) {
	m := newTestManager(t)

	m.SetField("state", "Karnataka")
	if _, err := m.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// A write after a cached read must be visible immediately.
	m.SetField("state", "Kerala")
	p, _ := m.Get()
	if p["state"] != "Kerala" {
		t.Errorf("stale cache: state = %q", p["state"])
	}
}
