package storage

import (
	"errors"
	"testing"
)

func TestMemoryPendingLifecycle(t *testing.T) {
	m := NewMemory()

	id1, err := m.SaveQuery("q1", KindText, StatusPending)
	if err != nil {
		t.Fatalf("SaveQuery: %v", err)
	}
	id2, _ := m.SaveQuery("q2", KindVoice, StatusPending)
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	pending, err := m.GetPending()
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != id1 {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	if err := m.UpdateQueryStatus(id1, StatusCompleted); err != nil {
		t.Fatalf("UpdateQueryStatus: %v", err)
	}
	pending, _ = m.GetPending()
	if len(pending) != 1 || pending[0].ID != id2 {
		t.Errorf("completed query still pending: %+v", pending)
	}
}

func TestMemoryResponseRequiresQuery(t *testing.T) {
	m := NewMemory()

	if _, err := m.SaveResponse(7, "orphan"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	id, _ := m.SaveQuery("q", KindText, StatusPending)
	if _, err := m.SaveResponse(id, "a"); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	responses, _ := m.GetResponsesFor(id)
	if len(responses) != 1 || responses[0].Body != "a" {
		t.Errorf("unexpected responses: %+v", responses)
	}
}

func TestMemoryNotFound(t *testing.T) {
	m := NewMemory()

	if _, err := m.GetQuery(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetQuery: expected ErrNotFound, got %v", err)
	}
	if err := m.UpdateQueryStatus(1, StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateQueryStatus: expected ErrNotFound, got %v", err)
	}
}
