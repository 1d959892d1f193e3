package storage

import (
	"sort"
	"sync"
	"time"
)

// Memory is an in-process implementation of the query/response operations,
// used when the SQLite store cannot be opened or fails mid-session. Nothing
// survives a restart; the conversation simply continues without durability.
type Memory struct {
	mu         sync.Mutex
	queries    map[int64]*Query
	responses  []Response
	profile    map[string]string
	nextQuery  int64
	nextResult int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		queries: make(map[int64]*Query),
		profile: make(map[string]string),
	}
}

func (m *Memory) SaveQuery(prompt, kind, status string) (int64, error) {
	if kind == "" {
		kind = KindText
	}
	if status == "" {
		status = StatusPending
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextQuery++
	id := m.nextQuery
	m.queries[id] = &Query{
		ID:        id,
		Prompt:    prompt,
		Kind:      kind,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	return id, nil
}

func (m *Memory) GetQuery(id int64) (Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queries[id]
	if !ok {
		return Query{}, ErrNotFound
	}
	return *q, nil
}

func (m *Memory) GetPending() ([]Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []Query
	for _, q := range m.queries {
		if q.Status == StatusPending {
			pending = append(pending, *q)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (m *Memory) ListQueries(limit int) ([]Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]Query, 0, len(m.queries))
	for _, q := range m.queries {
		all = append(all, *q)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) UpdateQueryStatus(id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queries[id]
	if !ok {
		return ErrNotFound
	}
	q.Status = status
	return nil
}

func (m *Memory) CountByStatus(status string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, q := range m.queries {
		if q.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SaveResponse(queryID int64, body string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queries[queryID]; !ok {
		return 0, ErrNotFound
	}
	m.nextResult++
	m.responses = append(m.responses, Response{
		ID:        m.nextResult,
		QueryID:   queryID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	return m.nextResult, nil
}

func (m *Memory) DeleteQuery(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queries[id]; !ok {
		return ErrNotFound
	}
	delete(m.queries, id)
	kept := m.responses[:0]
	for _, r := range m.responses {
		if r.QueryID != id {
			kept = append(kept, r)
		}
	}
	m.responses = kept
	return nil
}

func (m *Memory) GetResponsesFor(queryID int64) ([]Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Response
	for _, r := range m.responses {
		if r.QueryID == queryID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) SetProfileKey(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profile[key] = value
	return nil
}

func (m *Memory) GetProfileKey(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.profile[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) GetAllProfileKeys() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.profile))
	for k, v := range m.profile {
		out[k] = v
	}
	return out, nil
}
