package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Query statuses. A query moves pending -> completed exactly once, after its
// response has been durably recorded; it never moves back.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Query kinds record how the prompt arrived. Informational only.
const (
	KindText  = "text"
	KindVoice = "voice"
)

// Query is one user-submitted question and its lifecycle status.
type Query struct {
	ID        int64
	Prompt    string
	Kind      string // "text" or "voice"
	Status    string // "pending" or "completed"
	CreatedAt time.Time
}

// Response is the single recorded answer to a query. Responses are append-only
// and are never updated or deleted once written.
type Response struct {
	ID        int64
	QueryID   int64
	Body      string
	CreatedAt time.Time
}
