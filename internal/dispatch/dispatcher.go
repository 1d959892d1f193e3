// Package dispatch orchestrates the query lifecycle: persist first, answer
// when the advisory backend is reachable, queue while offline, and replay
// queued questions in submission order once connectivity returns.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gramvani/kisan/internal/connectivity"
	"github.com/gramvani/kisan/internal/storage"
)

// ErrEmptyPrompt is returned by Submit for a blank prompt. It is the only
// dispatcher error a caller sees; everything else degrades internally.
var ErrEmptyPrompt = errors.New("prompt is empty")

// QueryStore is the durable-store surface the dispatcher needs.
// *storage.Store and *storage.Memory both satisfy it.
type QueryStore interface {
	SaveQuery(prompt, kind, status string) (int64, error)
	GetPending() ([]storage.Query, error)
	UpdateQueryStatus(id int64, status string) error
	SaveResponse(queryID int64, body string) (int64, error)
}

// Advisor is the single-round-trip call to the remote advisory service.
type Advisor interface {
	Ask(ctx context.Context, prompt, language string) (string, error)
}

// Origin tags how a result was produced.
type Origin string

const (
	OriginInline Origin = "inline" // answered within the submit call
	OriginReplay Origin = "replay" // answered by the reconnect replay
)

// Result is one answer surfaced to subscribers (UI, voice).
type Result struct {
	QueryID int64  `json:"query_id"`
	Text    string `json:"text"`
	Origin  Origin `json:"origin"`
}

// Submission is what the caller of Submit gets back. Either Answered is true
// and Text carries the response, or the query is queued and Notice explains
// why there is no answer yet.
type Submission struct {
	QueryID  int64  `json:"query_id"`
	Answered bool   `json:"answered"`
	Text     string `json:"text,omitempty"`
	Notice   string `json:"notice,omitempty"`
}

const (
	noticeOffline     = "You are offline. Your question has been saved and will be answered when the connection returns."
	noticeCallFailed  = "The advisory service could not be reached. Your question has been saved and will be retried automatically."
	subscriberBufSize = 16
)

// Dispatcher is the query state machine. Every query is persisted pending
// first and flips to completed only after its response is durably saved, on
// both the inline and replay paths.
type Dispatcher struct {
	advisor Advisor
	monitor *connectivity.Monitor
	logger  *slog.Logger

	// replayLocale is the language used when replaying queued queries; the
	// submitting request's locale is not persisted with the query.
	replayLocale string

	storeMu  sync.RWMutex
	store    QueryStore
	degraded sync.Once

	replayMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]chan Result
}

// New creates a dispatcher over the given store and advisor.
func New(store QueryStore, advisor Advisor, monitor *connectivity.Monitor, replayLocale string) *Dispatcher {
	return &Dispatcher{
		store:        store,
		advisor:      advisor,
		monitor:      monitor,
		replayLocale: replayLocale,
		logger:       slog.Default(),
		subs:         make(map[string]chan Result),
	}
}

// Submit validates and persists a query, then attempts an inline answer if
// currently online. A failed inline attempt leaves the query pending and
// reports a notice; the failure itself is never persisted as a response.
func (d *Dispatcher) Submit(ctx context.Context, prompt, kind, language string) (Submission, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Submission{}, ErrEmptyPrompt
	}
	if kind != storage.KindVoice {
		kind = storage.KindText
	}

	id, err := d.saveQuery(prompt, kind)
	if err != nil {
		return Submission{}, fmt.Errorf("saving query: %w", err)
	}

	if !d.monitor.Online() {
		return Submission{QueryID: id, Notice: noticeOffline}, nil
	}

	text, err := d.advisor.Ask(ctx, prompt, language)
	if err != nil {
		d.logger.Warn("inline advisory call failed, query stays pending", "query_id", id, "error", err)
		return Submission{QueryID: id, Notice: noticeCallFailed}, nil
	}

	if err := d.complete(id, text); err != nil {
		d.logger.Error("recording inline response", "query_id", id, "error", err)
		return Submission{QueryID: id, Notice: noticeCallFailed}, nil
	}

	d.emit(Result{QueryID: id, Text: text, Origin: OriginInline})
	return Submission{QueryID: id, Answered: true, Text: text}, nil
}

// Replay answers all pending queries, oldest first, one attempt per query.
// A failed attempt leaves its query pending for the next reconnect; it does
// not abort the batch. Calls are serialized so a double-fired reconnect event
// cannot produce duplicate responses: the second run's pending scan happens
// only after the first run has flipped its queries to completed.
func (d *Dispatcher) Replay(ctx context.Context) {
	d.replayMu.Lock()
	defer d.replayMu.Unlock()

	pending, err := d.getPending()
	if err != nil {
		d.logger.Error("scanning pending queries", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	d.logger.Info("replaying pending queries", "count", len(pending))
	for _, q := range pending {
		if ctx.Err() != nil {
			return
		}

		text, err := d.advisor.Ask(ctx, q.Prompt, d.replayLocale)
		if err != nil {
			d.logger.Warn("replay attempt failed, query stays pending", "query_id", q.ID, "error", err)
			continue
		}

		if err := d.complete(q.ID, text); err != nil {
			d.logger.Error("recording replayed response", "query_id", q.ID, "error", err)
			continue
		}

		d.emit(Result{QueryID: q.ID, Text: text, Origin: OriginReplay})
	}
}

// BindMonitor registers the reconnect handler. Replay runs on its own
// goroutine so the connectivity report returns immediately.
func (d *Dispatcher) BindMonitor(ctx context.Context) {
	d.monitor.Notify(func() {
		go d.Replay(ctx)
	})
}

// complete durably records the response, then flips the query to completed.
// Ordering matters: the status flip is what removes the query from future
// pending scans, so it must happen only after the response exists.
func (d *Dispatcher) complete(id int64, text string) error {
	if _, err := d.saveResponse(id, text); err != nil {
		return err
	}
	return d.updateStatus(id, storage.StatusCompleted)
}

// --- subscriptions ---

// Subscribe registers a result listener. The channel is buffered; a
// subscriber that stops draining loses results rather than blocking the
// dispatcher.
func (d *Dispatcher) Subscribe() (string, <-chan Result) {
	id := uuid.New().String()
	ch := make(chan Result, subscriberBufSize)

	d.subMu.Lock()
	d.subs[id] = ch
	d.subMu.Unlock()
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (d *Dispatcher) Unsubscribe(id string) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

func (d *Dispatcher) emit(r Result) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for id, ch := range d.subs {
		select {
		case ch <- r:
		default:
			d.logger.Warn("dropping result for slow subscriber", "subscriber", id, "query_id", r.QueryID)
		}
	}
}

// --- storage access with degradation ---

// The store operations below fall back to an in-memory store on the first
// storage failure: storage trouble reduces functionality, it never ends the
// conversation. ErrNotFound is a semantic result, not a storage failure, and
// does not trigger the fallback.

func (d *Dispatcher) currentStore() QueryStore {
	d.storeMu.RLock()
	defer d.storeMu.RUnlock()
	return d.store
}

func (d *Dispatcher) degrade(cause error) {
	d.degraded.Do(func() {
		d.logger.Warn("durable storage unavailable, continuing in-memory only", "error", cause)
		d.storeMu.Lock()
		d.store = storage.NewMemory()
		d.storeMu.Unlock()
	})
}

func isStorageFailure(err error) bool {
	return err != nil && !errors.Is(err, storage.ErrNotFound)
}

func (d *Dispatcher) saveQuery(prompt, kind string) (int64, error) {
	id, err := d.currentStore().SaveQuery(prompt, kind, storage.StatusPending)
	if isStorageFailure(err) {
		d.degrade(err)
		return d.currentStore().SaveQuery(prompt, kind, storage.StatusPending)
	}
	return id, err
}

func (d *Dispatcher) getPending() ([]storage.Query, error) {
	pending, err := d.currentStore().GetPending()
	if isStorageFailure(err) {
		d.degrade(err)
		return d.currentStore().GetPending()
	}
	return pending, err
}

func (d *Dispatcher) saveResponse(id int64, text string) (int64, error) {
	respID, err := d.currentStore().SaveResponse(id, text)
	if isStorageFailure(err) {
		d.degrade(err)
		return d.currentStore().SaveResponse(id, text)
	}
	return respID, err
}

func (d *Dispatcher) updateStatus(id int64, status string) error {
	err := d.currentStore().UpdateQueryStatus(id, status)
	if isStorageFailure(err) {
		d.degrade(err)
		return d.currentStore().UpdateQueryStatus(id, status)
	}
	return err
}
