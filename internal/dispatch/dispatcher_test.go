package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gramvani/kisan/internal/connectivity"
	"github.com/gramvani/kisan/internal/storage"
)

// fakeAdvisor answers from a fixed map and records the order of prompts asked.
type fakeAdvisor struct {
	mu      sync.Mutex
	answers map[string]string
	fails   map[string]bool
	asked   []string
}

func newFakeAdvisor() *fakeAdvisor {
	return &fakeAdvisor{
		answers: make(map[string]string),
		fails:   make(map[string]bool),
	}
}

func (f *fakeAdvisor) Ask(ctx context.Context, prompt, language string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, prompt)
	if f.fails[prompt] {
		return "", errors.New("advisory unreachable")
	}
	if a, ok := f.answers[prompt]; ok {
		return a, nil
	}
	return "generic advice", nil
}

func (f *fakeAdvisor) askedPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.asked...)
}

func newTestDispatcher(t *testing.T, online bool) (*Dispatcher, *storage.Memory, *fakeAdvisor, *connectivity.Monitor) {
	t.Helper()
	store := storage.NewMemory()
	advisor := newFakeAdvisor()
	monitor := connectivity.NewMonitor(online)
	d := New(store, advisor, monitor, "en")
	return d, store, advisor, monitor
}

// Scenario: online submission answered inline leaves exactly one completed
// query with exactly one response, and emits one inline-tagged result.
func TestSubmitOnlineInline(t *testing.T) {
	d, store, advisor, _ := newTestDispatcher(t, true)
	advisor.answers["When to plant rice in Karnataka?"] = "Plant with first monsoon rains"

	subID, results := d.Subscribe()
	defer d.Unsubscribe(subID)

	sub, err := d.Submit(context.Background(), "When to plant rice in Karnataka?", storage.KindText, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !sub.Answered || sub.Text != "Plant with first monsoon rains" {
		t.Errorf("unexpected submission: %+v", sub)
	}

	q, err := store.GetQuery(sub.QueryID)
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if q.Status != storage.StatusCompleted {
		t.Errorf("status = %q, want completed", q.Status)
	}

	responses, _ := store.GetResponsesFor(sub.QueryID)
	if len(responses) != 1 || responses[0].Body != "Plant with first monsoon rains" {
		t.Errorf("unexpected responses: %+v", responses)
	}

	select {
	case r := <-results:
		if r.QueryID != sub.QueryID || r.Origin != OriginInline {
			t.Errorf("unexpected result: %+v", r)
		}
	default:
		t.Error("no result emitted")
	}
}

// Scenario: offline submission queues the query with no response, then
// replay on reconnect completes it and emits a replay-tagged result.
func TestSubmitOfflineThenReplay(t *testing.T) {
	d, store, advisor, monitor := newTestDispatcher(t, false)
	advisor.answers["Best fertilizer for tomato"] = "Use balanced NPK 19:19:19"

	sub, err := d.Submit(context.Background(), "Best fertilizer for tomato", storage.KindText, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Answered {
		t.Error("offline submission should not be answered")
	}
	if sub.Notice == "" {
		t.Error("offline submission should carry a notice")
	}

	q, _ := store.GetQuery(sub.QueryID)
	if q.Status != storage.StatusPending {
		t.Fatalf("status = %q, want pending", q.Status)
	}
	if responses, _ := store.GetResponsesFor(sub.QueryID); len(responses) != 0 {
		t.Fatalf("offline submission produced responses: %+v", responses)
	}
	if len(advisor.askedPrompts()) != 0 {
		t.Error("advisor called while offline")
	}

	subID, results := d.Subscribe()
	defer d.Unsubscribe(subID)

	monitor.SetOnline(true)
	d.Replay(context.Background())

	q, _ = store.GetQuery(sub.QueryID)
	if q.Status != storage.StatusCompleted {
		t.Errorf("status after replay = %q, want completed", q.Status)
	}
	responses, _ := store.GetResponsesFor(sub.QueryID)
	if len(responses) != 1 || responses[0].Body != "Use balanced NPK 19:19:19" {
		t.Errorf("unexpected responses after replay: %+v", responses)
	}

	select {
	case r := <-results:
		if r.Origin != OriginReplay || r.QueryID != sub.QueryID {
			t.Errorf("unexpected result: %+v", r)
		}
	default:
		t.Error("no result emitted on replay")
	}
}

func TestSubmitEmptyPrompt(t *testing.T) {
	d, store, _, _ := newTestDispatcher(t, true)

	if _, err := d.Submit(context.Background(), "   \n", storage.KindText, "en"); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if qs, _ := store.ListQueries(10); len(qs) != 0 {
		t.Errorf("blank prompt was persisted: %+v", qs)
	}
}

// An inline failure while online leaves the query pending for later replay
// and persists nothing; the failure surfaces only as a notice.
func TestSubmitOnlineCallFailureStaysPending(t *testing.T) {
	d, store, advisor, _ := newTestDispatcher(t, true)
	advisor.fails["q"] = true

	subID, results := d.Subscribe()
	defer d.Unsubscribe(subID)

	sub, err := d.Submit(context.Background(), "q", storage.KindText, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Answered || sub.Notice == "" {
		t.Errorf("unexpected submission: %+v", sub)
	}

	q, _ := store.GetQuery(sub.QueryID)
	if q.Status != storage.StatusPending {
		t.Errorf("status = %q, want pending", q.Status)
	}
	if responses, _ := store.GetResponsesFor(sub.QueryID); len(responses) != 0 {
		t.Errorf("failure was persisted as a response: %+v", responses)
	}
	select {
	case r := <-results:
		t.Errorf("failure emitted a result: %+v", r)
	default:
	}
}

// Replaying twice in immediate succession must not duplicate responses.
func TestReplayIdempotent(t *testing.T) {
	d, store, advisor, _ := newTestDispatcher(t, false)

	sub, _ := d.Submit(context.Background(), "q", storage.KindText, "en")

	d.Replay(context.Background())
	d.Replay(context.Background())

	responses, _ := store.GetResponsesFor(sub.QueryID)
	if len(responses) != 1 {
		t.Errorf("responses = %d, want 1", len(responses))
	}
	if n := len(advisor.askedPrompts()); n != 1 {
		t.Errorf("advisor asked %d times, want 1", n)
	}
}

func TestReplayConcurrentInvocations(t *testing.T) {
	d, store, _, _ := newTestDispatcher(t, false)

	sub, _ := d.Submit(context.Background(), "q", storage.KindText, "en")

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Replay(context.Background())
		}()
	}
	wg.Wait()

	responses, _ := store.GetResponsesFor(sub.QueryID)
	if len(responses) != 1 {
		t.Errorf("responses = %d, want 1", len(responses))
	}
}

// Three pending queries replay in submission order; a failure in the middle
// does not stop the rest of the batch.
func TestReplayOrderAndIndependentFailures(t *testing.T) {
	d, store, advisor, _ := newTestDispatcher(t, false)
	advisor.fails["q2"] = true

	s1, _ := d.Submit(context.Background(), "q1", storage.KindText, "en")
	s2, _ := d.Submit(context.Background(), "q2", storage.KindText, "en")
	s3, _ := d.Submit(context.Background(), "q3", storage.KindText, "en")

	d.Replay(context.Background())

	asked := advisor.askedPrompts()
	if len(asked) != 3 || asked[0] != "q1" || asked[1] != "q2" || asked[2] != "q3" {
		t.Errorf("replay order wrong: %v", asked)
	}

	for _, tc := range []struct {
		id   int64
		want string
	}{
		{s1.QueryID, storage.StatusCompleted},
		{s2.QueryID, storage.StatusPending},
		{s3.QueryID, storage.StatusCompleted},
	} {
		q, _ := store.GetQuery(tc.id)
		if q.Status != tc.want {
			t.Errorf("query %d status = %q, want %q", tc.id, q.Status, tc.want)
		}
	}
}

// A reconnect edge reported to the monitor triggers replay via BindMonitor.
func TestBindMonitorTriggersReplay(t *testing.T) {
	d, store, advisor, monitor := newTestDispatcher(t, false)
	advisor.answers["q"] = "a"

	sub, _ := d.Submit(context.Background(), "q", storage.KindText, "en")

	d.BindMonitor(context.Background())
	monitor.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for {
		q, _ := store.GetQuery(sub.QueryID)
		if q.Status == storage.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("replay did not run after reconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// failingStore always errors, standing in for an unavailable database.
type failingStore struct{}

func (failingStore) SaveQuery(string, string, string) (int64, error) {
	return 0, errors.New("disk gone")
}
func (failingStore) GetPending() ([]storage.Query, error)    { return nil, errors.New("disk gone") }
func (failingStore) UpdateQueryStatus(int64, string) error   { return errors.New("disk gone") }
func (failingStore) SaveResponse(int64, string) (int64, error) {
	return 0, errors.New("disk gone")
}

// Storage failure degrades to in-memory operation instead of failing the
// submission.
func TestStorageFailureDegradesToMemory(t *testing.T) {
	advisor := newFakeAdvisor()
	advisor.answers["q"] = "a"
	monitor := connectivity.NewMonitor(true)
	d := New(failingStore{}, advisor, monitor, "en")

	sub, err := d.Submit(context.Background(), "q", storage.KindText, "en")
	if err != nil {
		t.Fatalf("Submit should survive storage failure, got %v", err)
	}
	if !sub.Answered || sub.Text != "a" {
		t.Errorf("unexpected submission: %+v", sub)
	}

	// The replacement store keeps working for subsequent submissions.
	sub2, err := d.Submit(context.Background(), "q", storage.KindText, "en")
	if err != nil || !sub2.Answered {
		t.Errorf("second submission after degradation failed: %+v, %v", sub2, err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d, _, advisor, _ := newTestDispatcher(t, true)
	advisor.answers["q"] = "a"

	id, ch := d.Subscribe()
	d.Unsubscribe(id)

	if _, err := d.Submit(context.Background(), "q", storage.KindText, "en"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("closed subscriber still received a result")
	}
}
