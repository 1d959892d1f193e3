package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blockingRecognizer waits until released (or ctx done) before returning.
type blockingRecognizer struct {
	started chan struct{}
	release chan string
	mu      sync.Mutex
	tags    []string
}

func newBlockingRecognizer() *blockingRecognizer {
	return &blockingRecognizer{
		started: make(chan struct{}, 4),
		release: make(chan string),
	}
}

func (r *blockingRecognizer) Recognize(ctx context.Context, speechTag string) (string, error) {
	r.mu.Lock()
	r.tags = append(r.tags, speechTag)
	r.mu.Unlock()
	r.started <- struct{}{}
	select {
	case t := <-r.release:
		return t, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// recordingSynthesizer records utterances and blocks until ctx is cancelled
// or it is released.
type recordingSynthesizer struct {
	mu      sync.Mutex
	spoken  []string
	blockCh chan struct{} // when non-nil, Synthesize blocks on it or ctx
}

func (s *recordingSynthesizer) Synthesize(ctx context.Context, text, speechTag string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	if s.blockCh != nil {
		select {
		case <-s.blockCh:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (s *recordingSynthesizer) utterances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// Scenario: two back-to-back listens — the second is a no-op and only one
// transcript is produced.
func TestListenSingleActive(t *testing.T) {
	rec := newBlockingRecognizer()
	b := NewBridge(rec, nil)

	type outcome struct {
		transcript string
		err        error
	}
	first := make(chan outcome, 1)
	go func() {
		text, err := b.Listen(context.Background(), "hi")
		first <- outcome{text, err}
	}()
	<-rec.started

	// Second call while the first is still capturing.
	if _, err := b.Listen(context.Background(), "hi"); !errors.Is(err, ErrListening) {
		t.Fatalf("second Listen: expected ErrListening, got %v", err)
	}

	rec.release <- "mera sawal"
	got := <-first
	if got.err != nil || got.transcript != "mera sawal" {
		t.Errorf("first Listen = %q, %v", got.transcript, got.err)
	}

	rec.mu.Lock()
	calls := len(rec.tags)
	rec.mu.Unlock()
	if calls != 1 {
		t.Errorf("recognizer invoked %d times, want 1", calls)
	}
}

func TestListenMapsLocaleToSpeechTag(t *testing.T) {
	rec := newBlockingRecognizer()
	b := NewBridge(rec, nil)

	done := make(chan struct{})
	go func() {
		b.Listen(context.Background(), "kn")
		close(done)
	}()
	<-rec.started
	rec.release <- "ok"
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.tags) != 1 || rec.tags[0] != "kn-IN" {
		t.Errorf("speech tag = %v, want [kn-IN]", rec.tags)
	}
}

func TestStopListeningSettlesPendingCall(t *testing.T) {
	rec := newBlockingRecognizer()
	b := NewBridge(rec, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Listen(context.Background(), "en")
		errCh <- err
	}()
	<-rec.started

	b.StopListening()

	select {
	case err := <-errCh:
		var re *RecognitionError
		if !errors.As(err, &re) {
			t.Errorf("expected RecognitionError after stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not settle after StopListening")
	}

	// The bridge is free for a new capture afterwards.
	go func() {
		b.Listen(context.Background(), "en")
	}()
	select {
	case <-rec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge still marked listening after stop")
	}
	rec.release <- "again"
}

func TestListenNotSupported(t *testing.T) {
	b := NewBridge(nil, nil)
	if _, err := b.Listen(context.Background(), "en"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
	if err := b.Speak(context.Background(), "hello", "en"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestSpeakMutedResolvesImmediately(t *testing.T) {
	syn := &recordingSynthesizer{}
	b := NewBridge(nil, syn)
	b.SetMuted(true)

	if err := b.Speak(context.Background(), "namaste", "hi"); err != nil {
		t.Fatalf("muted Speak: %v", err)
	}
	if len(syn.utterances()) != 0 {
		t.Error("muted Speak produced audio")
	}

	b.SetMuted(false)
	if err := b.Speak(context.Background(), "namaste", "hi"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := syn.utterances(); len(got) != 1 || got[0] != "namaste" {
		t.Errorf("utterances = %v", got)
	}
}

// A new Speak call cancels the utterance still playing (last-call-wins).
func TestSpeakCancelsPriorUtterance(t *testing.T) {
	syn := &recordingSynthesizer{blockCh: make(chan struct{})}
	b := NewBridge(nil, syn)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- b.Speak(context.Background(), "first", "en")
	}()

	// Wait for the first utterance to start playing.
	deadline := time.After(2 * time.Second)
	for len(syn.utterances()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first utterance never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- b.Speak(context.Background(), "second", "en")
	}()

	select {
	case err := <-firstDone:
		if err != nil {
			t.Errorf("cancelled utterance returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first utterance not cancelled by second Speak")
	}

	// Let the second utterance finish playing.
	close(syn.blockCh)
	if err := <-secondDone; err != nil {
		t.Errorf("second Speak: %v", err)
	}

	got := syn.utterances()
	if len(got) != 2 || got[1] != "second" {
		t.Errorf("utterances = %v", got)
	}
}
