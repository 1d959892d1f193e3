// Package voice adapts speech capabilities to the query flow: speech-to-text
// feeding the submit path and text-to-speech reading answers aloud. Both
// capabilities are optional; a bridge without them degrades to text-only.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gramvani/kisan/internal/locale"
)

// ErrNotSupported means the host has no speech capability for the requested
// operation. Callers fall back to text input/output.
var ErrNotSupported = errors.New("speech capability not available")

// ErrListening is returned when Listen is called while a capture is already
// active. The second call is a guarded no-op, never a queued attempt.
var ErrListening = errors.New("already listening")

// RecognitionError wraps a capture failure reported by the speech engine.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string { return fmt.Sprintf("speech recognition: %v", e.Err) }
func (e *RecognitionError) Unwrap() error { return e.Err }

// Recognizer captures one utterance and returns the final transcript.
type Recognizer interface {
	Recognize(ctx context.Context, speechTag string) (string, error)
}

// Synthesizer speaks text aloud, returning when the utterance ends or fails.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, speechTag string) error
}

// Bridge guards the platform speech capabilities with the concurrency rules
// the conversation needs: at most one active listen, last-call-wins speech,
// and a mute switch that silences without erroring.
type Bridge struct {
	rec Recognizer
	syn Synthesizer

	mu           sync.Mutex
	listening    bool
	listenCancel context.CancelFunc
	speakCancel  context.CancelFunc
	speakGen     int
	muted        bool
}

// NewBridge creates a bridge over the given capabilities. Either may be nil,
// in which case the corresponding operation reports ErrNotSupported.
func NewBridge(rec Recognizer, syn Synthesizer) *Bridge {
	return &Bridge{rec: rec, syn: syn}
}

// CanListen reports whether speech input is available.
func (b *Bridge) CanListen() bool { return b.rec != nil }

// CanSpeak reports whether speech output is available.
func (b *Bridge) CanSpeak() bool { return b.syn != nil }

// Listen captures a single utterance and returns its final transcript.
// Only one listen may be active per bridge; a second call returns
// ErrListening without starting a capture. StopListening settles an active
// call early.
func (b *Bridge) Listen(ctx context.Context, localeCode string) (string, error) {
	if b.rec == nil {
		return "", ErrNotSupported
	}

	b.mu.Lock()
	if b.listening {
		b.mu.Unlock()
		return "", ErrListening
	}
	ctx, cancel := context.WithCancel(ctx)
	b.listening = true
	b.listenCancel = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.listening = false
		b.listenCancel = nil
		b.mu.Unlock()
		cancel()
	}()

	transcript, err := b.rec.Recognize(ctx, locale.SpeechTag(localeCode))
	if err != nil {
		return "", &RecognitionError{Err: err}
	}
	return transcript, nil
}

// StopListening cancels an active capture, causing the pending Listen call to
// return. No-op when nothing is listening.
func (b *Bridge) StopListening() {
	b.mu.Lock()
	cancel := b.listenCancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Speak reads text aloud in the locale's speech language. A prior utterance
// still playing is cancelled first so audio never overlaps. When muted, Speak
// returns immediately without producing audio.
func (b *Bridge) Speak(ctx context.Context, text, localeCode string) error {
	if b.syn == nil {
		return ErrNotSupported
	}

	b.mu.Lock()
	if b.muted {
		b.mu.Unlock()
		return nil
	}
	if b.speakCancel != nil {
		b.speakCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	b.speakCancel = cancel
	b.speakGen++
	gen := b.speakGen
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		// A later Speak call may own speakCancel by now; only clear our own.
		if b.speakGen == gen {
			b.speakCancel = nil
		}
		b.mu.Unlock()
		cancel()
	}()

	return b.syn.Synthesize(ctx, text, locale.SpeechTag(localeCode))
}

// StopSpeaking cancels the current utterance, if any.
func (b *Bridge) StopSpeaking() {
	b.mu.Lock()
	cancel := b.speakCancel
	b.speakCancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetMuted toggles audio output. Muting also stops the current utterance.
func (b *Bridge) SetMuted(muted bool) {
	b.mu.Lock()
	b.muted = muted
	cancel := b.speakCancel
	if muted {
		b.speakCancel = nil
	}
	b.mu.Unlock()
	if muted && cancel != nil {
		cancel()
	}
}

// Muted reports the current mute state.
func (b *Bridge) Muted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.muted
}
