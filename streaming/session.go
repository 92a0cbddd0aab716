// Package streaming implements the live transcription session: a rolling
// PCM16 buffer that is handed to an STT adapter whenever enough audio has
// accumulated, either because trailing energy dropped (a likely pause) or
// because the buffer grew too large to keep waiting.
package streaming

import (
	"context"
	"math"
	"sync"
)

// SampleRate is the fixed input rate a streaming session accepts, matching
// the live capture format pushed by observers.
const SampleRate = 16000

const (
	silenceRMSThreshold       = 0.01
	trailingWindowSeconds     = 1.0
	minBufferSecondsForPause  = 2.0
	maxBufferSeconds          = 5.0
)

// Transcriber runs speech-to-text over raw PCM16 samples, the streaming
// counterpart to engine.STT's file-path-based Transcribe.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int, modelID string) (string, error)
}

// Event is one emitted transcript chunk.
type Event struct {
	Text    string
	IsFinal bool
}

// Session holds one observer's rolling buffer and current model selection.
type Session struct {
	transcriber Transcriber

	mu      sync.Mutex
	buffer  []int16
	modelID string
}

// New starts a session against modelID, submitting triggered buffers to t.
func New(t Transcriber, modelID string) *Session {
	return &Session{transcriber: t, modelID: modelID}
}

// Push appends samples to the rolling buffer and, if a trigger condition is
// met, submits the accumulated buffer for transcription and clears it.
// Returns nil, nil when no trigger fired.
func (s *Session) Push(ctx context.Context, samples []int16) (*Event, error) {
	s.mu.Lock()
	s.buffer = append(s.buffer, samples...)
	triggered, isFinal := checkTrigger(s.buffer)
	if !triggered {
		s.mu.Unlock()
		return nil, nil
	}
	submit := s.buffer
	s.buffer = nil
	modelID := s.modelID
	s.mu.Unlock()

	text, err := s.transcriber.Transcribe(ctx, submit, SampleRate, modelID)
	if err != nil {
		return nil, err
	}
	return &Event{Text: text, IsFinal: isFinal}, nil
}

// Configure switches the model used for subsequent submissions without
// disturbing the buffered audio.
func (s *Session) Configure(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelID = modelID
}

// Clear discards any buffered audio without submitting it.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = nil
}

// BufferedSeconds reports how much audio is currently queued, for diagnostics.
func (s *Session) BufferedSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(len(s.buffer)) / SampleRate
}

// checkTrigger reports whether buf should be submitted now, and whether that
// submission should be marked final: a silence-ending pause is final, a
// buffer that simply grew too long without a pause is not.
func checkTrigger(buf []int16) (triggered, isFinal bool) {
	total := float64(len(buf)) / SampleRate
	if total >= maxBufferSeconds {
		return true, false
	}
	if total <= minBufferSecondsForPause {
		return false, false
	}

	trailingN := int(trailingWindowSeconds * SampleRate)
	if trailingN > len(buf) {
		trailingN = len(buf)
	}
	if rms(buf[len(buf)-trailingN:]) < silenceRMSThreshold {
		return true, true
	}
	return false, false
}

// rms computes normalized root-mean-square energy of PCM16 samples, scaled
// to [-1, 1] the way the original capture pipeline measures silence.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}
