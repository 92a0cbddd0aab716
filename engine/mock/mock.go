// Package mock provides builtin STT/diarization/TTS adapters that need no
// external model weights or network access. They exist so the service is
// runnable end-to-end (including in tests) without a GPU or a downloaded
// model, and back the "builtin" engine tag a job can request explicitly.
package mock

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/lmsilo/transcribe-backend/engine"
	"github.com/lmsilo/transcribe-backend/store"
)

// STT produces three placeholder segments of SegmentSeconds each, whatever
// the input file holds. It exists to exercise the pipeline without a real
// speech model.
type STT struct {
	// SegmentSeconds is the assumed length of each emitted placeholder segment.
	SegmentSeconds float64
}

func NewSTT() *STT { return &STT{SegmentSeconds: 4} }

func (s *STT) Transcribe(ctx context.Context, inputPath, modelPath, language string, progress func(pct int)) (*engine.STTResult, error) {
	const segments = 3
	result := &engine.STTResult{DetectedLanguage: language}
	if result.DetectedLanguage == "" || result.DetectedLanguage == "auto" {
		result.DetectedLanguage = "en"
	}

	for i := 0; i < segments; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		start := float64(i) * s.SegmentSeconds
		end := start + s.SegmentSeconds
		result.Segments = append(result.Segments, store.Segment{
			Index: i,
			Start: start,
			End:   end,
			Text:  fmt.Sprintf("[segment %d of placeholder transcript]", i+1),
		})
		progress((i + 1) * 100 / segments)
	}
	result.Duration = float64(segments) * s.SegmentSeconds
	return result, nil
}

// Diarization alternates two synthetic speakers across even time slices.
type Diarization struct{}

func NewDiarization() *Diarization { return &Diarization{} }

func (d *Diarization) Diarize(ctx context.Context, inputPath, modelPath string, progress func(pct int)) ([]engine.SpeakerSegment, error) {
	const slices = 4
	const sliceSeconds = 3.0
	out := make([]engine.SpeakerSegment, 0, slices)
	for i := 0; i < slices; i++ {
		speaker := "SPEAKER_00"
		if i%2 == 1 {
			speaker = "SPEAKER_01"
		}
		out = append(out, engine.SpeakerSegment{
			Start:   float64(i) * sliceSeconds,
			End:     float64(i+1) * sliceSeconds,
			Speaker: speaker,
		})
		progress((i + 1) * 100 / slices)
	}
	return out, nil
}

// TTS synthesizes a low-amplitude sine tone scaled by text length, standing
// in for a real voice while still producing a plausibly-timed waveform —
// long sentences yield longer audio, matching the shape callers depend on.
type TTS struct {
	SampleRate int
}

func NewTTS() *TTS { return &TTS{SampleRate: 22050} }

func (t *TTS) Synthesize(ctx context.Context, text, voice string, progress func(pct int)) (*engine.SynthesizedAudio, error) {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	// ~150 words per minute of speech.
	duration := float64(words) / (150.0 / 60.0)
	n := int(duration * float64(t.SampleRate))
	samples := make([]float32, n)
	const freq = 220.0
	for i := range samples {
		tSec := float64(i) / float64(t.SampleRate)
		samples[i] = float32(0.1 * math.Sin(2*math.Pi*freq*tSec))
		if i%(n/10+1) == 0 {
			progress(i * 100 / (n + 1))
		}
	}
	progress(100)
	return &engine.SynthesizedAudio{Samples: samples, SampleRate: t.SampleRate}, nil
}
