// Package engine defines the inference-adapter interfaces the pipeline
// executor drives — speech-to-text, speaker diarization, and text-to-speech
// — plus an idle-timeout cache for adapter instances that hold expensive
// in-process model state.
package engine

import (
	"context"

	"github.com/lmsilo/transcribe-backend/store"
)

// STTResult is what a speech-to-text adapter produces for one input file.
type STTResult struct {
	Segments         []store.Segment
	DetectedLanguage string
	Duration         float64
}

// STT transcribes one audio/video file. progress receives 0..100 as the
// adapter works through the input.
type STT interface {
	Transcribe(ctx context.Context, inputPath, modelPath, language string, progress func(pct int)) (*STTResult, error)
}

// SpeakerSegment is one diarization-assigned speaker turn.
type SpeakerSegment struct {
	Start   float64
	End     float64
	Speaker string
}

// Diarization assigns speaker turns over an audio file's timeline.
type Diarization interface {
	Diarize(ctx context.Context, inputPath, modelPath string, progress func(pct int)) ([]SpeakerSegment, error)
}

// SynthesizedAudio is one segment's synthesized PCM — returned in memory
// (rather than as a file) so the timing-sync engine can resample and place
// it directly into the combined output buffer.
type SynthesizedAudio struct {
	Samples    []float32
	SampleRate int
}

// TTS synthesizes speech for one transcript segment's text.
type TTS interface {
	Synthesize(ctx context.Context, text, voice string, progress func(pct int)) (*SynthesizedAudio, error)
}

// Adapters bundles one resolved adapter of each kind for a single job run.
type Adapters struct {
	STT         STT
	Diarization Diarization
	TTS         TTS
}
