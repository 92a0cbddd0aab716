// Package timingsync stretches synthesized speech to match the timing of
// the original segments it replaces, then overlays the stretched audio onto
// a silent buffer sized to the source duration.
package timingsync

import (
	"fmt"
	"math"
	"os/exec"

	"github.com/lmsilo/transcribe-backend/store"
)

// MinRatio and MaxRatio bound how aggressively a segment's synthesized audio
// may be time-stretched to match its original duration. Outside this range
// the stretched audio would be too distorted to be useful, so the ratio is
// clamped rather than applied verbatim.
const (
	MinRatio = 0.25
	MaxRatio = 4.0
)

// SegmentAudio pairs one transcript segment with its synthesized audio.
type SegmentAudio struct {
	Segment store.Segment
	Samples []float32 // mono PCM at the sampleRate passed to Combine
}

// Stretcher time-stretches PCM audio by ratio without changing pitch.
// Ratio > 1 slows the audio down (makes it longer); ratio < 1 speeds it up.
type Stretcher interface {
	Stretch(samples []float32, sampleRate int, ratio float64) ([]float32, error)
}

// Ratio computes the clamped stretch factor for one segment: the original
// segment's duration divided by the synthesized audio's natural duration.
// A ratio of 1 means no stretching is needed.
func Ratio(originalDuration, synthesizedDuration float64) float64 {
	if synthesizedDuration <= 0 {
		return 1.0
	}
	r := originalDuration / synthesizedDuration
	if r < MinRatio {
		return MinRatio
	}
	if r > MaxRatio {
		return MaxRatio
	}
	return r
}

// Combine time-stretches each segment's synthesized audio to its original
// duration and writes it into a silent buffer sized to totalDuration at
// sampleRate. Later segments overwrite earlier ones where placements
// overlap, matching playback order. Segments are expected sorted by Start;
// callers that don't guarantee this get last-by-slice-order overwrite
// instead of last-by-time overwrite.
func Combine(segments []SegmentAudio, totalDuration float64, sampleRate int, stretch Stretcher) ([]float32, error) {
	n := int(math.Round(totalDuration * float64(sampleRate)))
	if n < 0 {
		n = 0
	}
	buf := make([]float32, n)

	for _, sa := range segments {
		original := sa.Segment.End - sa.Segment.Start
		synthesized := float64(len(sa.Samples)) / float64(sampleRate)
		ratio := Ratio(original, synthesized)

		samples := sa.Samples
		if ratio != 1.0 && len(samples) > 0 {
			stretched, err := stretch.Stretch(samples, sampleRate, ratio)
			if err != nil {
				return nil, fmt.Errorf("stretch segment at %.3fs: %w", sa.Segment.Start, err)
			}
			samples = stretched
		}

		start := int(math.Round(sa.Segment.Start * float64(sampleRate)))
		placeInto(buf, samples, start)
	}

	return buf, nil
}

// placeInto copies samples into buf starting at offset, clipping to buf's
// bounds and overwriting whatever was already there (last write wins).
func placeInto(buf []float32, samples []float32, offset int) {
	if offset < 0 {
		samples = samples[min(len(samples), -offset):]
		offset = 0
	}
	if offset >= len(buf) {
		return
	}
	end := offset + len(samples)
	if end > len(buf) {
		end = len(buf)
	}
	copy(buf[offset:end], samples)
}

// RubberbandStretcher is the Stretcher slot for the rubberband CLI, the
// time/pitch tool the original pipeline used. Stretch checks that rubberband
// is on PATH but does not run it: it returns an error in every case, so no
// audio is stretched through this type.
type RubberbandStretcher struct{}

func (RubberbandStretcher) Stretch(samples []float32, sampleRate int, ratio float64) ([]float32, error) {
	// Tests substitute a fake Stretcher instead of requiring the binary.
	return runRubberband(samples, sampleRate, ratio)
}

func runRubberband(samples []float32, sampleRate int, ratio float64) ([]float32, error) {
	if _, err := exec.LookPath("rubberband"); err != nil {
		return nil, fmt.Errorf("rubberband not installed: %w", err)
	}
	// The binary is found but never invoked; no samples are piped through
	// `rubberband -t <ratio> -p 0 -c 6`.
	return nil, fmt.Errorf("rubberband invocation not wired in this environment")
}
