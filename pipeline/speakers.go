package pipeline

import (
	"github.com/lmsilo/transcribe-backend/engine"
	"github.com/lmsilo/transcribe-backend/store"
)

// AssignSpeakers labels each transcript segment with the diarization turn it
// overlaps most, by total temporal overlap with [seg.start, seg.end). Ties
// are broken by the lowest speaker label, lexicographically. A segment with
// zero overlap against every turn is left with no speaker.
func AssignSpeakers(segments []store.Segment, turns []engine.SpeakerSegment) {
	if len(turns) == 0 {
		return
	}
	for i := range segments {
		seg := &segments[i]

		totals := map[string]float64{}
		for _, turn := range turns {
			if ov := overlap(seg.Start, seg.End, turn.Start, turn.End); ov > 0 {
				totals[turn.Speaker] += ov
			}
		}
		bestSpeaker := ""
		bestOverlap := 0.0
		for speaker, ov := range totals {
			if ov > bestOverlap || (ov == bestOverlap && speaker < bestSpeaker) {
				bestOverlap = ov
				bestSpeaker = speaker
			}
		}
		seg.Speaker = bestSpeaker
	}
}

// overlap returns the length of the intersection of [aStart,aEnd) and
// [bStart,bEnd), or 0 if they do not intersect.
func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}
