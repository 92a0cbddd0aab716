package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lmsilo/transcribe-backend/engine"
	"github.com/lmsilo/transcribe-backend/store"
)

func TestAssignSpeakersPicksGreatestOverlapNotMidpointContainment(t *testing.T) {
	segments := []store.Segment{{Index: 0, Start: 0, End: 10}}
	turns := []engine.SpeakerSegment{
		{Start: 0, End: 4.9, Speaker: "S0"},
		{Start: 4.9, End: 5.1, Speaker: "S1"},
		{Start: 5.1, End: 10, Speaker: "S2"},
	}

	AssignSpeakers(segments, turns)

	// the segment's midpoint (5.0) falls inside S1, which overlaps only
	// 0.2s; S0 and S2 each overlap 4.9s and tie, so the lexicographically
	// lowest label wins.
	require.Equal(t, "S0", segments[0].Speaker)
}

func TestAssignSpeakersLeavesZeroOverlapSegmentUnassigned(t *testing.T) {
	segments := []store.Segment{{Index: 0, Start: 20, End: 25}}
	turns := []engine.SpeakerSegment{
		{Start: 0, End: 5, Speaker: "S0"},
		{Start: 10, End: 15, Speaker: "S1"},
	}

	AssignSpeakers(segments, turns)

	require.Empty(t, segments[0].Speaker)
}

func TestAssignSpeakersBreaksTiesLexicographically(t *testing.T) {
	segments := []store.Segment{{Index: 0, Start: 0, End: 4}}
	turns := []engine.SpeakerSegment{
		{Start: 0, End: 2, Speaker: "SPEAKER_02"},
		{Start: 2, End: 4, Speaker: "SPEAKER_01"},
	}

	AssignSpeakers(segments, turns)

	require.Equal(t, "SPEAKER_01", segments[0].Speaker)
}

func TestAssignSpeakersExampleFromSpecOverlapScenario(t *testing.T) {
	segments := []store.Segment{{Index: 0, Start: 1.0, End: 3.0}}
	turns := []engine.SpeakerSegment{
		{Start: 0.5, End: 1.8, Speaker: "S0"},
		{Start: 1.8, End: 3.2, Speaker: "S1"},
	}

	AssignSpeakers(segments, turns)

	require.Equal(t, "S1", segments[0].Speaker, "overlap 1.2s for S1 beats 0.8s for S0")
}

func TestAssignSpeakersNoTurnsLeavesSpeakersUntouched(t *testing.T) {
	segments := []store.Segment{{Index: 0, Start: 0, End: 4, Speaker: "preexisting"}}
	AssignSpeakers(segments, nil)
	require.Equal(t, "preexisting", segments[0].Speaker)
}
