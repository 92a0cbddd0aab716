package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lmsilo/transcribe-backend/store"
)

// Export renders a transcript in the requested output format. JSON carries
// the full segment structure (words, speaker, confidence); SRT/VTT/TXT are
// lossy views intended for subtitle players and plain reading.
func Export(t *store.Transcript, format store.OutputFormat) ([]byte, error) {
	switch format {
	case store.FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	case store.FormatSRT:
		return []byte(toSRT(t)), nil
	case store.FormatVTT:
		return []byte(toVTT(t)), nil
	case store.FormatTXT:
		return []byte(toTXT(t)), nil
	default:
		return nil, fmt.Errorf("export format %q not supported", format)
	}
}

func toSRT(t *store.Transcript) string {
	var b strings.Builder
	for i, seg := range t.Segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(seg.Start), srtTimestamp(seg.End))
		b.WriteString(speakerPrefix(seg))
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func toVTT(t *store.Transcript) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "%s --> %s\n", vttTimestamp(seg.Start), vttTimestamp(seg.End))
		b.WriteString(speakerPrefix(seg))
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

func toTXT(t *store.Transcript) string {
	var b strings.Builder
	for _, seg := range t.Segments {
		b.WriteString(speakerPrefix(seg))
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func speakerPrefix(seg store.Segment) string {
	if seg.Speaker == "" {
		return ""
	}
	return fmt.Sprintf("[%s] ", seg.Speaker)
}

// srtTimestamp formats seconds as SRT's HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	return formatTimestamp(seconds, ",")
}

// vttTimestamp formats seconds as WebVTT's HH:MM:SS.mmm.
func vttTimestamp(seconds float64) string {
	return formatTimestamp(seconds, ".")
}

func formatTimestamp(seconds float64, fracSep string) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(seconds*1000 + 0.5)
	ms := totalMillis % 1000
	totalSeconds := totalMillis / 1000
	s := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	m := totalMinutes % 60
	h := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, fracSep, ms)
}
