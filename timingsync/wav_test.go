package timingsync

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteWAVProducesValidRIFFHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	samples := []float32{0, 0.5, -0.5, 1, -1}

	require.NoError(t, WriteWAV(path, samples, 16000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "fmt ", string(data[12:16]))
	require.Equal(t, "data", string(data[36:40]))

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	require.EqualValues(t, 16000, sampleRate)

	dataSize := binary.LittleEndian.Uint32(data[40:44])
	require.EqualValues(t, len(samples)*2, dataSize)
	require.Len(t, data, 44+len(samples)*2)
}

func TestWriteWAVClampsOutOfRangeSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clamped.wav")
	require.NoError(t, WriteWAV(path, []float32{2.0, -2.0}, 8000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	first := int16(binary.LittleEndian.Uint16(data[44:46]))
	second := int16(binary.LittleEndian.Uint16(data[46:48]))
	require.Equal(t, int16(32767), first)
	require.Equal(t, int16(-32767), second)
}
