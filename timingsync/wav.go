package timingsync

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// WriteWAV writes mono float32 PCM as a 16-bit WAV file, clamping any sample
// outside [-1, 1] to the bounds of the format before writing.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	const bitsPerSample = 16
	const numChannels = 1
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := len(samples) * 2

	hdr := make([]byte, 0, 44)
	hdr = append(hdr, "RIFF"...)
	hdr = appendUint32(hdr, uint32(36+dataSize))
	hdr = append(hdr, "WAVE"...)
	hdr = append(hdr, "fmt "...)
	hdr = appendUint32(hdr, 16)
	hdr = appendUint16(hdr, 1) // PCM
	hdr = appendUint16(hdr, numChannels)
	hdr = appendUint32(hdr, uint32(sampleRate))
	hdr = appendUint32(hdr, uint32(byteRate))
	hdr = appendUint16(hdr, uint16(blockAlign))
	hdr = appendUint16(hdr, bitsPerSample)
	hdr = append(hdr, "data"...)
	hdr = appendUint32(hdr, uint32(dataSize))

	if _, err := f.Write(hdr); err != nil {
		return fmt.Errorf("write wav header %s: %w", path, err)
	}

	buf := make([]byte, dataSize)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clampSample(s)*math.MaxInt16)))
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write wav data %s: %w", path, err)
	}
	return nil
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
