package router

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/lmsilo/transcribe-backend/adapters"
	"github.com/lmsilo/transcribe-backend/models"
	"github.com/lmsilo/transcribe-backend/store"
	"github.com/lmsilo/transcribe-backend/streaming"
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamTranscriber bridges streaming.Session's rolling PCM16 buffer to the
// same STT adapters batch jobs use: it writes the pushed samples to a
// scratch WAV file, resolves the requested (or default) STT model, and runs
// one adapter.Transcribe call over it.
type streamTranscriber struct {
	registry *models.Registry
	resolver *adapters.Resolver
}

func (s *streamTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int, modelID string) (string, error) {
	model, err := s.registry.Resolve(ctx, store.ModelSTT, modelID)
	if err != nil {
		return "", err
	}
	adapter, err := s.resolver.STT(model)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "stream-*.wav")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	defer os.Remove(path)

	if err := writeWAV(tmp, samples, sampleRate); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	result, err := adapter.Transcribe(ctx, path, model.LocalPath, "auto", func(int) {})
	if err != nil {
		return "", err
	}

	texts := make([]string, 0, len(result.Segments))
	for _, seg := range result.Segments {
		texts = append(texts, seg.Text)
	}
	return strings.TrimSpace(strings.Join(texts, " ")), nil
}

// writeWAV emits a minimal 44-byte-header PCM16 mono WAV file.
func writeWAV(w *os.File, samples []int16, sampleRate int) error {
	dataSize := len(samples) * 2
	var header bytes.Buffer
	header.WriteString("RIFF")
	binary.Write(&header, binary.LittleEndian, uint32(36+dataSize))
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	binary.Write(&header, binary.LittleEndian, uint32(16))
	binary.Write(&header, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&header, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&header, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&header, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&header, binary.LittleEndian, uint16(2))
	binary.Write(&header, binary.LittleEndian, uint16(16))
	header.WriteString("data")
	binary.Write(&header, binary.LittleEndian, uint32(dataSize))
	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}

type streamInbound struct {
	Type    string  `json:"type"` // "audio", "config", "clear"
	Samples []int16 `json:"samples,omitempty"`
	ModelID string  `json:"model_id,omitempty"`
}

type streamOutbound struct {
	Type    string `json:"type"` // "partial", "final", "error"
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
	IsFinal bool   `json:"is_final"`
}

// streamWS runs one streaming transcription session per connection: pushed
// PCM16 frames feed streaming.Session, which emits partial/final text back
// over the same socket as the rolling buffer fills and drains.
func streamWS(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := streamUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		modelID := r.URL.Query().Get("model_id")
		bridge := &streamTranscriber{registry: d.Registry, resolver: d.Resolver}
		sess := streaming.New(bridge, modelID)

		ctx := r.Context()
		for {
			var msg streamInbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg.Type {
			case "config":
				sess.Configure(msg.ModelID)
				continue
			case "clear":
				sess.Clear()
				continue
			}

			ev, err := sess.Push(ctx, msg.Samples)
			if err != nil {
				_ = conn.WriteJSON(streamOutbound{Type: "error", Error: err.Error()})
				continue
			}
			if ev == nil {
				continue
			}
			outType := "partial"
			if ev.IsFinal {
				outType = "final"
			}
			if err := conn.WriteJSON(streamOutbound{Type: outType, Text: ev.Text, IsFinal: ev.IsFinal}); err != nil {
				return
			}
		}
	}
}
