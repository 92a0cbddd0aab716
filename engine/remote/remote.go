// Package remote adapts a sibling inference worker process — reachable over
// WebSocket — to the engine.STT/Diarization/TTS interfaces. It dials once
// per request, sends a correlation-ID-tagged job, and reads tagged responses
// until the matching one arrives, the same request/response shape the
// sibling-service clients in this backend use.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lmsilo/transcribe-backend/engine"
)

// Client dials wsURL fresh for every request.
type Client struct {
	wsURL   string
	idSeq   atomic.Int64
	timeout time.Duration
}

// New returns a Client targeting wsURL (e.g. "ws://stt-worker:9000/ws").
func New(wsURL string) *Client {
	return &Client{wsURL: wsURL, timeout: 30 * time.Second}
}

func (c *Client) nextID() string {
	return fmt.Sprintf("r%d", c.idSeq.Add(1))
}

type request struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Params map[string]any `json:"params,omitempty"`
}

type response struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Progress int             `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// call dials, sends req, and streams responses: every "progress" message
// calls onProgress; the first response carrying a matching terminal type
// (result/error) ends the call.
func (c *Client) call(ctx context.Context, req request, onProgress func(pct int)) (json.RawMessage, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", c.wsURL, err)
	}
	defer conn.Close()

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		var resp response
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}
		if resp.ID != req.ID {
			continue
		}
		switch resp.Type {
		case "progress":
			if onProgress != nil {
				onProgress(resp.Progress)
			}
		case "result":
			return resp.Result, nil
		case "error":
			return nil, fmt.Errorf("remote engine: %s", resp.Message)
		}
	}
}

func (c *Client) Transcribe(ctx context.Context, inputPath, modelPath, language string, progress func(pct int)) (*engine.STTResult, error) {
	raw, err := c.call(ctx, request{
		Type: "transcribe", ID: c.nextID(),
		Params: map[string]any{"input_path": inputPath, "model_path": modelPath, "language": language},
	}, progress)
	if err != nil {
		return nil, err
	}
	var result engine.STTResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode transcribe result: %w", err)
	}
	return &result, nil
}

func (c *Client) Diarize(ctx context.Context, inputPath, modelPath string, progress func(pct int)) ([]engine.SpeakerSegment, error) {
	raw, err := c.call(ctx, request{
		Type: "diarize", ID: c.nextID(),
		Params: map[string]any{"input_path": inputPath, "model_path": modelPath},
	}, progress)
	if err != nil {
		return nil, err
	}
	var segments []engine.SpeakerSegment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return nil, fmt.Errorf("decode diarize result: %w", err)
	}
	return segments, nil
}

func (c *Client) Synthesize(ctx context.Context, text, voice string, progress func(pct int)) (*engine.SynthesizedAudio, error) {
	raw, err := c.call(ctx, request{
		Type: "synthesize", ID: c.nextID(),
		Params: map[string]any{"text": text, "voice": voice},
	}, progress)
	if err != nil {
		return nil, err
	}
	var audio engine.SynthesizedAudio
	if err := json.Unmarshal(raw, &audio); err != nil {
		return nil, fmt.Errorf("decode synthesize result: %w", err)
	}
	return &audio, nil
}
