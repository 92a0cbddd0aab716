// Package adapters wires store.Model rows to concrete engine implementations
// — the mock/builtin adapters, the Google Cloud TTS adapter, and the remote
// WebSocket worker client — behind pipeline.AdapterResolver, with an idle-
// timeout cache so repeated jobs against the same model reuse one instance.
package adapters

import (
	"context"
	"fmt"

	"github.com/lmsilo/transcribe-backend/engine"
	"github.com/lmsilo/transcribe-backend/engine/gcloudtts"
	"github.com/lmsilo/transcribe-backend/engine/mock"
	"github.com/lmsilo/transcribe-backend/engine/remote"
	"github.com/lmsilo/transcribe-backend/store"
)

// RemoteEndpoints maps an engine tag (e.g. "whisper-remote") to the
// WebSocket URL of the sibling inference worker that serves it.
type RemoteEndpoints map[string]string

// Resolver builds and caches engine adapters for registered models.
type Resolver struct {
	cache       *engine.Cache
	device      string
	computeType string
	remotes     RemoteEndpoints
}

// New constructs a Resolver. device/computeType are part of the cache key so
// the same model loaded for two different devices gets two instances.
func New(cache *engine.Cache, device, computeType string, remotes RemoteEndpoints) *Resolver {
	if remotes == nil {
		remotes = RemoteEndpoints{}
	}
	return &Resolver{cache: cache, device: device, computeType: computeType, remotes: remotes}
}

func (r *Resolver) STT(m *store.Model) (engine.STT, error) {
	v, err := r.cache.GetOrCreate("stt", m.Engine, m.LocalPath, r.device, r.computeType, func() (any, error) {
		switch m.Engine {
		case "", "mock", "builtin":
			return mock.NewSTT(), nil
		default:
			if url, ok := r.remotes[m.Engine]; ok {
				return remote.New(url), nil
			}
			return nil, fmt.Errorf("no stt adapter registered for engine %q", m.Engine)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(engine.STT), nil
}

func (r *Resolver) Diarization(m *store.Model) (engine.Diarization, error) {
	v, err := r.cache.GetOrCreate("diarization", m.Engine, m.LocalPath, r.device, r.computeType, func() (any, error) {
		switch m.Engine {
		case "", "mock", "builtin":
			return mock.NewDiarization(), nil
		default:
			if url, ok := r.remotes[m.Engine]; ok {
				return remote.New(url), nil
			}
			return nil, fmt.Errorf("no diarization adapter registered for engine %q", m.Engine)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(engine.Diarization), nil
}

func (r *Resolver) TTS(m *store.Model) (engine.TTS, error) {
	v, err := r.cache.GetOrCreate("tts", m.Engine, m.LocalPath, r.device, r.computeType, func() (any, error) {
		switch m.Engine {
		case "", "mock", "builtin":
			return mock.NewTTS(), nil
		case "gcloud-tts":
			return gcloudtts.New(context.Background())
		default:
			if url, ok := r.remotes[m.Engine]; ok {
				return remote.New(url), nil
			}
			return nil, fmt.Errorf("no tts adapter registered for engine %q", m.Engine)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(engine.TTS), nil
}
