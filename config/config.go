// Package config manages the global backend configuration.
// Defaults are loaded from an embedded YAML file; the live config is stored
// in a single DB row and read/written via the ConfigStore interface.
package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config.default.yaml
var defaultYAML []byte

// Data holds the serialisable global configuration.
type Data struct {
	MaxConcurrentJobs  int    `json:"max_concurrent_jobs"   yaml:"max_concurrent_jobs"`
	ModelIdleTimeout   string `json:"model_idle_timeout"    yaml:"model_idle_timeout"`
	ComputeDevice      string `json:"compute_device"        yaml:"compute_device"` // "cpu", "cuda", "auto"
	ComputeType        string `json:"compute_type"          yaml:"compute_type"`   // "int8", "float16", "float32"

	UploadDir string `json:"upload_dir" yaml:"upload_dir"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	ModelDir  string `json:"model_dir"  yaml:"model_dir"`

	MaxUploadSizeMB int    `json:"max_upload_size_mb" yaml:"max_upload_size_mb"`
	HFToken         string `json:"hf_token"           yaml:"hf_token"`

	DefaultSTTModel  string `json:"default_stt_model"  yaml:"default_stt_model"`
	DefaultTTSEngine string `json:"default_tts_engine" yaml:"default_tts_engine"`

	EventBufferPerSubscriber int `json:"event_buffer_per_subscriber" yaml:"event_buffer_per_subscriber"`
}

// ConfigStore is the persistence interface for the live config row.
// Implemented by store/postgres.DB; defined here to avoid circular imports.
type ConfigStore interface {
	GetConfig(ctx context.Context) (map[string]any, error)
	SetConfig(ctx context.Context, data map[string]any) error
}

// Global is a thread-safe, DB-backed wrapper around Data.
type Global struct {
	mu   sync.RWMutex
	data Data
	st   ConfigStore
}

// Load initialises Global from the DB.
// If the DB row is empty/missing, the embedded default YAML is seeded.
func Load(ctx context.Context, st ConfigStore) (*Global, error) {
	g := &Global{st: st, data: defaults()}

	raw, err := st.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		if err := g.persistDefaults(ctx); err != nil {
			return nil, err
		}
		return g, nil
	}

	// Re-serialise the map → JSON → Data so we benefit from json tags.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &g.data); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Global) persistDefaults(ctx context.Context) error {
	b, err := json.Marshal(g.data)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	return g.st.SetConfig(ctx, m)
}

// defaults returns the built-in configuration by parsing the embedded YAML.
func defaults() Data {
	var d Data
	_ = yaml.Unmarshal(defaultYAML, &d)
	return d
}

// Get returns a thread-safe copy of the current configuration.
func (g *Global) Get() Data {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.data
}

// Set replaces the configuration and persists it to the DB.
func (g *Global) Set(ctx context.Context, d Data) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if err := g.st.SetConfig(ctx, m); err != nil {
		return err
	}
	g.mu.Lock()
	g.data = d
	g.mu.Unlock()
	return nil
}
