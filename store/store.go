// Package store defines the persistence abstraction for the transcription
// backend: jobs, batches, transcripts and their segments, registered models,
// and TTS outputs. Store is the only writer of persisted state; callers that
// mutate through it are responsible for publishing the resulting change on
// the event bus themselves — Store emits no events of its own.
package store

import (
	"context"
	"time"
)

// ---- status enums ----

// JobStatus is the job lifecycle state. Terminal statuses never transition out.
type JobStatus string

const (
	JobQueued       JobStatus = "queued"
	JobPreparing    JobStatus = "preparing"
	JobTranscribing JobStatus = "transcribing"
	JobDiarizing    JobStatus = "diarizing"
	JobSynthesizing JobStatus = "synthesizing"
	JobSyncing      JobStatus = "syncing"
	JobCompleted    JobStatus = "completed"
	JobFailed       JobStatus = "failed"
	JobCancelled    JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is legal from this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Stage tags reported alongside progress; distinct from JobStatus so the
// pipeline can report fine-grained position within a running status.
type Stage string

const (
	StagePrepare    Stage = "prepare"
	StageTranscribe Stage = "transcribe"
	StageDiarize    Stage = "diarize"
	StageSynthesize Stage = "synthesize"
	StageSync       Stage = "sync"
	StageFinalize   Stage = "finalize"
)

// BatchStatus mirrors JobStatus but only ever reaches completed or failed.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// ModelType enumerates the three pipeline stages a model can serve.
type ModelType string

const (
	ModelSTT         ModelType = "stt"
	ModelDiarization ModelType = "diarization"
	ModelTTS         ModelType = "tts"
)

// ModelSource identifies where a model's bytes come from.
type ModelSource string

const (
	SourceRegistry ModelSource = "registry"
	SourceLocal    ModelSource = "local"
	SourceURL      ModelSource = "url"
	SourceBuiltin  ModelSource = "builtin"
)

// DownloadStatus is the model materialization state.
type DownloadStatus string

const (
	DownloadAbsent     DownloadStatus = "absent"
	DownloadInProgress DownloadStatus = "downloading"
	DownloadPresent    DownloadStatus = "present"
	DownloadError      DownloadStatus = "error"
)

// OutputFormat is a requested transcript export format.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatSRT  OutputFormat = "srt"
	FormatVTT  OutputFormat = "vtt"
	FormatTXT  OutputFormat = "txt"
)

// ---- domain types ----

// Job is one submitted transcription unit.
type Job struct {
	ID             string         `json:"id"`
	BatchID        string         `json:"batch_id,omitempty"`
	Filename       string         `json:"filename"`
	InputPath      string         `json:"input_path"`
	ContentHash    string         `json:"content_hash"`
	SourceLanguage string         `json:"source_language"` // "auto" or an ISO code
	TranslateTo    string         `json:"translate_to,omitempty"`
	STTModelID     string         `json:"stt_model_id,omitempty"`
	DiarModelID    string         `json:"diarization_model_id,omitempty"`
	TTSModelID     string         `json:"tts_model_id,omitempty"`
	EnableDiarize  bool           `json:"enable_diarization"`
	EnableTTS      bool           `json:"enable_tts"`
	SyncTTSTiming  bool           `json:"sync_tts_timing"`
	Priority       int            `json:"priority"` // 1..10, 1 = most urgent
	QueuePosition  int            `json:"queue_position"`
	OutputFormats  []OutputFormat `json:"output_formats"`

	Status       JobStatus `json:"status"`
	Stage        Stage     `json:"stage,omitempty"`
	Progress     int       `json:"progress"` // 0..100
	ErrorMessage string    `json:"error_message,omitempty"`

	Duration float64 `json:"duration,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	OutputDir       string   `json:"output_dir,omitempty"`
	OutputArtifacts []string `json:"output_artifacts,omitempty"`

	CancelRequested bool `json:"-"`
}

// JobMutator is applied to the current row inside Store.UpdateJob's
// transaction; it returns the row to persist, or an error to abort.
type JobMutator func(j *Job) (*Job, error)

// JobBatch is a cohort of jobs sharing one submission.
type JobBatch struct {
	ID             string      `json:"id"`
	TotalFiles     int         `json:"total_files"`
	CompletedFiles int         `json:"completed_files"`
	FailedFiles    int         `json:"failed_files"`
	Progress       int         `json:"progress"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Word is a per-word timing within a segment, emitted by STT adapters that support it.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Segment is one timed span of a transcript.
type Segment struct {
	Index      int     `json:"index"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

// Transcript is one-to-one with a Job.
type Transcript struct {
	JobID            string    `json:"job_id"`
	DetectedLanguage string    `json:"detected_language"`
	Duration         float64   `json:"duration"`
	WordCount        int       `json:"word_count"`
	FullText         string    `json:"full_text"`
	SpeakerCount     int       `json:"speaker_count"`
	Segments         []Segment `json:"segments"`
}

// Capability describes a model's resource profile, carried over from the
// original service's model schema.
type Capability struct {
	SizeMB              int      `json:"size_mb,omitempty"`
	Languages           []string `json:"languages,omitempty"`
	RecommendedMemoryGB int      `json:"recommended_memory_gb,omitempty"`
}

// Model is a registered, possibly-downloaded inference asset.
type Model struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Type             ModelType      `json:"type"`
	Engine           string         `json:"engine"` // free-form adapter tag, e.g. "faster-whisper", "gcloud-tts"
	Source           ModelSource    `json:"source"`
	UpstreamID       string         `json:"upstream_id"`
	Revision         string         `json:"revision,omitempty"`
	Capability       Capability     `json:"capability"`
	IsDefault        bool           `json:"is_default"`
	DownloadStatus   DownloadStatus `json:"download_status"`
	DownloadProgress int            `json:"download_progress,omitempty"`
	DownloadError    string         `json:"download_error,omitempty"`
	LocalPath        string         `json:"local_path,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ModelMutator mutates a Model row inside a Store transaction.
type ModelMutator func(m *Model) (*Model, error)

// TTSOutput tracks the synthesized-audio artifact for a Job.
type TTSOutput struct {
	JobID        string  `json:"job_id"`
	AudioPath    string  `json:"audio_path"`
	SampleRate   int     `json:"sample_rate"`
	Duration     float64 `json:"duration"`
	TimingSynced bool    `json:"timing_synced"`
}

// ---- list filters ----

// ListFilter narrows a Job listing.
type ListFilter struct {
	Statuses   []JobStatus
	BatchID    string
	From, To   time.Time
	SearchText string // case-insensitive substring match on filename; transcript text is not searched
}

// Order picks the sort applied to a Job listing.
type Order int

const (
	// OrderQueue orders by (priority asc, created_at asc) — the admission order.
	OrderQueue Order = iota
	// OrderHistoryDesc orders by created_at desc.
	OrderHistoryDesc
)

// Page bounds a listing.
type Page struct {
	Offset, Limit int
}

// Stats is the read-only aggregate produced by Store.JobStats.
type Stats struct {
	CountByStatus        map[JobStatus]int
	TotalDurationSeconds float64
	AvgProcessingSeconds float64
	JobsLastHour         int
}

// ---- store interface ----

// Store is the persistence abstraction. All methods are context-aware and
// atomic per entity. It never publishes events; callers publish through the
// event bus after a successful mutation.
type Store interface {
	// ---- jobs ----
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, id string, mutate JobMutator) (*Job, error)
	ListJobs(ctx context.Context, filter ListFilter, order Order, page Page) ([]*Job, error)
	DeleteJob(ctx context.Context, id string) error
	JobStats(ctx context.Context) (*Stats, error)

	// ---- batches ----
	CreateBatch(ctx context.Context, b *JobBatch) error
	GetBatch(ctx context.Context, id string) (*JobBatch, error)
	UpdateBatch(ctx context.Context, id string, mutate func(b *JobBatch) (*JobBatch, error)) (*JobBatch, error)
	ListBatchJobs(ctx context.Context, batchID string) ([]*Job, error)
	DeleteBatch(ctx context.Context, id string) error

	// ---- transcripts ----
	PutTranscript(ctx context.Context, t *Transcript) error
	GetTranscript(ctx context.Context, jobID string) (*Transcript, error)
	RemapSpeakers(ctx context.Context, jobID string, remap map[string]string) (*Transcript, error)

	// ---- models ----
	RegisterModel(ctx context.Context, m *Model) error
	GetModel(ctx context.Context, id string) (*Model, error)
	FindModelByUpstream(ctx context.Context, engine, upstreamID string) (*Model, error)
	ListModels(ctx context.Context, typ ModelType) ([]*Model, error)
	UpdateModel(ctx context.Context, id string, mutate ModelMutator) (*Model, error)
	SetDefaultModel(ctx context.Context, id string) error
	DefaultModel(ctx context.Context, typ ModelType) (*Model, error)
	DeleteModel(ctx context.Context, id string) error

	// ---- TTS outputs ----
	PutTTSOutput(ctx context.Context, o *TTSOutput) error
	GetTTSOutput(ctx context.Context, jobID string) (*TTSOutput, error)

	// ---- config ----
	GetConfig(ctx context.Context) (map[string]any, error)
	SetConfig(ctx context.Context, data map[string]any) error

	// ---- content addressing ----
	// FindByContentHash returns the id of a completed job with identical
	// input bytes, if any, so callers can short-circuit duplicate submissions.
	FindByContentHash(ctx context.Context, hash string) (string, error)

	// ---- lifecycle ----
	Close() error
}

// Get* methods return (nil, nil) when the row is absent — pgx.ErrNoRows is
// translated here, and callers turn a nil result into a NotFound error at
// the service layer, not in Store.
