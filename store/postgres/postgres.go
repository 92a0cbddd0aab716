// Package postgres provides the PostgreSQL-backed Store implementation.
// It uses pgx/v5 (pure Go, no CGO) and runs embedded migrations at startup.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmsilo/transcribe-backend/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB implements store.Store using PostgreSQL via pgx/v5.
type DB struct {
	pool *pgxpool.Pool

	// hashSeen is a fast negative-membership probe over known content
	// hashes, populated at Open and updated on every CreateJob. A miss
	// here always means "not a duplicate"; a hit still requires the DB
	// round trip in FindByContentHash to confirm.
	hashMu   sync.Mutex
	hashSeen *bloom.BloomFilter
}

// Open creates a connection pool, runs migrations, and returns a ready DB.
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	d := &DB{pool: pool, hashSeen: bloom.NewWithEstimates(100_000, 0.01)}
	if err := d.warmHashFilter(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("warm hash filter: %w", err)
	}
	return d, nil
}

func (d *DB) warmHashFilter(ctx context.Context) error {
	rows, err := d.pool.Query(ctx, `SELECT content_hash FROM jobs WHERE content_hash != ''`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return err
		}
		d.hashSeen.AddString(h)
	}
	return rows.Err()
}

// RunMigrations applies all pending up-migrations against dsn.
// Safe to call multiple times — ErrNoChange is treated as success.
// Called by initdb (as exported) and by Open (internally).
func RunMigrations(dsn string) error { return runMigrations(dsn) }

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	migrateURL := toMigrateURL(dsn)
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// toMigrateURL converts a postgres:// or postgresql:// DSN to the pgx5:// scheme
// expected by golang-migrate's pgx/v5 driver.
func toMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + dsn[len(prefix):]
		}
	}
	return "pgx5://" + dsn
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// ---- jobs ----

func (d *DB) CreateJob(ctx context.Context, j *store.Job) error {
	formats := formatsToStrings(j.OutputFormats)
	err := d.pool.QueryRow(ctx, `
		INSERT INTO jobs (
			id, batch_id, filename, input_path, content_hash, source_language, translate_to,
			stt_model_id, diarization_model_id, tts_model_id,
			enable_diarization, enable_tts, sync_tts_timing,
			priority, output_formats, status, stage, progress, created_at
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, $5, $6, $7,
			NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			$11, $12, $13,
			$14, $15, $16, $17, $18, now()
		)
		RETURNING created_at
	`, j.ID, j.BatchID, j.Filename, j.InputPath, j.ContentHash, j.SourceLanguage, j.TranslateTo,
		j.STTModelID, j.DiarModelID, j.TTSModelID,
		j.EnableDiarize, j.EnableTTS, j.SyncTTSTiming,
		j.Priority, formats, string(j.Status), string(j.Stage), j.Progress,
	).Scan(&j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if j.ContentHash != "" {
		d.hashMu.Lock()
		d.hashSeen.AddString(j.ContentHash)
		d.hashMu.Unlock()
	}
	return nil
}

func (d *DB) GetJob(ctx context.Context, id string) (*store.Job, error) {
	row := d.pool.QueryRow(ctx, jobSelect+` WHERE id = $1`, id)
	return scanJob(row)
}

func (d *DB) UpdateJob(ctx context.Context, id string, mutate store.JobMutator) (*store.Job, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, jobSelect+` WHERE id = $1 FOR UPDATE`, id)
	cur, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, nil
	}

	next, err := mutate(cur)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET
			status = $2, stage = $3, progress = $4, error_message = $5,
			duration = $6, started_at = $7, completed_at = $8,
			output_dir = $9, output_artifacts = $10, priority = $11
		WHERE id = $1
	`, id, string(next.Status), string(next.Stage), next.Progress, next.ErrorMessage,
		next.Duration, next.StartedAt, next.CompletedAt,
		next.OutputDir, next.OutputArtifacts, next.Priority)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (d *DB) ListJobs(ctx context.Context, filter store.ListFilter, order store.Order, page store.Page) ([]*store.Job, error) {
	q := strings.Builder{}
	q.WriteString(jobSelect + ` WHERE 1=1`)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		ss := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			ss[i] = string(s)
		}
		q.WriteString(" AND status = ANY(" + arg(ss) + ")")
	}
	if filter.BatchID != "" {
		q.WriteString(" AND batch_id = " + arg(filter.BatchID))
	}
	if !filter.From.IsZero() {
		q.WriteString(" AND created_at >= " + arg(filter.From))
	}
	if !filter.To.IsZero() {
		q.WriteString(" AND created_at <= " + arg(filter.To))
	}
	if filter.SearchText != "" {
		q.WriteString(" AND filename ILIKE " + arg("%"+filter.SearchText+"%"))
	}

	switch order {
	case store.OrderHistoryDesc:
		q.WriteString(" ORDER BY created_at DESC")
	default:
		q.WriteString(" ORDER BY priority ASC, created_at ASC")
	}

	if page.Limit > 0 {
		q.WriteString(" LIMIT " + arg(page.Limit))
	}
	if page.Offset > 0 {
		q.WriteString(" OFFSET " + arg(page.Offset))
	}

	rows, err := d.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*store.Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (d *DB) DeleteJob(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	return err
}

func (d *DB) JobStats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{CountByStatus: map[store.JobStatus]int{}}

	rows, err := d.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var s string
		var c int
		if err := rows.Scan(&s, &c); err != nil {
			rows.Close()
			return nil, err
		}
		stats.CountByStatus[store.JobStatus(s)] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = d.pool.QueryRow(ctx, `SELECT COALESCE(SUM(duration), 0) FROM jobs WHERE status = 'completed'`).
		Scan(&stats.TotalDurationSeconds)
	if err != nil {
		return nil, err
	}

	err = d.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))), 0)
		FROM jobs WHERE status = 'completed' AND started_at IS NOT NULL AND completed_at IS NOT NULL
	`).Scan(&stats.AvgProcessingSeconds)
	if err != nil {
		return nil, err
	}

	err = d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE created_at >= now() - interval '1 hour'`).
		Scan(&stats.JobsLastHour)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

const jobSelect = `
	SELECT id, COALESCE(batch_id, ''), filename, input_path, content_hash, source_language,
		COALESCE(translate_to, ''), COALESCE(stt_model_id, ''), COALESCE(diarization_model_id, ''),
		COALESCE(tts_model_id, ''), enable_diarization, enable_tts, sync_tts_timing,
		priority, output_formats, status, stage, progress, COALESCE(error_message, ''),
		duration, created_at, started_at, completed_at, COALESCE(output_dir, ''), output_artifacts
	FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row pgx.Row) (*store.Job, error) {
	return scanJobRow(row)
}

func scanJobRow(row rowScanner) (*store.Job, error) {
	var j store.Job
	var formats, artifacts []string
	var status, stage string
	err := row.Scan(
		&j.ID, &j.BatchID, &j.Filename, &j.InputPath, &j.ContentHash, &j.SourceLanguage,
		&j.TranslateTo, &j.STTModelID, &j.DiarModelID,
		&j.TTSModelID, &j.EnableDiarize, &j.EnableTTS, &j.SyncTTSTiming,
		&j.Priority, &formats, &status, &stage, &j.Progress, &j.ErrorMessage,
		&j.Duration, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.OutputDir, &artifacts,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.Status = store.JobStatus(status)
	j.Stage = store.Stage(stage)
	j.OutputArtifacts = artifacts
	j.OutputFormats = stringsToFormats(formats)
	return &j, nil
}

func formatsToStrings(fs []store.OutputFormat) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

func stringsToFormats(ss []string) []store.OutputFormat {
	out := make([]store.OutputFormat, len(ss))
	for i, s := range ss {
		out[i] = store.OutputFormat(s)
	}
	return out
}

// ---- batches ----

func (d *DB) CreateBatch(ctx context.Context, b *store.JobBatch) error {
	return d.pool.QueryRow(ctx, `
		INSERT INTO job_batches (id, total_files, status, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING created_at
	`, b.ID, b.TotalFiles, string(b.Status)).Scan(&b.CreatedAt)
}

func (d *DB) GetBatch(ctx context.Context, id string) (*store.JobBatch, error) {
	var b store.JobBatch
	var status string
	err := d.pool.QueryRow(ctx, `
		SELECT id, total_files, completed_files, failed_files, progress, status, created_at
		FROM job_batches WHERE id = $1
	`, id).Scan(&b.ID, &b.TotalFiles, &b.CompletedFiles, &b.FailedFiles, &b.Progress, &status, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Status = store.BatchStatus(status)
	return &b, nil
}

func (d *DB) UpdateBatch(ctx context.Context, id string, mutate func(b *store.JobBatch) (*store.JobBatch, error)) (*store.JobBatch, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var b store.JobBatch
	var status string
	err = tx.QueryRow(ctx, `
		SELECT id, total_files, completed_files, failed_files, progress, status, created_at
		FROM job_batches WHERE id = $1 FOR UPDATE
	`, id).Scan(&b.ID, &b.TotalFiles, &b.CompletedFiles, &b.FailedFiles, &b.Progress, &status, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Status = store.BatchStatus(status)

	next, err := mutate(&b)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE job_batches SET completed_files = $2, failed_files = $3, progress = $4, status = $5
		WHERE id = $1
	`, id, next.CompletedFiles, next.FailedFiles, next.Progress, string(next.Status))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

func (d *DB) ListBatchJobs(ctx context.Context, batchID string) ([]*store.Job, error) {
	rows, err := d.pool.Query(ctx, jobSelect+` WHERE batch_id = $1 ORDER BY created_at`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []*store.Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (d *DB) DeleteBatch(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM job_batches WHERE id = $1`, id)
	return err
}

// ---- transcripts ----

func (d *DB) PutTranscript(ctx context.Context, t *store.Transcript) error {
	segJSON, err := json.Marshal(t.Segments)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO transcripts (job_id, detected_language, duration, word_count, full_text, speaker_count, segments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			detected_language = $2, duration = $3, word_count = $4,
			full_text = $5, speaker_count = $6, segments = $7
	`, t.JobID, t.DetectedLanguage, t.Duration, t.WordCount, t.FullText, t.SpeakerCount, segJSON)
	return err
}

func (d *DB) GetTranscript(ctx context.Context, jobID string) (*store.Transcript, error) {
	var t store.Transcript
	var segJSON []byte
	err := d.pool.QueryRow(ctx, `
		SELECT job_id, detected_language, duration, word_count, full_text, speaker_count, segments
		FROM transcripts WHERE job_id = $1
	`, jobID).Scan(&t.JobID, &t.DetectedLanguage, &t.Duration, &t.WordCount, &t.FullText, &t.SpeakerCount, &segJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(segJSON, &t.Segments); err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *DB) RemapSpeakers(ctx context.Context, jobID string, remap map[string]string) (*store.Transcript, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var t store.Transcript
	var segJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT job_id, detected_language, duration, word_count, full_text, speaker_count, segments
		FROM transcripts WHERE job_id = $1 FOR UPDATE
	`, jobID).Scan(&t.JobID, &t.DetectedLanguage, &t.Duration, &t.WordCount, &t.FullText, &t.SpeakerCount, &segJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(segJSON, &t.Segments); err != nil {
		return nil, err
	}

	speakers := map[string]struct{}{}
	for i := range t.Segments {
		if newName, ok := remap[t.Segments[i].Speaker]; ok {
			t.Segments[i].Speaker = newName
		}
		if t.Segments[i].Speaker != "" {
			speakers[t.Segments[i].Speaker] = struct{}{}
		}
	}
	t.SpeakerCount = len(speakers)

	newJSON, err := json.Marshal(t.Segments)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE transcripts SET segments = $2, speaker_count = $3 WHERE job_id = $1`,
		jobID, newJSON, t.SpeakerCount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &t, nil
}

// ---- models ----

const modelSelect = `
	SELECT id, name, type, engine, source, upstream_id, COALESCE(revision, ''),
		capability, is_default, download_status, download_progress, COALESCE(download_error, ''),
		COALESCE(local_path, ''), created_at
	FROM models`

func (d *DB) RegisterModel(ctx context.Context, m *store.Model) error {
	capJSON, err := json.Marshal(m.Capability)
	if err != nil {
		return err
	}
	return d.pool.QueryRow(ctx, `
		INSERT INTO models (id, name, type, engine, source, upstream_id, revision, capability,
			is_default, download_status, download_progress, local_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, NULLIF($12, ''), now())
		RETURNING created_at
	`, m.ID, m.Name, string(m.Type), m.Engine, string(m.Source), m.UpstreamID, m.Revision, capJSON,
		m.IsDefault, string(m.DownloadStatus), m.DownloadProgress, m.LocalPath).Scan(&m.CreatedAt)
}

func (d *DB) GetModel(ctx context.Context, id string) (*store.Model, error) {
	return scanModel(d.pool.QueryRow(ctx, modelSelect+` WHERE id = $1`, id))
}

func (d *DB) FindModelByUpstream(ctx context.Context, engine, upstreamID string) (*store.Model, error) {
	return scanModel(d.pool.QueryRow(ctx, modelSelect+` WHERE engine = $1 AND upstream_id = $2`, engine, upstreamID))
}

func (d *DB) ListModels(ctx context.Context, typ store.ModelType) ([]*store.Model, error) {
	var rows pgx.Rows
	var err error
	if typ == "" {
		rows, err = d.pool.Query(ctx, modelSelect+` ORDER BY type, name`)
	} else {
		rows, err = d.pool.Query(ctx, modelSelect+` WHERE type = $1 ORDER BY name`, string(typ))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Model
	for rows.Next() {
		m, err := scanModelRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) UpdateModel(ctx context.Context, id string, mutate store.ModelMutator) (*store.Model, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := scanModel(tx.QueryRow(ctx, modelSelect+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil || cur == nil {
		return cur, err
	}
	next, err := mutate(cur)
	if err != nil {
		return nil, err
	}
	capJSON, err := json.Marshal(next.Capability)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE models SET download_status = $2, download_progress = $3, download_error = $4,
			local_path = $5, capability = $6
		WHERE id = $1
	`, id, string(next.DownloadStatus), next.DownloadProgress, next.DownloadError, next.LocalPath, capJSON)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

// SetDefaultModel clears the default flag for every model of the target's
// type and sets it on id, atomically — enforcing at-most-one-default-per-type.
func (d *DB) SetDefaultModel(ctx context.Context, id string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var typ string
	if err := tx.QueryRow(ctx, `SELECT type FROM models WHERE id = $1`, id).Scan(&typ); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE models SET is_default = false WHERE type = $1`, typ); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE models SET is_default = true WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (d *DB) DefaultModel(ctx context.Context, typ store.ModelType) (*store.Model, error) {
	return scanModel(d.pool.QueryRow(ctx, modelSelect+` WHERE type = $1 AND is_default = true`, string(typ)))
}

func (d *DB) DeleteModel(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM models WHERE id = $1`, id)
	return err
}

func scanModel(row pgx.Row) (*store.Model, error) {
	return scanModelRow(row)
}

func scanModelRow(row rowScanner) (*store.Model, error) {
	var m store.Model
	var typ, source, status string
	var capJSON []byte
	err := row.Scan(&m.ID, &m.Name, &typ, &m.Engine, &source, &m.UpstreamID, &m.Revision,
		&capJSON, &m.IsDefault, &status, &m.DownloadProgress, &m.DownloadError, &m.LocalPath, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Type = store.ModelType(typ)
	m.Source = store.ModelSource(source)
	m.DownloadStatus = store.DownloadStatus(status)
	if len(capJSON) > 0 {
		if err := json.Unmarshal(capJSON, &m.Capability); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// ---- TTS outputs ----

func (d *DB) PutTTSOutput(ctx context.Context, o *store.TTSOutput) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO tts_outputs (job_id, audio_path, sample_rate, duration, timing_synced)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE SET
			audio_path = $2, sample_rate = $3, duration = $4, timing_synced = $5
	`, o.JobID, o.AudioPath, o.SampleRate, o.Duration, o.TimingSynced)
	return err
}

func (d *DB) GetTTSOutput(ctx context.Context, jobID string) (*store.TTSOutput, error) {
	var o store.TTSOutput
	err := d.pool.QueryRow(ctx, `
		SELECT job_id, audio_path, sample_rate, duration, timing_synced
		FROM tts_outputs WHERE job_id = $1
	`, jobID).Scan(&o.JobID, &o.AudioPath, &o.SampleRate, &o.Duration, &o.TimingSynced)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &o, err
}

// ---- config ----

func (d *DB) GetConfig(ctx context.Context) (map[string]any, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx, `SELECT data FROM config WHERE id = 1`).Scan(&raw)
	if err == pgx.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *DB) SetConfig(ctx context.Context, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO config (id, data) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET data = $1
	`, raw)
	return err
}

// ---- content addressing ----

func (d *DB) FindByContentHash(ctx context.Context, hash string) (string, error) {
	if hash == "" {
		return "", nil
	}
	d.hashMu.Lock()
	maybe := d.hashSeen.TestString(hash)
	d.hashMu.Unlock()
	if !maybe {
		return "", nil
	}

	var id string
	err := d.pool.QueryRow(ctx, `
		SELECT id FROM jobs WHERE content_hash = $1 AND status = 'completed'
		ORDER BY created_at DESC LIMIT 1
	`, hash).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return id, err
}
