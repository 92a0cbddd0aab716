// Package pipeline drives one job through its staged execution: prepare,
// transcribe, optionally diarize, optionally synthesize speech, optionally
// sync TTS timing to the original segments, then finalize. Progress is
// reported within a fixed band per stage so observers see monotonically
// increasing percentages regardless of how many optional stages a job runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmsilo/transcribe-backend/apierr"
	"github.com/lmsilo/transcribe-backend/engine"
	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/models"
	"github.com/lmsilo/transcribe-backend/store"
	"github.com/lmsilo/transcribe-backend/timingsync"
)

// syncSampleRate is the fixed sample rate output artifacts are written at;
// TTS adapters in this service all synthesize at or are resampled to it.
const syncSampleRate = 22050

// videoExts are the source extensions that get a remuxed video_with_tts.mp4
// alongside the synced audio artifact.
var videoExts = map[string]bool{
	".mp4": true, ".webm": true, ".mpeg": true, ".mov": true, ".avi": true, ".mkv": true,
}

// band is the [start, end] progress range a stage is allowed to report
// within; reporting is always monotonic because later bands start no lower
// than earlier ones end.
type band struct{ start, end int }

var (
	bandPrepare    = band{0, 5}
	bandTranscribe = band{5, 60}
	bandDiarize    = band{60, 75}
	bandSynthesize = band{75, 90}
	bandSync       = band{90, 99}
	bandFinalize   = band{99, 100}
)

func (b band) at(fraction float64) int {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return b.start + int(float64(b.end-b.start)*fraction)
}

// AdapterResolver constructs an inference adapter for a registered model.
// Implementations own adapter-instance caching (see engine.Cache).
type AdapterResolver interface {
	STT(m *store.Model) (engine.STT, error)
	Diarization(m *store.Model) (engine.Diarization, error)
	TTS(m *store.Model) (engine.TTS, error)
}

// Executor runs jobs to completion against the store, publishing progress on
// the event bus as it goes.
type Executor struct {
	Store     store.Store
	Bus       *eventbus.Bus
	Registry  *models.Registry
	Adapters  AdapterResolver
	Stretcher timingsync.Stretcher

	// OutputDir is the root directory synthesize/sync write job artifacts
	// under, as <OutputDir>/<job_id>/.... Empty disables on-disk persistence
	// (used by tests that only assert on the in-memory transcript/TTS rows).
	OutputDir string
}

// Run drives jobID through every stage its flags enable. Once the job has
// been marked preparing, Run leaves it in a terminal status (completed,
// failed, or cancelled) before returning; a stage failure is recorded on the
// job row and also returned, for the caller to log.
func (e *Executor) Run(ctx context.Context, jobID string) error {
	job, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", jobID, apierr.ErrNotFound)
	}

	now := time.Now()
	job, err = e.Store.UpdateJob(ctx, jobID, func(j *store.Job) (*store.Job, error) {
		j.Status = store.JobPreparing
		j.Stage = store.StagePrepare
		j.StartedAt = &now
		return j, nil
	})
	if err != nil {
		return fmt.Errorf("mark preparing: %w", err)
	}
	e.publish(jobID, eventbus.TypeStatusChanged, job.Status)

	runErr := e.runStages(ctx, job)
	if runErr != nil {
		e.fail(ctx, jobID, runErr)
		return runErr
	}
	return nil
}

func (e *Executor) runStages(ctx context.Context, job *store.Job) error {
	if err := e.checkCancel(ctx, job.ID); err != nil {
		return err
	}
	if err := e.prepare(ctx, job); err != nil {
		return err
	}

	transcript, err := e.transcribe(ctx, job)
	if err != nil {
		return err
	}

	if job.EnableDiarize {
		if err := e.checkCancel(ctx, job.ID); err != nil {
			return err
		}
		if err := e.diarize(ctx, job, transcript); err != nil {
			return err
		}
	}

	var ttsAudio []timingsync.SegmentAudio
	if job.EnableTTS {
		if err := e.checkCancel(ctx, job.ID); err != nil {
			return err
		}
		ttsAudio, err = e.synthesize(ctx, job, transcript)
		if err != nil {
			return err
		}
	}

	if job.EnableTTS && job.SyncTTSTiming {
		if err := e.checkCancel(ctx, job.ID); err != nil {
			return err
		}
		if err := e.sync(ctx, job, transcript, ttsAudio); err != nil {
			return err
		}
	}

	return e.finalize(ctx, job, transcript)
}

func (e *Executor) prepare(ctx context.Context, job *store.Job) error {
	e.report(ctx, job.ID, store.StagePrepare, bandPrepare.at(1.0))
	return nil
}

func (e *Executor) transcribe(ctx context.Context, job *store.Job) (*store.Transcript, error) {
	model, err := e.Registry.Resolve(ctx, store.ModelSTT, job.STTModelID)
	if err != nil {
		return nil, fmt.Errorf("resolve stt model: %w", err)
	}
	adapter, err := e.Adapters.STT(model)
	if err != nil {
		return nil, fmt.Errorf("build stt adapter: %w: %v", apierr.ErrEngine, err)
	}

	e.transition(ctx, job.ID, store.JobTranscribing, store.StageTranscribe, bandTranscribe.start)

	result, err := adapter.Transcribe(ctx, job.InputPath, model.LocalPath, job.SourceLanguage, func(pct int) {
		e.report(ctx, job.ID, store.StageTranscribe, bandTranscribe.at(float64(pct)/100))
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w: %v", apierr.ErrEngine, err)
	}

	transcript := &store.Transcript{
		JobID:            job.ID,
		DetectedLanguage: result.DetectedLanguage,
		Duration:         result.Duration,
		Segments:         result.Segments,
	}
	transcript.WordCount = countWords(transcript.Segments)
	if err := e.Store.PutTranscript(ctx, transcript); err != nil {
		return nil, fmt.Errorf("persist transcript: %w", err)
	}
	if _, err := e.Store.UpdateJob(ctx, job.ID, func(j *store.Job) (*store.Job, error) {
		j.Duration = result.Duration
		return j, nil
	}); err != nil {
		return nil, fmt.Errorf("persist job duration: %w", err)
	}

	e.report(ctx, job.ID, store.StageTranscribe, bandTranscribe.at(1.0))
	return transcript, nil
}

func (e *Executor) diarize(ctx context.Context, job *store.Job, transcript *store.Transcript) error {
	model, err := e.Registry.Resolve(ctx, store.ModelDiarization, job.DiarModelID)
	if err != nil {
		return fmt.Errorf("resolve diarization model: %w", err)
	}
	adapter, err := e.Adapters.Diarization(model)
	if err != nil {
		return fmt.Errorf("build diarization adapter: %w: %v", apierr.ErrEngine, err)
	}

	e.transition(ctx, job.ID, store.JobDiarizing, store.StageDiarize, bandDiarize.start)

	turns, err := adapter.Diarize(ctx, job.InputPath, model.LocalPath, func(pct int) {
		e.report(ctx, job.ID, store.StageDiarize, bandDiarize.at(float64(pct)/100))
	})
	if err != nil {
		return fmt.Errorf("diarize: %w: %v", apierr.ErrEngine, err)
	}

	AssignSpeakers(transcript.Segments, turns)
	speakers := map[string]struct{}{}
	for _, seg := range transcript.Segments {
		if seg.Speaker != "" {
			speakers[seg.Speaker] = struct{}{}
		}
	}
	transcript.SpeakerCount = len(speakers)
	if err := e.Store.PutTranscript(ctx, transcript); err != nil {
		return fmt.Errorf("persist diarized transcript: %w", err)
	}

	e.report(ctx, job.ID, store.StageDiarize, bandDiarize.at(1.0))
	return nil
}

func (e *Executor) synthesize(ctx context.Context, job *store.Job, transcript *store.Transcript) ([]timingsync.SegmentAudio, error) {
	model, err := e.Registry.Resolve(ctx, store.ModelTTS, job.TTSModelID)
	if err != nil {
		return nil, fmt.Errorf("resolve tts model: %w", err)
	}
	adapter, err := e.Adapters.TTS(model)
	if err != nil {
		return nil, fmt.Errorf("build tts adapter: %w: %v", apierr.ErrEngine, err)
	}

	e.transition(ctx, job.ID, store.JobSynthesizing, store.StageSynthesize, bandSynthesize.start)

	jobDir, err := e.ensureJobDir(job.ID)
	if err != nil {
		return nil, err
	}

	out := make([]timingsync.SegmentAudio, 0, len(transcript.Segments))
	var concatenated []float32
	for i, seg := range transcript.Segments {
		if err := e.checkCancel(ctx, job.ID); err != nil {
			return nil, err
		}
		audio, err := adapter.Synthesize(ctx, seg.Text, seg.Speaker, func(int) {})
		if err != nil {
			return nil, fmt.Errorf("synthesize segment %d: %w: %v", seg.Index, apierr.ErrEngine, err)
		}
		samples := audio.Samples
		if audio.SampleRate > 0 && audio.SampleRate != syncSampleRate && len(samples) > 1 {
			// Linear resample to syncSampleRate.
			step := float64(audio.SampleRate) / syncSampleRate
			resampled := make([]float32, int(float64(len(samples))/step))
			for j := range resampled {
				pos := float64(j) * step
				k := int(pos)
				if k+1 >= len(samples) {
					resampled[j] = samples[len(samples)-1]
					continue
				}
				frac := float32(pos - float64(k))
				resampled[j] = samples[k]*(1-frac) + samples[k+1]*frac
			}
			samples = resampled
		}
		out = append(out, timingsync.SegmentAudio{Segment: seg, Samples: samples})
		concatenated = append(concatenated, samples...)

		if jobDir != "" {
			segPath := filepath.Join(jobDir, fmt.Sprintf("segment_%04d.wav", seg.Index))
			if err := timingsync.WriteWAV(segPath, samples, syncSampleRate); err != nil {
				return nil, fmt.Errorf("write segment audio: %w", err)
			}
		}
		e.report(ctx, job.ID, store.StageSynthesize, bandSynthesize.at(float64(i+1)/float64(len(transcript.Segments))))
	}

	artifacts := []string{}
	var outPath string
	if jobDir != "" {
		outPath = filepath.Join(jobDir, "tts_output.wav")
		if err := timingsync.WriteWAV(outPath, concatenated, syncSampleRate); err != nil {
			return nil, fmt.Errorf("write tts output: %w", err)
		}
		artifacts = append(artifacts, "tts_output.wav")
	}

	if err := e.Store.PutTTSOutput(ctx, &store.TTSOutput{
		JobID:      job.ID,
		AudioPath:  outPath,
		SampleRate: syncSampleRate,
	}); err != nil {
		return nil, fmt.Errorf("persist tts output: %w", err)
	}
	if err := e.recordOutputArtifacts(ctx, job.ID, jobDir, artifacts); err != nil {
		return nil, err
	}

	e.report(ctx, job.ID, store.StageSynthesize, bandSynthesize.at(1.0))
	return out, nil
}

// ensureJobDir creates <OutputDir>/<jobID> and returns it, or "" if
// OutputDir is unset (persistence disabled).
func (e *Executor) ensureJobDir(jobID string) (string, error) {
	if e.OutputDir == "" {
		return "", nil
	}
	dir := filepath.Join(e.OutputDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job output dir: %w", err)
	}
	return dir, nil
}

// recordOutputArtifacts merges newly written artifact filenames into the
// job's OutputDir/OutputArtifacts row, de-duplicating across stages.
func (e *Executor) recordOutputArtifacts(ctx context.Context, jobID, jobDir string, newArtifacts []string) error {
	if jobDir == "" || len(newArtifacts) == 0 {
		return nil
	}
	_, err := e.Store.UpdateJob(ctx, jobID, func(j *store.Job) (*store.Job, error) {
		j.OutputDir = jobDir
		seen := make(map[string]bool, len(j.OutputArtifacts))
		for _, a := range j.OutputArtifacts {
			seen[a] = true
		}
		for _, a := range newArtifacts {
			if !seen[a] {
				j.OutputArtifacts = append(j.OutputArtifacts, a)
				seen[a] = true
			}
		}
		return j, nil
	})
	if err != nil {
		return fmt.Errorf("record output artifacts: %w", err)
	}
	return nil
}

func identityStretcherIfNil(s timingsync.Stretcher) timingsync.Stretcher {
	if s != nil {
		return s
	}
	return noopStretcher{}
}

type noopStretcher struct{}

func (noopStretcher) Stretch(samples []float32, sampleRate int, ratio float64) ([]float32, error) {
	return samples, nil
}

func (e *Executor) sync(ctx context.Context, job *store.Job, transcript *store.Transcript, audio []timingsync.SegmentAudio) error {
	e.transition(ctx, job.ID, store.JobSyncing, store.StageSync, bandSync.start)

	combined, err := timingsync.Combine(audio, transcript.Duration, syncSampleRate, identityStretcherIfNil(e.Stretcher))
	if err != nil {
		return fmt.Errorf("combine timing-synced audio: %w", err)
	}

	jobDir, err := e.ensureJobDir(job.ID)
	if err != nil {
		return err
	}

	artifacts := []string{}
	var syncedPath string
	if jobDir != "" {
		syncedPath = filepath.Join(jobDir, "tts_synced.wav")
		if err := timingsync.WriteWAV(syncedPath, combined, syncSampleRate); err != nil {
			return fmt.Errorf("write synced tts output: %w", err)
		}
		artifacts = append(artifacts, "tts_synced.wav")

		if videoExts[strings.ToLower(filepath.Ext(job.InputPath))] {
			if _, lookErr := exec.LookPath("ffmpeg"); lookErr == nil {
				videoPath := filepath.Join(jobDir, "video_with_tts.mp4")
				if err := timingsync.RemuxVideo(ctx, job.InputPath, syncedPath, videoPath); err != nil {
					return fmt.Errorf("remux video with synced audio: %w", err)
				}
				artifacts = append(artifacts, "video_with_tts.mp4")
			}
			// ffmpeg not on PATH: video remux is skipped rather than failing
			// the job, same seam-honesty as RubberbandStretcher — the synced
			// audio artifact is still produced either way.
		}
	}

	if err := e.Store.PutTTSOutput(ctx, &store.TTSOutput{
		JobID: job.ID, AudioPath: syncedPath, SampleRate: syncSampleRate,
		Duration: transcript.Duration, TimingSynced: true,
	}); err != nil {
		return fmt.Errorf("persist synced tts output: %w", err)
	}
	if err := e.recordOutputArtifacts(ctx, job.ID, jobDir, artifacts); err != nil {
		return err
	}

	e.report(ctx, job.ID, store.StageSync, bandSync.at(1.0))
	return nil
}

func (e *Executor) finalize(ctx context.Context, job *store.Job, transcript *store.Transcript) error {
	e.transition(ctx, job.ID, job.Status, store.StageFinalize, bandFinalize.start)

	now := time.Now()
	_, err := e.Store.UpdateJob(ctx, job.ID, func(j *store.Job) (*store.Job, error) {
		j.Status = store.JobCompleted
		j.Stage = store.StageFinalize
		j.Progress = 100
		j.CompletedAt = &now
		return j, nil
	})
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	e.publish(job.ID, eventbus.TypeStatusChanged, store.JobCompleted)
	e.publish(job.ID, eventbus.TypeCompleted, nil)
	return nil
}

func (e *Executor) fail(ctx context.Context, jobID string, cause error) {
	now := time.Now()
	status := store.JobFailed
	evType := eventbus.TypeFailed
	// An adapter stopped by the job's context returns a wrapped engine error,
	// so a done context also counts as cancellation.
	if isCancelled(cause) || ctx.Err() != nil {
		status = store.JobCancelled
		evType = eventbus.TypeCancelled
	}

	_, _ = e.Store.UpdateJob(context.WithoutCancel(ctx), jobID, func(j *store.Job) (*store.Job, error) {
		j.Status = status
		j.ErrorMessage = cause.Error()
		j.CompletedAt = &now
		return j, nil
	})
	e.publish(jobID, eventbus.TypeStatusChanged, status)
	e.publish(jobID, evType, cause.Error())
}

func isCancelled(err error) bool {
	return errors.Is(err, apierr.ErrCancelled)
}

func (e *Executor) checkCancel(ctx context.Context, jobID string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("job %s: %w", jobID, apierr.ErrCancelled)
	default:
	}
	job, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if job != nil && job.CancelRequested {
		return fmt.Errorf("job %s: %w", jobID, apierr.ErrCancelled)
	}
	return nil
}

func (e *Executor) transition(ctx context.Context, jobID string, status store.JobStatus, stage store.Stage, progress int) {
	_, _ = e.Store.UpdateJob(ctx, jobID, func(j *store.Job) (*store.Job, error) {
		j.Status = status
		j.Stage = stage
		if progress > j.Progress {
			j.Progress = progress
		}
		return j, nil
	})
	e.publish(jobID, eventbus.TypeStatusChanged, status)
	e.publish(jobID, eventbus.TypeStageChanged, stage)
}

func (e *Executor) report(ctx context.Context, jobID string, stage store.Stage, progress int) {
	_, _ = e.Store.UpdateJob(ctx, jobID, func(j *store.Job) (*store.Job, error) {
		j.Stage = stage
		if progress > j.Progress {
			j.Progress = progress
		}
		return j, nil
	})
	e.publish(jobID, eventbus.TypeProgress, progress)
}

func (e *Executor) publish(jobID string, t eventbus.Type, payload any) {
	if e.Bus != nil {
		e.Bus.Publish(jobID, t, payload)
	}
}

func countWords(segments []store.Segment) int {
	n := 0
	for _, s := range segments {
		n += len(strings.Fields(s.Text))
	}
	return n
}
