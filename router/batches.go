package router

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/idgen"
	"github.com/lmsilo/transcribe-backend/pipeline"
	"github.com/lmsilo/transcribe-backend/store"
)

func createBatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := d.Config.Get()
		maxBytes := int64(cfg.MaxUploadSizeMB) << 20
		if maxBytes <= 0 {
			maxBytes = 500 << 20
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes*8)

		if err := r.ParseMultipartForm(64 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
			return
		}

		files := r.MultipartForm.File["files"]
		if len(files) < 2 {
			writeError(w, http.StatusBadRequest, "batch requires at least 2 files")
			return
		}

		ctx := r.Context()
		form := r.MultipartForm.Value
		language := formValue(form, "language", "auto")
		enableDiar := formBool(form, "enable_diarization")
		enableTTS := formBool(form, "enable_tts")

		batchID := idgen.MustNew()
		if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, "prepare upload dir: "+err.Error())
			return
		}

		jobs := make([]*store.Job, 0, len(files))
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "read "+fh.Filename+": "+err.Error())
				return
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "read "+fh.Filename+": "+err.Error())
				return
			}

			ext := strings.ToLower(filepath.Ext(fh.Filename))
			if ext == "" {
				ext = ".bin"
			}
			jobID := idgen.MustNew()
			inputPath := filepath.Join(cfg.UploadDir, jobID+ext)
			if err := os.WriteFile(inputPath, content, 0o644); err != nil {
				writeError(w, http.StatusInternalServerError, "store "+fh.Filename+": "+err.Error())
				return
			}

			sum := blake2b.Sum256(content)
			job := &store.Job{
				ID:             jobID,
				BatchID:        batchID,
				Filename:       fh.Filename,
				InputPath:      inputPath,
				ContentHash:    fmt.Sprintf("%x", sum),
				SourceLanguage: language,
				EnableDiarize:  enableDiar,
				EnableTTS:      enableTTS,
				SyncTTSTiming:  true,
				Priority:       5,
				OutputFormats:  []store.OutputFormat{store.FormatJSON, store.FormatSRT},
				Status:         store.JobQueued,
				CreatedAt:      time.Now(),
			}
			jobs = append(jobs, job)
		}

		batch := &store.JobBatch{
			ID:         batchID,
			TotalFiles: len(jobs),
			Status:     store.BatchPending,
			CreatedAt:  time.Now(),
		}
		if err := d.Store.CreateBatch(ctx, batch); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, job := range jobs {
			if err := d.Store.CreateJob(ctx, job); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			d.Runner.Submit(job.ID, job.Priority, job.CreatedAt)
		}
		d.Bus.Publish(batchID, eventbus.TypeStatusChanged, map[string]string{"status": string(store.BatchPending)})

		writeJSON(w, http.StatusCreated, batch)
	}
}

func getBatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx := r.Context()

		batch, err := d.Store.GetBatch(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if batch == nil {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		jobs, err := d.Store.ListBatchJobs(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"batch": batch,
			"jobs":  jobs,
		})
	}
}

func deleteBatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx := r.Context()

		jobs, err := d.Store.ListBatchJobs(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, j := range jobs {
			if !j.Status.IsTerminal() {
				d.Runner.Cancel(j.ID)
			}
			_ = d.Store.DeleteJob(ctx, j.ID)
		}
		if err := d.Store.DeleteBatch(ctx, id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// exportBatch zips every completed member job's transcript, rendered in the
// requested format, named after the job's original filename stem.
func exportBatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx := r.Context()

		batch, err := d.Store.GetBatch(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if batch == nil {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}

		format := store.OutputFormat(r.URL.Query().Get("format"))
		if format == "" {
			format = store.FormatTXT
		}

		jobs, err := d.Store.ListBatchJobs(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, id))
		zw := zip.NewWriter(w)

		for _, job := range jobs {
			if job.Status != store.JobCompleted {
				continue
			}
			t, err := d.Store.GetTranscript(ctx, job.ID)
			if err != nil || t == nil {
				continue
			}
			body, err := pipeline.Export(t, format)
			if err != nil {
				continue
			}
			base := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
			entry, err := zw.Create(base + "." + string(format))
			if err != nil {
				continue
			}
			_, _ = entry.Write(body)
		}
		_ = zw.Close()
	}
}
