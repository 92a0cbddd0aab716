package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/idgen"
	"github.com/lmsilo/transcribe-backend/pipeline"
	"github.com/lmsilo/transcribe-backend/store"
)

var allowedUploadExts = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".oga": true, ".flac": true, ".m4a": true, ".aac": true,
	".mp4": true, ".webm": true, ".mpeg": true, ".mov": true, ".avi": true, ".mkv": true,
}

func createJob(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := d.Config.Get()
		maxBytes := int64(cfg.MaxUploadSizeMB) << 20
		if maxBytes <= 0 {
			maxBytes = 500 << 20
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !allowedUploadExts[ext] {
			writeError(w, http.StatusBadRequest, "unsupported file type "+ext)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read upload: "+err.Error())
			return
		}

		sum := blake2b.Sum256(content)
		contentHash := fmt.Sprintf("%x", sum)

		ctx := r.Context()
		if existing, err := d.Store.FindByContentHash(ctx, contentHash); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		} else if existing != "" {
			writeJSON(w, http.StatusOK, map[string]string{"job_id": existing, "status": "duplicate"})
			return
		}

		jobID := idgen.MustNew()
		if ext == "" {
			ext = ".bin"
		}
		inputPath := filepath.Join(cfg.UploadDir, jobID+ext)
		if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, "prepare upload dir: "+err.Error())
			return
		}
		if err := os.WriteFile(inputPath, content, 0o644); err != nil {
			writeError(w, http.StatusInternalServerError, "store upload: "+err.Error())
			return
		}

		form := r.MultipartForm.Value
		priority := formInt(form, "priority", 5)
		formats := parseFormats(formValue(form, "output_formats", "json,srt"))
		enableDiar := formBool(form, "enable_diarization")
		enableTTS := formBool(form, "enable_tts")
		syncTiming := formBoolDefault(form, "sync_tts_timing", true)

		sttModel := formValue(form, "model_id", "")
		if sttModel == "" {
			if def, err := d.Store.DefaultModel(ctx, store.ModelSTT); err == nil && def != nil {
				sttModel = def.ID
			}
		}
		diarModel := ""
		if enableDiar {
			diarModel = formValue(form, "diarization_model_id", "")
			if diarModel == "" {
				if def, err := d.Store.DefaultModel(ctx, store.ModelDiarization); err == nil && def != nil {
					diarModel = def.ID
				}
			}
		}
		ttsModel := ""
		if enableTTS {
			ttsModel = formValue(form, "tts_model_id", "")
			if ttsModel == "" {
				if def, err := d.Store.DefaultModel(ctx, store.ModelTTS); err == nil && def != nil {
					ttsModel = def.ID
				}
			}
		}

		job := &store.Job{
			ID:             jobID,
			Filename:       header.Filename,
			InputPath:      inputPath,
			ContentHash:    contentHash,
			SourceLanguage: formValue(form, "language", "auto"),
			TranslateTo:    formValue(form, "translate_to", ""),
			STTModelID:     sttModel,
			DiarModelID:    diarModel,
			TTSModelID:     ttsModel,
			EnableDiarize:  enableDiar,
			EnableTTS:      enableTTS,
			SyncTTSTiming:  syncTiming,
			Priority:       priority,
			OutputFormats:  formats,
			Status:         store.JobQueued,
			CreatedAt:      time.Now(),
		}

		if err := d.Store.CreateJob(ctx, job); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		d.Runner.Submit(job.ID, job.Priority, job.CreatedAt)
		d.Bus.Publish(job.ID, eventbus.TypeStatusChanged, map[string]string{"status": string(store.JobQueued)})

		job.QueuePosition = queuePositionOf(d, job.ID)
		writeJSON(w, http.StatusCreated, job)
	}
}

func listJobs(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var filter store.ListFilter
		if s := q.Get("status"); s != "" {
			for _, part := range strings.Split(s, ",") {
				filter.Statuses = append(filter.Statuses, store.JobStatus(strings.TrimSpace(part)))
			}
		}
		filter.BatchID = q.Get("batch_id")
		filter.SearchText = q.Get("q")

		order := store.OrderHistoryDesc
		if q.Get("order") == "queue" {
			order = store.OrderQueue
		}

		page := store.Page{Limit: 50}
		if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
			page.Limit = l
		}
		if o, err := strconv.Atoi(q.Get("offset")); err == nil && o > 0 {
			page.Offset = o
		}

		jobs, err := d.Store.ListJobs(r.Context(), filter, order, page)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func getJob(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		job, err := d.Store.GetJob(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if !job.Status.IsTerminal() {
			job.QueuePosition = queuePositionOf(d, job.ID)
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func deleteJob(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx := r.Context()

		job, err := d.Store.GetJob(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		if !job.Status.IsTerminal() {
			wasQueued, wasRunning := d.Runner.Cancel(id)
			if wasQueued || wasRunning {
				d.Bus.Publish(id, eventbus.TypeCancelled, nil)
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
			return
		}

		if err := d.Store.DeleteJob(ctx, id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getTranscript(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx := r.Context()

		job, err := d.Store.GetJob(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if job.Status != store.JobCompleted {
			writeError(w, http.StatusBadRequest, "job has not completed")
			return
		}

		t, err := d.Store.GetTranscript(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if t == nil {
			writeError(w, http.StatusNotFound, "transcript not found")
			return
		}

		format := store.OutputFormat(r.URL.Query().Get("format"))
		if format == "" {
			format = store.FormatJSON
		}

		body, err := pipeline.Export(t, format)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		switch format {
		case store.FormatSRT, store.FormatVTT, store.FormatTXT:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		default:
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func remapSpeakers(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var body struct {
			Remap map[string]string `json:"remap"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.Remap) == 0 {
			writeError(w, http.StatusBadRequest, "remap must not be empty")
			return
		}

		t, err := d.Store.RemapSpeakers(r.Context(), id, body.Remap)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// ---- form helpers ----

func formValue(form map[string][]string, key, def string) string {
	if v, ok := form[key]; ok && len(v) > 0 && v[0] != "" {
		return v[0]
	}
	return def
}

func formInt(form map[string][]string, key string, def int) int {
	v := formValue(form, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func formBool(form map[string][]string, key string) bool {
	v := strings.ToLower(formValue(form, key, ""))
	return v == "true" || v == "1" || v == "on" || v == "yes"
}

func formBoolDefault(form map[string][]string, key string, def bool) bool {
	v := formValue(form, key, "")
	if v == "" {
		return def
	}
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "on" || v == "yes"
}

func parseFormats(raw string) []store.OutputFormat {
	var out []store.OutputFormat
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, store.OutputFormat(part))
		}
	}
	if len(out) == 0 {
		out = []store.OutputFormat{store.FormatJSON}
	}
	return out
}

func queuePositionOf(d Deps, jobID string) int {
	for i, id := range d.Runner.QueuedIDs() {
		if id == jobID {
			return i + 1
		}
	}
	return 0
}
