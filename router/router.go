// Package router registers the HTTP surface using vanilla net/http (Go 1.22+
// method+path mux patterns). Every route here is unauthenticated — this
// service has no User/Session entity for a bearer token to attach to.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/lmsilo/transcribe-backend/adapters"
	"github.com/lmsilo/transcribe-backend/config"
	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/models"
	"github.com/lmsilo/transcribe-backend/pipeline"
	"github.com/lmsilo/transcribe-backend/store"
)

// Deps holds every dependency the HTTP surface is driven by.
type Deps struct {
	Store     store.Store
	Bus       *eventbus.Bus
	Registry  *models.Registry
	Runner    *pipeline.Runner
	Resolver  *adapters.Resolver
	Config    *config.Global
	StartedAt func() string // returns process start time for /api/system/hardware, overridable in tests
}

// New builds the application HTTP handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	// ---- jobs ----
	mux.HandleFunc("POST /api/jobs", createJob(d))
	mux.HandleFunc("GET /api/jobs", listJobs(d))
	mux.HandleFunc("GET /api/jobs/{id}", getJob(d))
	mux.HandleFunc("DELETE /api/jobs/{id}", deleteJob(d))
	mux.HandleFunc("GET /api/jobs/{id}/transcript", getTranscript(d))
	mux.HandleFunc("PATCH /api/jobs/{id}/speakers", remapSpeakers(d))

	// ---- batches ----
	mux.HandleFunc("POST /api/batches", createBatch(d))
	mux.HandleFunc("GET /api/batches/{id}", getBatch(d))
	mux.HandleFunc("DELETE /api/batches/{id}", deleteBatch(d))
	mux.HandleFunc("GET /api/batches/{id}/export", exportBatch(d))

	// ---- queue ----
	mux.HandleFunc("GET /api/queue", getQueue(d))
	mux.HandleFunc("POST /api/queue/reorder", reorderQueue(d))
	mux.HandleFunc("POST /api/queue/{id}/priority", setPriority(d))
	mux.HandleFunc("GET /api/queue/ws", queueWS(d))

	// ---- streaming ----
	mux.HandleFunc("GET /api/stream/ws", streamWS(d))

	// ---- models ----
	mux.HandleFunc("POST /api/models", createModel(d))
	mux.HandleFunc("GET /api/models", listModels(d))
	mux.HandleFunc("POST /api/models/{id}/download", downloadModel(d))
	mux.HandleFunc("POST /api/models/{id}/set-default", setDefaultModel(d))
	mux.HandleFunc("DELETE /api/models/{id}", deleteModel(d))

	// ---- system ----
	mux.HandleFunc("GET /api/system/hardware", systemHardware(d))
	mux.HandleFunc("GET /api/system/evaluate", systemEvaluate(d))
	mux.HandleFunc("GET /api/system/gpu-usage", systemGPUUsage(d))
	mux.HandleFunc("GET /api/system/benchmark", systemBenchmark(d))

	mux.HandleFunc("GET /api/health", health(d))
	mux.HandleFunc("GET /metrics", metricsHandler(d))

	return mux
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func health(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
