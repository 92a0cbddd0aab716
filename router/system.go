package router

import "net/http"

// systemHardware reports only the configured concurrency limit and compute
// device string — actual GPU probing is the excluded inference-kernel
// concern, not something this orchestration layer implements.
func systemHardware(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := d.Config.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"max_concurrent_jobs": cfg.MaxConcurrentJobs,
			"compute_device":      cfg.ComputeDevice,
			"compute_type":        cfg.ComputeType,
		})
	}
}

func systemEvaluate(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not implemented"})
	}
}

func systemGPUUsage(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not implemented"})
	}
}

func systemBenchmark(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not implemented"})
	}
}
