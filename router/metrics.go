package router

import (
	"fmt"
	"net/http"

	"github.com/lmsilo/transcribe-backend/store"
)

// metricsHandler renders Prometheus text exposition format by hand rather
// than pulling in a client library for five hand-countable gauges.
func metricsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		stats, err := d.Store.JobStats(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		models, err := d.Registry.List(ctx, "")
		downloaded := 0
		if err == nil {
			for _, m := range models {
				if m.DownloadStatus == store.DownloadPresent {
					downloaded++
				}
			}
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintln(w, "# HELP stt_jobs_total Jobs by terminal or in-flight status.")
		fmt.Fprintln(w, "# TYPE stt_jobs_total gauge")
		for status, count := range stats.CountByStatus {
			fmt.Fprintf(w, "stt_jobs_total{status=%q} %d\n", status, count)
		}

		fmt.Fprintln(w, "# HELP stt_audio_processed_seconds Cumulative input duration processed.")
		fmt.Fprintln(w, "# TYPE stt_audio_processed_seconds counter")
		fmt.Fprintf(w, "stt_audio_processed_seconds %f\n", stats.TotalDurationSeconds)

		fmt.Fprintln(w, "# HELP stt_processing_time_seconds Average wall-clock time per completed job.")
		fmt.Fprintln(w, "# TYPE stt_processing_time_seconds gauge")
		fmt.Fprintf(w, "stt_processing_time_seconds %f\n", stats.AvgProcessingSeconds)

		fmt.Fprintln(w, "# HELP stt_jobs_last_hour Jobs created in the last hour.")
		fmt.Fprintln(w, "# TYPE stt_jobs_last_hour gauge")
		fmt.Fprintf(w, "stt_jobs_last_hour %d\n", stats.JobsLastHour)

		fmt.Fprintln(w, "# HELP stt_models_downloaded Registered models currently materialized on disk.")
		fmt.Fprintln(w, "# TYPE stt_models_downloaded gauge")
		fmt.Fprintf(w, "stt_models_downloaded %d\n", downloaded)
	}
}
