package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/store"
)

var queueUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const queueKeepaliveInterval = 30 * time.Second

func getQueue(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, queueSnapshot(d, r))
	}
}

func queueSnapshot(d Deps, r *http.Request) map[string]any {
	ctx := r.Context()
	stats, err := d.Store.JobStats(ctx)
	if err != nil {
		stats = &store.Stats{CountByStatus: map[store.JobStatus]int{}}
	}

	queuedIDs := d.Runner.QueuedIDs()
	queue := make([]map[string]any, 0, len(queuedIDs))
	for i, id := range queuedIDs {
		job, err := d.Store.GetJob(ctx, id)
		if err != nil || job == nil {
			continue
		}
		queue = append(queue, map[string]any{
			"id":         job.ID,
			"filename":   job.Filename,
			"status":     job.Status,
			"progress":   job.Progress,
			"priority":   job.Priority,
			"position":   i + 1,
			"created_at": job.CreatedAt,
		})
	}

	return map[string]any{
		"status_counts":   stats.CountByStatus,
		"total_running":   d.Runner.RunningCount(),
		"total_queued":    len(queuedIDs),
		"jobs_last_hour":  stats.JobsLastHour,
		"queue":           queue,
	}
}

// reorderQueue accepts an ordered list of job ids and assigns priority by
// position (1-based, capped at 10). Every id must currently be queued; if
// any is not, the whole batch is rejected and none are changed.
func reorderQueue(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JobIDs []string `json:"job_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.JobIDs) == 0 {
			writeError(w, http.StatusBadRequest, "job_ids list cannot be empty")
			return
		}
		if !d.Runner.ReorderBatch(body.JobIDs) {
			writeError(w, http.StatusConflict, "one or more jobs are not in a reorderable state")
			return
		}
		d.Bus.Publish(eventbus.GlobalTopic, eventbus.TypeQueueBatchReordered, map[string]any{
			"job_ids": body.JobIDs,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message":      "queue reordered",
			"jobs_updated": len(body.JobIDs),
		})
	}
}

func setPriority(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var body struct {
			Priority int `json:"priority"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Priority < 1 || body.Priority > 10 {
			writeError(w, http.StatusBadRequest, "priority must be between 1 and 10")
			return
		}
		if !d.Runner.Reorder(id, body.Priority) {
			writeError(w, http.StatusConflict, "job is not queued")
			return
		}
		d.Bus.Publish(id, eventbus.TypePriorityChanged, map[string]any{
			"job_id":   id,
			"priority": body.Priority,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
	}
}

// queueWS streams queue/progress events: an initial snapshot, then every bus
// event on the global topic, with a keepalive ping every 30s.
func queueWS(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := queueUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]any{
			"type":    "snapshot",
			"payload": queueSnapshot(d, r),
		}); err != nil {
			return
		}

		sub := d.Bus.Subscribe(eventbus.GlobalTopic)
		defer sub.Unsubscribe()

		go readPumpDiscard(conn)

		ticker := time.NewTicker(queueKeepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
					return
				}
			}
		}
	}
}

// readPumpDiscard drains client frames (pongs, disconnects) so the
// connection's read deadline logic and close detection keep working; this
// handler has no inbound control messages of its own.
func readPumpDiscard(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
