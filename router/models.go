package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/lmsilo/transcribe-backend/idgen"
	"github.com/lmsilo/transcribe-backend/store"
)

func createModel(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name       string            `json:"name"`
			Type       store.ModelType   `json:"type"`
			Engine     string            `json:"engine"`
			Source     store.ModelSource `json:"source"`
			UpstreamID string            `json:"upstream_id"`
			Revision   string            `json:"revision"`
			Capability store.Capability  `json:"capability"`
			IsDefault  bool              `json:"is_default"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctx := r.Context()
		m := &store.Model{
			ID:             idgen.MustNew(),
			Name:           body.Name,
			Type:           body.Type,
			Engine:         body.Engine,
			Source:         body.Source,
			UpstreamID:     body.UpstreamID,
			Revision:       body.Revision,
			Capability:     body.Capability,
			IsDefault:      body.IsDefault,
			DownloadStatus: store.DownloadAbsent,
			CreatedAt:      time.Now(),
		}
		if body.Source == store.SourceBuiltin {
			m.DownloadStatus = store.DownloadPresent
		}

		if err := d.Registry.Register(ctx, m); err != nil {
			writeDomainError(w, err)
			return
		}
		if body.IsDefault {
			if err := d.Registry.SetDefault(ctx, m.ID); err != nil {
				writeDomainError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func listModels(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := store.ModelType(r.URL.Query().Get("type"))
		models, err := d.Registry.List(r.Context(), typ)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models)
	}
}

func downloadModel(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var body struct {
			Force bool `json:"force"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if err := d.Registry.Download(r.Context(), id, body.Force); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "downloaded"})
	}
}

func setDefaultModel(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := d.Registry.SetDefault(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "default set"})
	}
}

func deleteModel(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		removeFiles := true
		if v := r.URL.Query().Get("remove_files"); v != "" {
			removeFiles, _ = strconv.ParseBool(v)
		}
		if err := d.Registry.Delete(r.Context(), id, removeFiles); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
