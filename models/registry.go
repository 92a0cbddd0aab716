// Package models implements the model registry: registration, default
// selection per model type, and single-flight downloading of model assets.
package models

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/lmsilo/transcribe-backend/apierr"
	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/store"
)

// Downloader materializes a registered model's bytes onto local disk.
// Implementations dispatch on store.Model.Source the way the original
// service's download service dispatches on engine and source.
type Downloader interface {
	Download(ctx context.Context, m *store.Model, progress func(pct int)) (localPath string, err error)
}

// Registry wires the store, the event bus, and a Downloader together.
type Registry struct {
	st  store.Store
	bus *eventbus.Bus
	dl  Downloader

	mu       sync.Mutex
	inFlight map[string]chan struct{} // modelID -> closed when the download completes
}

// New constructs a Registry. bus may be nil in tests that don't care about
// fanned-out download progress.
func New(st store.Store, bus *eventbus.Bus, dl Downloader) *Registry {
	return &Registry{st: st, bus: bus, dl: dl, inFlight: make(map[string]chan struct{})}
}

// Register persists a new model row. The caller decides the id upstream
// (ULID, matching Job/Batch ids).
func (r *Registry) Register(ctx context.Context, m *store.Model) error {
	if m.Name == "" || m.Type == "" || m.Engine == "" {
		return fmt.Errorf("register model: %w", apierr.ErrValidation)
	}
	return r.st.RegisterModel(ctx, m)
}

// Get returns one model by id, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*store.Model, error) {
	m, err := r.st.GetModel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("model %s: %w", id, apierr.ErrNotFound)
	}
	return m, nil
}

// List returns every registered model of typ, or all models if typ is empty.
func (r *Registry) List(ctx context.Context, typ store.ModelType) ([]*store.Model, error) {
	return r.st.ListModels(ctx, typ)
}

// SetDefault marks id as the default model for its type, atomically clearing
// any prior default of the same type — at most one default per type holds
// by construction, enforced inside the store transaction.
func (r *Registry) SetDefault(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.st.SetDefaultModel(ctx, id)
}

// Resolve returns the model a job should use for typ: explicitID if given
// and present, otherwise the registered default. Returns ErrResourceMissing
// if no default is registered and none was requested explicitly.
func (r *Registry) Resolve(ctx context.Context, typ store.ModelType, explicitID string) (*store.Model, error) {
	if explicitID != "" {
		return r.Get(ctx, explicitID)
	}
	m, err := r.st.DefaultModel(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("default model lookup: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("no default %s model registered: %w", typ, apierr.ErrResourceMissing)
	}
	return m, nil
}

// Delete removes a registered model. Deleting the current default simply
// leaves the type without one; callers must Resolve explicitly until a new
// default is set. When removeFiles is true and the model has a local path,
// its on-disk files are removed best-effort: a failure is logged, not
// returned, since the registration itself has already been deleted.
func (r *Registry) Delete(ctx context.Context, id string, removeFiles bool) error {
	m, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.st.DeleteModel(ctx, id); err != nil {
		return err
	}
	if removeFiles && m.LocalPath != "" {
		if err := os.RemoveAll(m.LocalPath); err != nil {
			log.Printf("delete model %s files at %s: %v", id, m.LocalPath, err)
		}
	}
	return nil
}

// Download materializes id's bytes via the configured Downloader. Concurrent
// callers requesting the same model id join the in-flight download instead
// of starting a second one. If the model is already present and force is
// false, Download returns immediately without touching the Downloader.
func (r *Registry) Download(ctx context.Context, id string, force bool) error {
	m, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.DownloadStatus == store.DownloadPresent && !force {
		return nil
	}

	r.mu.Lock()
	if done, ok := r.inFlight[id]; ok {
		r.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	r.inFlight[id] = done
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, id)
		r.mu.Unlock()
		close(done)
	}()

	if _, err := r.st.UpdateModel(ctx, id, func(m *store.Model) (*store.Model, error) {
		m.DownloadStatus = store.DownloadInProgress
		m.DownloadProgress = 0
		m.DownloadError = ""
		return m, nil
	}); err != nil {
		return fmt.Errorf("mark downloading: %w", err)
	}

	progress := func(pct int) {
		_, _ = r.st.UpdateModel(ctx, id, func(m *store.Model) (*store.Model, error) {
			m.DownloadProgress = pct
			return m, nil
		})
		if r.bus != nil {
			r.bus.Publish(id, eventbus.TypeModelDownload, pct)
		}
	}

	localPath, dlErr := r.dl.Download(ctx, m, progress)
	if dlErr != nil {
		_, _ = r.st.UpdateModel(ctx, id, func(m *store.Model) (*store.Model, error) {
			m.DownloadStatus = store.DownloadError
			m.DownloadError = dlErr.Error()
			return m, nil
		})
		return fmt.Errorf("download model %s: %w: %v", id, apierr.ErrEngine, dlErr)
	}

	_, err = r.st.UpdateModel(ctx, id, func(m *store.Model) (*store.Model, error) {
		m.DownloadStatus = store.DownloadPresent
		m.DownloadProgress = 100
		m.LocalPath = localPath
		return m, nil
	})
	return err
}
