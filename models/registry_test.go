package models

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lmsilo/transcribe-backend/apierr"
	"github.com/lmsilo/transcribe-backend/store"
)

// fakeStore is a minimal in-memory store.Store sufficient for registry tests.
type fakeStore struct {
	models map[string]*store.Model
}

func newFakeStore() *fakeStore { return &fakeStore{models: map[string]*store.Model{}} }

func (f *fakeStore) RegisterModel(_ context.Context, m *store.Model) error {
	m.CreatedAt = time.Now()
	f.models[m.ID] = m
	return nil
}
func (f *fakeStore) GetModel(_ context.Context, id string) (*store.Model, error) {
	m, ok := f.models[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}
func (f *fakeStore) FindModelByUpstream(_ context.Context, engine, upstreamID string) (*store.Model, error) {
	for _, m := range f.models {
		if m.Engine == engine && m.UpstreamID == upstreamID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) ListModels(_ context.Context, typ store.ModelType) ([]*store.Model, error) {
	var out []*store.Model
	for _, m := range f.models {
		if typ == "" || m.Type == typ {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (f *fakeStore) UpdateModel(_ context.Context, id string, mutate store.ModelMutator) (*store.Model, error) {
	m, ok := f.models[id]
	if !ok {
		return nil, nil
	}
	next, err := mutate(m)
	if err != nil {
		return nil, err
	}
	f.models[id] = next
	cp := *next
	return &cp, nil
}
func (f *fakeStore) SetDefaultModel(_ context.Context, id string) error {
	target, ok := f.models[id]
	if !ok {
		return apierr.ErrNotFound
	}
	for _, m := range f.models {
		if m.Type == target.Type {
			m.IsDefault = false
		}
	}
	target.IsDefault = true
	return nil
}
func (f *fakeStore) DefaultModel(_ context.Context, typ store.ModelType) (*store.Model, error) {
	for _, m := range f.models {
		if m.Type == typ && m.IsDefault {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) DeleteModel(_ context.Context, id string) error {
	delete(f.models, id)
	return nil
}

// fakeStore implements only the model methods the registry calls; the
// modelStore interface below checks that at compile time, and storeAdapter
// at the end of this file fills in the rest of store.Store with stubs.

type modelStore interface {
	RegisterModel(ctx context.Context, m *store.Model) error
	GetModel(ctx context.Context, id string) (*store.Model, error)
	ListModels(ctx context.Context, typ store.ModelType) ([]*store.Model, error)
	UpdateModel(ctx context.Context, id string, mutate store.ModelMutator) (*store.Model, error)
	SetDefaultModel(ctx context.Context, id string) error
	DefaultModel(ctx context.Context, typ store.ModelType) (*store.Model, error)
	DeleteModel(ctx context.Context, id string) error
}

var _ modelStore = (*fakeStore)(nil)

// slowDownloader blocks until release is closed, then reports complete; it
// counts how many times Download is actually invoked, to assert single-flight.
type slowDownloader struct {
	calls   int32
	release chan struct{}
}

func (d *slowDownloader) Download(ctx context.Context, m *store.Model, progress func(int)) (string, error) {
	atomic.AddInt32(&d.calls, 1)
	<-d.release
	progress(100)
	return "/models/" + m.ID, nil
}

func TestSetDefaultEnforcesAtMostOnePerType(t *testing.T) {
	fs := newFakeStore()
	fs.models["a"] = &store.Model{ID: "a", Name: "a", Type: store.ModelSTT, Engine: "x", IsDefault: true}
	fs.models["b"] = &store.Model{ID: "b", Name: "b", Type: store.ModelSTT, Engine: "x"}

	r := &Registry{st: (storeAdapter{fs}), inFlight: map[string]chan struct{}{}}
	require.NoError(t, r.SetDefault(context.Background(), "b"))

	require.False(t, fs.models["a"].IsDefault)
	require.True(t, fs.models["b"].IsDefault)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	fs := newFakeStore()
	fs.models["a"] = &store.Model{ID: "a", Name: "a", Type: store.ModelTTS, Engine: "x", IsDefault: true}
	r := &Registry{st: storeAdapter{fs}, inFlight: map[string]chan struct{}{}}

	m, err := r.Resolve(context.Background(), store.ModelTTS, "")
	require.NoError(t, err)
	require.Equal(t, "a", m.ID)
}

func TestResolveWithNoDefaultIsResourceMissing(t *testing.T) {
	fs := newFakeStore()
	r := &Registry{st: storeAdapter{fs}, inFlight: map[string]chan struct{}{}}

	_, err := r.Resolve(context.Background(), store.ModelTTS, "")
	require.ErrorIs(t, err, apierr.ErrResourceMissing)
}

func TestDownloadSingleFlight(t *testing.T) {
	fs := newFakeStore()
	fs.models["m1"] = &store.Model{ID: "m1", Name: "m1", Type: store.ModelSTT, Engine: "x", Source: store.SourceBuiltin}
	dl := &slowDownloader{release: make(chan struct{})}
	r := New(storeAdapter{fs}, nil, dl)

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_ = r.Download(context.Background(), "m1", false)
			done <- struct{}{}
		}()
	}

	// Give both goroutines a chance to join the in-flight download.
	time.Sleep(20 * time.Millisecond)
	close(dl.release)
	<-done
	<-done

	require.EqualValues(t, 1, dl.calls, "concurrent downloads of the same model must collapse into one")
	require.Equal(t, store.DownloadPresent, fs.models["m1"].DownloadStatus)
}

func TestDownloadSkipsAlreadyPresentWithoutForce(t *testing.T) {
	fs := newFakeStore()
	fs.models["m1"] = &store.Model{ID: "m1", Name: "m1", Type: store.ModelSTT, Engine: "x", DownloadStatus: store.DownloadPresent, LocalPath: "/models/m1"}
	dl := &slowDownloader{release: make(chan struct{})}
	close(dl.release) // would return immediately if ever invoked
	r := New(storeAdapter{fs}, nil, dl)

	require.NoError(t, r.Download(context.Background(), "m1", false))
	require.EqualValues(t, 0, dl.calls, "already-present download must not touch the Downloader")
}

func TestDownloadForceRedownloadsAlreadyPresentModel(t *testing.T) {
	fs := newFakeStore()
	fs.models["m1"] = &store.Model{ID: "m1", Name: "m1", Type: store.ModelSTT, Engine: "x", DownloadStatus: store.DownloadPresent, LocalPath: "/models/m1"}
	dl := &slowDownloader{release: make(chan struct{})}
	close(dl.release)
	r := New(storeAdapter{fs}, nil, dl)

	require.NoError(t, r.Download(context.Background(), "m1", true))
	require.EqualValues(t, 1, dl.calls, "force must re-run the download even when already present")
	require.Equal(t, store.DownloadPresent, fs.models["m1"].DownloadStatus)
}

func TestDeleteWithRemoveFilesDeletesLocalPath(t *testing.T) {
	dir := t.TempDir()
	localPath := dir + "/model.bin"
	require.NoError(t, os.WriteFile(localPath, []byte("data"), 0o644))

	fs := newFakeStore()
	fs.models["m1"] = &store.Model{ID: "m1", Name: "m1", Type: store.ModelSTT, Engine: "x", LocalPath: localPath}
	r := &Registry{st: storeAdapter{fs}, inFlight: map[string]chan struct{}{}}

	require.NoError(t, r.Delete(context.Background(), "m1", true))
	_, err := os.Stat(localPath)
	require.True(t, os.IsNotExist(err), "removeFiles=true must delete the local file")
	require.NotContains(t, fs.models, "m1")
}

func TestDeleteWithoutRemoveFilesLeavesLocalPathIntact(t *testing.T) {
	dir := t.TempDir()
	localPath := dir + "/model.bin"
	require.NoError(t, os.WriteFile(localPath, []byte("data"), 0o644))

	fs := newFakeStore()
	fs.models["m1"] = &store.Model{ID: "m1", Name: "m1", Type: store.ModelSTT, Engine: "x", LocalPath: localPath}
	r := &Registry{st: storeAdapter{fs}, inFlight: map[string]chan struct{}{}}

	require.NoError(t, r.Delete(context.Background(), "m1", false))
	_, err := os.Stat(localPath)
	require.NoError(t, err, "removeFiles=false must leave the local file in place")
}

// storeAdapter narrows the fakeStore down to store.Store by panicking on any
// method the registry under test does not call.
type storeAdapter struct{ *fakeStore }

func (storeAdapter) CreateJob(context.Context, *store.Job) error             { panic("unused") }
func (storeAdapter) GetJob(context.Context, string) (*store.Job, error)      { panic("unused") }
func (storeAdapter) UpdateJob(context.Context, string, store.JobMutator) (*store.Job, error) {
	panic("unused")
}
func (storeAdapter) ListJobs(context.Context, store.ListFilter, store.Order, store.Page) ([]*store.Job, error) {
	panic("unused")
}
func (storeAdapter) DeleteJob(context.Context, string) error         { panic("unused") }
func (storeAdapter) JobStats(context.Context) (*store.Stats, error)  { panic("unused") }
func (storeAdapter) CreateBatch(context.Context, *store.JobBatch) error { panic("unused") }
func (storeAdapter) GetBatch(context.Context, string) (*store.JobBatch, error) { panic("unused") }
func (storeAdapter) UpdateBatch(context.Context, string, func(*store.JobBatch) (*store.JobBatch, error)) (*store.JobBatch, error) {
	panic("unused")
}
func (storeAdapter) ListBatchJobs(context.Context, string) ([]*store.Job, error) { panic("unused") }
func (storeAdapter) DeleteBatch(context.Context, string) error                  { panic("unused") }
func (storeAdapter) PutTranscript(context.Context, *store.Transcript) error     { panic("unused") }
func (storeAdapter) GetTranscript(context.Context, string) (*store.Transcript, error) {
	panic("unused")
}
func (storeAdapter) RemapSpeakers(context.Context, string, map[string]string) (*store.Transcript, error) {
	panic("unused")
}
func (storeAdapter) PutTTSOutput(context.Context, *store.TTSOutput) error { panic("unused") }
func (storeAdapter) GetTTSOutput(context.Context, string) (*store.TTSOutput, error) {
	panic("unused")
}
func (storeAdapter) GetConfig(context.Context) (map[string]any, error) { panic("unused") }
func (storeAdapter) SetConfig(context.Context, map[string]any) error   { panic("unused") }
func (storeAdapter) FindByContentHash(context.Context, string) (string, error) {
	panic("unused")
}
func (storeAdapter) Close() error { panic("unused") }
