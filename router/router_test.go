package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lmsilo/transcribe-backend/adapters"
	"github.com/lmsilo/transcribe-backend/config"
	"github.com/lmsilo/transcribe-backend/engine"
	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/models"
	"github.com/lmsilo/transcribe-backend/pipeline"
	"github.com/lmsilo/transcribe-backend/scheduler"
	"github.com/lmsilo/transcribe-backend/store"
)

// fakeStore is an in-memory store.Store covering every method the router
// exercises, in the spirit of the executor package's own memStore test
// double: real maps for the entities handlers touch, and a working
// implementation of every other method.
type fakeStore struct {
	mu sync.Mutex

	jobs        map[string]*store.Job
	batches     map[string]*store.JobBatch
	transcripts map[string]*store.Transcript
	models      map[string]*store.Model
	ttsOutputs  map[string]*store.TTSOutput
	byHash      map[string]string
	cfg         map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:        map[string]*store.Job{},
		batches:     map[string]*store.JobBatch{},
		transcripts: map[string]*store.Transcript{},
		models:      map[string]*store.Model{},
		ttsOutputs:  map[string]*store.TTSOutput{},
		byHash:      map[string]string{},
	}
}

func (s *fakeStore) CreateJob(_ context.Context, j *store.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.ID] = &cp
	if j.ContentHash != "" {
		s.byHash[j.ContentHash] = j.ID
	}
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) UpdateJob(_ context.Context, id string, mutate store.JobMutator) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	next, err := mutate(&cp)
	if err != nil {
		return nil, err
	}
	s.jobs[id] = next
	out := *next
	return &out, nil
}

func (s *fakeStore) ListJobs(_ context.Context, filter store.ListFilter, order store.Order, page store.Page) ([]*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var statusOK map[store.JobStatus]bool
	if len(filter.Statuses) > 0 {
		statusOK = make(map[store.JobStatus]bool, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statusOK[st] = true
		}
	}

	var out []*store.Job
	for _, j := range s.jobs {
		if statusOK != nil && !statusOK[j.Status] {
			continue
		}
		if filter.BatchID != "" && j.BatchID != filter.BatchID {
			continue
		}
		if filter.SearchText != "" && !strings.Contains(strings.ToLower(j.Filename), strings.ToLower(filter.SearchText)) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}

	switch order {
	case store.OrderQueue:
		sort.Slice(out, func(i, k int) bool {
			if out[i].Priority != out[k].Priority {
				return out[i].Priority < out[k].Priority
			}
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		})
	default:
		sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	}

	if page.Offset > 0 && page.Offset < len(out) {
		out = out[page.Offset:]
	} else if page.Offset >= len(out) {
		out = nil
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (s *fakeStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *fakeStore) JobStats(_ context.Context) (*store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &store.Stats{CountByStatus: map[store.JobStatus]int{}}
	for _, j := range s.jobs {
		stats.CountByStatus[j.Status]++
	}
	return stats, nil
}

func (s *fakeStore) CreateBatch(_ context.Context, b *store.JobBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.batches[b.ID] = &cp
	return nil
}

func (s *fakeStore) GetBatch(_ context.Context, id string) (*store.JobBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) UpdateBatch(_ context.Context, id string, mutate func(b *store.JobBatch) (*store.JobBatch, error)) (*store.JobBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	next, err := mutate(&cp)
	if err != nil {
		return nil, err
	}
	s.batches[id] = next
	out := *next
	return &out, nil
}

func (s *fakeStore) ListBatchJobs(_ context.Context, batchID string) ([]*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Job
	for _, j := range s.jobs {
		if j.BatchID == batchID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, id)
	return nil
}

func (s *fakeStore) PutTranscript(_ context.Context, t *store.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.transcripts[t.JobID] = &cp
	return nil
}

func (s *fakeStore) GetTranscript(_ context.Context, jobID string) (*store.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[jobID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) RemapSpeakers(_ context.Context, jobID string, remap map[string]string) (*store.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[jobID]
	if !ok {
		return nil, fmt.Errorf("transcript %s not found", jobID)
	}
	for i, seg := range t.Segments {
		if to, ok := remap[seg.Speaker]; ok {
			t.Segments[i].Speaker = to
		}
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) RegisterModel(_ context.Context, m *store.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.models[m.ID] = &cp
	return nil
}

func (s *fakeStore) GetModel(_ context.Context, id string) (*store.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) FindModelByUpstream(_ context.Context, engine, upstreamID string) (*store.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.models {
		if m.Engine == engine && m.UpstreamID == upstreamID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListModels(_ context.Context, typ store.ModelType) ([]*store.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Model
	for _, m := range s.models {
		if typ != "" && m.Type != typ {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) UpdateModel(_ context.Context, id string, mutate store.ModelMutator) (*store.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	next, err := mutate(&cp)
	if err != nil {
		return nil, err
	}
	s.models[id] = next
	out := *next
	return &out, nil
}

func (s *fakeStore) SetDefaultModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.models[id]
	if !ok {
		return fmt.Errorf("model %s not found", id)
	}
	for _, m := range s.models {
		if m.Type == target.Type {
			m.IsDefault = m.ID == id
		}
	}
	return nil
}

func (s *fakeStore) DefaultModel(_ context.Context, typ store.ModelType) (*store.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.models {
		if m.Type == typ && m.IsDefault {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) DeleteModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.models, id)
	return nil
}

func (s *fakeStore) PutTTSOutput(_ context.Context, o *store.TTSOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.ttsOutputs[o.JobID] = &cp
	return nil
}

func (s *fakeStore) GetTTSOutput(_ context.Context, jobID string) (*store.TTSOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ttsOutputs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetConfig(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (s *fakeStore) SetConfig(_ context.Context, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = data
	return nil
}

func (s *fakeStore) FindByContentHash(_ context.Context, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[hash]
	if !ok {
		return "", nil
	}
	if j, ok := s.jobs[id]; !ok || j.Status != store.JobCompleted {
		return "", nil
	}
	return id, nil
}

func (s *fakeStore) Close() error { return nil }

// ---- test harness ----

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()

	st := newFakeStore()
	seedConfig(t, ctx, st)

	cfg, err := config.Load(ctx, st)
	require.NoError(t, err)

	bus := eventbus.New(32)
	reg := models.New(st, bus, nil)
	cache := engine.NewCache(4, time.Minute)
	resolver := adapters.New(cache, "cpu", "int8", nil)

	sched := scheduler.New(2)
	exec := &pipeline.Executor{Store: st, Bus: bus, Registry: reg, Adapters: resolver, OutputDir: t.TempDir()}
	runner := pipeline.NewRunner(sched, st, exec)
	runner.Start(ctx)
	t.Cleanup(func() {})

	seedDefaultSTTModel(t, ctx, st)

	return Deps{
		Store:     st,
		Bus:       bus,
		Registry:  reg,
		Runner:    runner,
		Resolver:  resolver,
		Config:    cfg,
		StartedAt: func() string { return time.Now().Format(time.RFC3339) },
	}
}

func seedConfig(t *testing.T, ctx context.Context, st *fakeStore) {
	t.Helper()
	data := map[string]any{
		"max_concurrent_jobs": 2,
		"model_idle_timeout":  "10m",
		"compute_device":      "cpu",
		"compute_type":        "int8",
		"upload_dir":          t.TempDir(),
		"output_dir":          t.TempDir(),
		"model_dir":           t.TempDir(),
		"max_upload_size_mb":  64,
		"default_tts_engine":  "builtin",
	}
	require.NoError(t, st.SetConfig(ctx, data))
}

func seedDefaultSTTModel(t *testing.T, ctx context.Context, st *fakeStore) {
	t.Helper()
	require.NoError(t, st.RegisterModel(ctx, &store.Model{
		ID: "stt-default", Name: "default", Type: store.ModelSTT, Engine: "mock", IsDefault: true,
	}))
}

func uploadJobRequest(t *testing.T, srv *httptest.Server, filename, content string, fields map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/jobs", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func waitForStatus(t *testing.T, st *fakeStore, jobID string, want store.JobStatus) *store.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := st.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if j != nil && j.Status == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s in time", jobID, want)
	return nil
}

// ---- tests ----

func TestHealthEndpoint(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateJobRunsToCompletion(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	resp, body := uploadJobRequest(t, srv, "clip.wav", "hello there", map[string]string{"language": "auto"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	jobID, _ := body["id"].(string)
	require.NotEmpty(t, jobID)
	require.Equal(t, string(store.JobQueued), body["status"])

	st := d.Store.(*fakeStore)
	got := waitForStatus(t, st, jobID, store.JobCompleted)
	require.Equal(t, 100, got.Progress)
}

func TestCreateJobRejectsUnsupportedExtension(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	resp, _ := uploadJobRequest(t, srv, "notes.txt", "not audio", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDuplicateUploadReturnsDuplicateStatus(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()
	st := d.Store.(*fakeStore)

	resp1, body1 := uploadJobRequest(t, srv, "a.wav", "same-bytes", nil)
	require.Equal(t, http.StatusCreated, resp1.StatusCode)
	firstID := body1["id"].(string)
	waitForStatus(t, st, firstID, store.JobCompleted)

	resp2, body2 := uploadJobRequest(t, srv, "a-copy.wav", "same-bytes", nil)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.Equal(t, "duplicate", body2["status"])
	require.Equal(t, firstID, body2["job_id"])
}

func TestGetJobNotFound(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobsFiltersByStatus(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()
	st := d.Store.(*fakeStore)

	_, body := uploadJobRequest(t, srv, "x.wav", "xyz", nil)
	jobID := body["id"].(string)
	waitForStatus(t, st, jobID, store.JobCompleted)

	resp, err := http.Get(srv.URL + "/api/jobs?status=completed")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, jobID, jobs[0]["id"])
}

func TestGetTranscriptRequiresCompletion(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()
	ctx := context.Background()
	st := d.Store.(*fakeStore)

	require.NoError(t, st.CreateJob(ctx, &store.Job{ID: "job-pending", Filename: "p.wav", Status: store.JobQueued}))

	resp, err := http.Get(srv.URL + "/api/jobs/job-pending/transcript")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTranscriptSRTFormat(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()
	ctx := context.Background()
	st := d.Store.(*fakeStore)

	require.NoError(t, st.CreateJob(ctx, &store.Job{ID: "job-done", Filename: "d.wav", Status: store.JobCompleted}))
	require.NoError(t, st.PutTranscript(ctx, &store.Transcript{
		JobID: "job-done",
		Segments: []store.Segment{
			{Index: 0, Start: 0, End: 2, Text: "hello", Speaker: "SPEAKER_00"},
		},
	}))

	resp, err := http.Get(srv.URL + "/api/jobs/job-done/transcript?format=srt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestRemapSpeakers(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()
	ctx := context.Background()
	st := d.Store.(*fakeStore)

	require.NoError(t, st.CreateJob(ctx, &store.Job{ID: "job-remap", Filename: "r.wav", Status: store.JobCompleted}))
	require.NoError(t, st.PutTranscript(ctx, &store.Transcript{
		JobID:    "job-remap",
		Segments: []store.Segment{{Speaker: "SPEAKER_00", Text: "hi"}},
	}))

	body, err := json.Marshal(map[string]any{"remap": map[string]string{"SPEAKER_00": "Alice"}})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/api/jobs/job-remap/speakers", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var transcript store.Transcript
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&transcript))
	require.Equal(t, "Alice", transcript.Segments[0].Speaker)
}

func TestDeleteTerminalJob(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()
	ctx := context.Background()
	st := d.Store.(*fakeStore)

	require.NoError(t, st.CreateJob(ctx, &store.Job{ID: "job-delete", Filename: "x.wav", Status: store.JobCompleted}))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/jobs/job-delete", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := st.GetJob(ctx, "job-delete")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestQueueSnapshotReportsCounts(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/queue")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	require.Contains(t, snapshot, "total_running")
	require.Contains(t, snapshot, "total_queued")
}

// newUnstartedQueueDeps builds Deps around a Runner whose admission loop is
// never started, so submitted jobs stay queued for the lifetime of the test
// instead of racing the pipeline to completion.
func newUnstartedQueueDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()

	st := newFakeStore()
	seedConfig(t, ctx, st)
	cfg, err := config.Load(ctx, st)
	require.NoError(t, err)

	bus := eventbus.New(32)
	reg := models.New(st, bus, nil)
	cache := engine.NewCache(4, time.Minute)
	resolver := adapters.New(cache, "cpu", "int8", nil)

	sched := scheduler.New(1)
	exec := &pipeline.Executor{Store: st, Bus: bus, Registry: reg, Adapters: resolver}
	runner := pipeline.NewRunner(sched, st, exec)

	return Deps{
		Store:     st,
		Bus:       bus,
		Registry:  reg,
		Runner:    runner,
		Resolver:  resolver,
		Config:    cfg,
		StartedAt: func() string { return time.Now().Format(time.RFC3339) },
	}
}

func TestReorderQueueAssignsPriorityByBatchPosition(t *testing.T) {
	d := newUnstartedQueueDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	now := time.Now()
	d.Runner.Submit("rq-1", 5, now)
	d.Runner.Submit("rq-2", 5, now.Add(time.Second))
	d.Runner.Submit("rq-3", 5, now.Add(2*time.Second))

	body, err := json.Marshal(map[string]any{"job_ids": []string{"rq-3", "rq-1", "rq-2"}})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/queue/reorder", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"rq-3", "rq-1", "rq-2"}, d.Runner.QueuedIDs())
}

func TestReorderQueueRejectsWholeBatchOnNonQueuedMember(t *testing.T) {
	d := newUnstartedQueueDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	now := time.Now()
	d.Runner.Submit("rn-1", 5, now)
	d.Runner.Submit("rn-2", 5, now.Add(time.Second))

	body, err := json.Marshal(map[string]any{"job_ids": []string{"rn-2", "not-a-real-job"}})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/queue/reorder", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, []string{"rn-1", "rn-2"}, d.Runner.QueuedIDs(), "rejected batch must leave queue order untouched")
}

func TestReorderQueueRejectsEmptyBatch(t *testing.T) {
	d := newUnstartedQueueDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	body, err := json.Marshal(map[string]any{"job_ids": []string{}})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/queue/reorder", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetPriorityRejectsOutOfRange(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	body, err := json.Marshal(map[string]int{"priority": 99})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/queue/some-id/priority", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListModelsAndSetDefault(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	payload := map[string]any{
		"name": "second-stt", "type": "stt", "engine": "mock", "source": "builtin",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/models", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	id := created["id"].(string)

	resp2, err := http.Post(srv.URL+"/api/models/"+id+"/set-default", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	listResp, err := http.Get(srv.URL + "/api/models?type=stt")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var models []map[string]any
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&models))
	require.GreaterOrEqual(t, len(models), 2)
}

func TestMetricsExposesPrometheusFormat(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "stt_jobs_total")
}

func TestCreateBatchRequiresAtLeastTwoFiles(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "one.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("only one"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/batches", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateBatchAndFetchMembers(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()
	st := d.Store.(*fakeStore)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"one.wav", "two.wav"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("content-" + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/batches", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var batch map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	batchID := batch["id"].(string)
	require.EqualValues(t, 2, batch["total_files"])

	getResp, err := http.Get(srv.URL + "/api/batches/" + batchID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var detail map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&detail))
	jobs := detail["jobs"].([]any)
	require.Len(t, jobs, 2)

	for _, raw := range jobs {
		jobMap := raw.(map[string]any)
		waitForStatus(t, st, jobMap["id"].(string), store.JobCompleted)
	}
}

func TestSystemHardwareReportsConfiguredConcurrency(t *testing.T) {
	d := newTestDeps(t)
	srv := httptest.NewServer(New(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/system/hardware")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hw))
	require.EqualValues(t, 2, hw["max_concurrent_jobs"])
}
