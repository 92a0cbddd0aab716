package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lmsilo/transcribe-backend/eventbus"
	"github.com/lmsilo/transcribe-backend/models"
	"github.com/lmsilo/transcribe-backend/scheduler"
	"github.com/lmsilo/transcribe-backend/store"
)

func TestRunnerDrainsQueuedJobsWithinConcurrencyLimit(t *testing.T) {
	st := newMemStore()
	seedDefaultSTTModel(st)
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, st.CreateJob(context.Background(), &store.Job{ID: id, Filename: id, InputPath: "/in/" + id, SourceLanguage: "auto"}))
	}

	bus := eventbus.New(16)
	reg := models.New(st, bus, nil)
	sched := scheduler.New(2)
	exec := &Executor{Store: st, Bus: bus, Registry: reg, Adapters: mockAdapters{}}
	runner := NewRunner(sched, st, exec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	now := time.Now()
	runner.Submit("r1", 5, now)
	runner.Submit("r2", 5, now)
	runner.Submit("r3", 5, now)

	require.Eventually(t, func() bool {
		for _, id := range []string{"r1", "r2", "r3"} {
			j, err := st.GetJob(context.Background(), id)
			if err != nil || j.Status != store.JobCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunnerCancelStopsQueuedJobBeforeItRuns(t *testing.T) {
	st := newMemStore()
	seedDefaultSTTModel(st)
	require.NoError(t, st.CreateJob(context.Background(), &store.Job{ID: "q1", Filename: "q1", InputPath: "/in/q1", SourceLanguage: "auto"}))

	bus := eventbus.New(16)
	reg := models.New(st, bus, nil)
	sched := scheduler.New(1)
	exec := &Executor{Store: st, Bus: bus, Registry: reg, Adapters: mockAdapters{}}
	runner := NewRunner(sched, st, exec)

	wasQueued, wasRunning := runner.Cancel("q1")
	require.False(t, wasQueued, "job was never enqueued yet in this test")
	require.False(t, wasRunning)

	runner.Submit("q1", 5, time.Now())
	wasQueued, wasRunning = runner.Cancel("q1")
	require.True(t, wasQueued)
	require.False(t, wasRunning)
}

func TestRunnerReorderBatchAssignsPriorityByPosition(t *testing.T) {
	st := newMemStore()
	sched := scheduler.New(1)
	exec := &Executor{Store: st, Adapters: mockAdapters{}}
	runner := NewRunner(sched, st, exec)

	now := time.Now()
	runner.Submit("b1", 5, now)
	runner.Submit("b2", 5, now.Add(time.Second))
	runner.Submit("b3", 5, now.Add(2*time.Second))

	require.True(t, runner.ReorderBatch([]string{"b3", "b1", "b2"}))
	require.Equal(t, []string{"b3", "b1", "b2"}, runner.QueuedIDs())
}

func TestRunnerReorderBatchRejectsWholeBatchOnUnknownMember(t *testing.T) {
	st := newMemStore()
	sched := scheduler.New(1)
	exec := &Executor{Store: st, Adapters: mockAdapters{}}
	runner := NewRunner(sched, st, exec)

	now := time.Now()
	runner.Submit("c1", 5, now)
	runner.Submit("c2", 5, now.Add(time.Second))

	require.False(t, runner.ReorderBatch([]string{"c2", "does-not-exist"}))
	require.Equal(t, []string{"c1", "c2"}, runner.QueuedIDs(), "rejected batch must leave queue order untouched")
}
