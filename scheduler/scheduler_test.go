package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdmissionOrderIsPriorityThenCreatedAt(t *testing.T) {
	s := New(10)
	now := time.Now()

	s.Enqueue("low-priority-older", 5, now)
	s.Enqueue("high-priority", 1, now.Add(time.Second))
	s.Enqueue("low-priority-newer", 5, now.Add(2*time.Second))

	require.Equal(t, []string{"high-priority", "low-priority-older", "low-priority-newer"}, s.QueuedIDs())
}

func TestTryAdmitRespectsConcurrencyLimit(t *testing.T) {
	s := New(1)
	now := time.Now()
	s.Enqueue("a", 5, now)
	s.Enqueue("b", 5, now.Add(time.Second))

	id, ok := s.TryAdmit()
	require.True(t, ok)
	require.Equal(t, "a", id)

	_, ok = s.TryAdmit()
	require.False(t, ok, "second admit should be blocked by the concurrency limit")

	s.Release("a")
	id, ok = s.TryAdmit()
	require.True(t, ok)
	require.Equal(t, "b", id)
}

func TestSetPriorityReordersQueue(t *testing.T) {
	s := New(10)
	now := time.Now()
	s.Enqueue("a", 5, now)
	s.Enqueue("b", 5, now.Add(time.Second))

	ok := s.SetPriority("b", 1)
	require.True(t, ok)
	require.Equal(t, []string{"b", "a"}, s.QueuedIDs())
}

func TestSetPriorityOnRunningJobReturnsFalse(t *testing.T) {
	s := New(10)
	s.Enqueue("a", 5, time.Now())
	_, _ = s.TryAdmit()

	require.False(t, s.SetPriority("a", 1))
}

func TestReorderBatchAssignsPositionCappedAtTen(t *testing.T) {
	s := New(10)
	now := time.Now()
	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		s.Enqueue(id, 5, now.Add(time.Duration(i)*time.Second))
		ids = append(ids, id)
	}

	require.True(t, s.ReorderBatch(ids))
	require.Equal(t, ids, s.QueuedIDs())

	require.True(t, s.SetPriority(ids[11], 1))
	require.Equal(t, append([]string{ids[0], ids[11]}, ids[1:11]...), s.QueuedIDs(), "priority 1 ties the first position and loses on created_at, but moves ahead of every other member")
}

func TestReorderBatchRejectsWholeBatchWhenOneMemberIsNotQueued(t *testing.T) {
	s := New(10)
	now := time.Now()
	s.Enqueue("a", 5, now)
	s.Enqueue("b", 5, now.Add(time.Second))
	_, _ = s.TryAdmit() // "a" is now running, not queued

	require.False(t, s.ReorderBatch([]string{"b", "a"}), "a is running, not reorderable")
	require.Equal(t, []string{"b"}, s.QueuedIDs(), "rejected batch must not touch the still-queued member either")
}

func TestCancelRemovesFromQueue(t *testing.T) {
	s := New(10)
	s.Enqueue("a", 5, time.Now())
	require.True(t, s.Cancel("a"))
	require.False(t, s.Cancel("a"), "second cancel should report not-found")
	require.Empty(t, s.QueuedIDs())
}

func TestEnqueueIsIdempotentForAlreadyQueuedOrRunningJob(t *testing.T) {
	s := New(10)
	now := time.Now()
	s.Enqueue("a", 5, now)
	s.Enqueue("a", 1, now) // should be a no-op; priority must not change
	require.Len(t, s.QueuedIDs(), 1)

	id, _ := s.TryAdmit()
	s.Enqueue(id, 1, now) // re-enqueuing a running job must not duplicate it
	require.Empty(t, s.QueuedIDs())
}
