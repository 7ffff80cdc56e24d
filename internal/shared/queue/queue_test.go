package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test"), mr
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second, Jitter: func() float64 { return 0.5 }}
	assert.Equal(t, 1500*time.Millisecond, b.Delay(0))
	assert.Equal(t, 2500*time.Millisecond, b.Delay(1))
	assert.Equal(t, 8500*time.Millisecond, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(30))
}

func TestBackoffIsMonotonicWithoutJitter(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Hour, Jitter: func() float64 { return 0 }}
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.Delay(i)
		assert.Greater(t, d, prev)
		prev = d
	}
}

func TestEnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	msg, err := NewMessage("reencrypt", "job-1", map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, msg))

	got, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "job-1", got.JobID)
	assert.JSONEq(t, `{"user_id":"u1"}`, string(got.Payload))

	empty, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestDelayedMessagesBecomeReady(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	msg, _ := NewMessage("k", "", nil)
	require.NoError(t, q.EnqueueAt(ctx, msg, time.Now().Add(time.Hour)))
	got, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)

	ready, delayed, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ready)
	assert.EqualValues(t, 1, delayed)

	past, _ := NewMessage("k", "", nil)
	require.NoError(t, q.EnqueueAt(ctx, past, time.Now().Add(-time.Second)))
	got, err = q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, past.ID, got.ID)
}

func TestWorkerRetriesThenGivesUp(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	w := NewWorker(q, zap.NewNop(), Backoff{Base: time.Millisecond, Max: time.Millisecond, Jitter: func() float64 { return 0 }}, 2, 20*time.Millisecond)

	var attempts []int
	w.Register("flaky", func(ctx context.Context, msg Message) error {
		attempts = append(attempts, msg.Attempt)
		return errors.New("transient")
	})
	msg, _ := NewMessage("flaky", "job", nil)
	require.NoError(t, q.Enqueue(ctx, msg))

	deadline := time.Now().Add(2 * time.Second)
	for len(attempts) < 3 && time.Now().Before(deadline) {
		_, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, []int{0, 1, 2}, attempts)

	ready, delayed, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, ready+delayed)
}

func TestWorkerPermanentErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	w := NewWorker(q, zap.NewNop(), Backoff{Base: time.Millisecond}, 5, 20*time.Millisecond)

	calls := 0
	w.Register("bad", func(ctx context.Context, msg Message) error {
		calls++
		return Permanent(errors.New("malformed"))
	})
	msg, _ := NewMessage("bad", "", nil)
	require.NoError(t, q.Enqueue(ctx, msg))

	found, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, calls)

	ready, delayed, _ := q.Len(ctx)
	assert.Zero(t, ready+delayed)
}
