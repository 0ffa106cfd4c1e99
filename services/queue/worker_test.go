package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/testutils"
)

func TestWorker_ProcessNext(t *testing.T) {
	t.Run("success completes the job", func(t *testing.T) {
		ctx := context.Background()
		q := NewMemoryQueue(time.Minute)
		m := metrics.NewWithRegistry(prometheus.NewRegistry())
		w := NewWorker(q, WorkerConfig{MaxAttempts: 3}, nil, m)

		var seen uint
		w.Register("refresh_token", func(_ context.Context, job *Job) error {
			var p payload
			if err := job.Decode(&p); err != nil {
				return err
			}
			seen = p.TokenID
			return nil
		})

		require.NoError(t, q.Dispatch(ctx, newJob(t, 42), 0, QueueHigh))

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, uint(42), seen)
		assert.Empty(t, q.Pending())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsProcessedTotal.WithLabelValues("refresh_token", "done")))

		processed, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("error releases with backoff then fails permanently", func(t *testing.T) {
		ctx := context.Background()
		clock := testutils.NewClock(time.Now())
		q := NewMemoryQueue(time.Minute)
		q.SetClock(clock.Now)
		w := NewWorker(q, WorkerConfig{MaxAttempts: 2}, nil, nil)
		w.Register("refresh_token", func(context.Context, *Job) error {
			return errors.New("provider down")
		})

		require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueHigh))

		_, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		pending := q.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, clock.Now().Add(baseFailureDelay), pending[0].AvailableAt)
		assert.Equal(t, "provider down", pending[0].LastError)

		clock.Advance(baseFailureDelay)
		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.Empty(t, q.Pending())
	})

	t.Run("retry error sets the delay", func(t *testing.T) {
		ctx := context.Background()
		clock := testutils.NewClock(time.Now())
		q := NewMemoryQueue(time.Minute)
		q.SetClock(clock.Now)
		w := NewWorker(q, WorkerConfig{MaxAttempts: 5}, nil, nil)
		w.Register("refresh_token", func(context.Context, *Job) error {
			return Retry(90*time.Second, "lock busy")
		})

		require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueHigh))
		_, err := w.ProcessNext(ctx)
		require.NoError(t, err)

		pending := q.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, clock.Now().Add(90*time.Second), pending[0].AvailableAt)
	})

	t.Run("unknown job fails", func(t *testing.T) {
		ctx := context.Background()
		q := NewMemoryQueue(time.Minute)
		w := NewWorker(q, WorkerConfig{}, nil, nil)

		require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueHigh))
		_, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.Empty(t, q.Pending())
	})

	t.Run("panic is contained", func(t *testing.T) {
		ctx := context.Background()
		q := NewMemoryQueue(time.Minute)
		w := NewWorker(q, WorkerConfig{MaxAttempts: 1}, nil, nil)
		w.Register("refresh_token", func(context.Context, *Job) error {
			panic("nil map")
		})

		require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueHigh))
		assert.NotPanics(t, func() {
			_, err := w.ProcessNext(ctx)
			assert.NoError(t, err)
		})
	})
}

func TestWorker_StartStop(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)
	w := NewWorker(q, WorkerConfig{Concurrency: 2, PollInterval: 5 * time.Millisecond}, nil, nil)

	var done int32
	w.Register("refresh_token", func(context.Context, *Job) error {
		atomic.AddInt32(&done, 1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Dispatch(ctx, newJob(t, uint(i)), 0, QueueDefault))
	}

	w.Start(ctx)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 5 }, time.Second, 5*time.Millisecond)
	w.Stop()
}

func TestFailureDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, failureDelay(1))
	assert.Equal(t, 20*time.Second, failureDelay(2))
	assert.Equal(t, 40*time.Second, failureDelay(3))
	assert.Equal(t, maxFailureDelay, failureDelay(20))
}
