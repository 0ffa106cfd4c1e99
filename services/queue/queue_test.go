package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/cloudtoken/testutils"
)

type payload struct {
	TokenID uint `json:"token_id"`
}

func newJob(t *testing.T, id uint) *Job {
	job, err := NewJob("refresh_token", payload{TokenID: id})
	require.NoError(t, err)
	return job
}

func queues(t *testing.T) map[string]func(clock *testutils.Clock) Queue {
	return map[string]func(clock *testutils.Clock) Queue{
		"memory": func(clock *testutils.Clock) Queue {
			q := NewMemoryQueue(time.Minute)
			q.SetClock(clock.Now)
			return q
		},
		"database": func(clock *testutils.Clock) Queue {
			q := NewDatabaseQueue(testutils.SetupTestDB(t, &JobRecord{}), time.Minute, nil)
			q.now = clock.Now
			return q
		},
	}
}

func TestQueue_Behaviour(t *testing.T) {
	for name, build := range queues(t) {
		t.Run(name+"/priority order", func(t *testing.T) {
			ctx := context.Background()
			clock := testutils.NewClock(time.Now())
			q := build(clock)

			require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueDefault))
			require.NoError(t, q.Dispatch(ctx, newJob(t, 2), 0, QueueHigh))

			job, err := q.Reserve(ctx, Priority...)
			require.NoError(t, err)
			assert.Equal(t, QueueHigh, job.Queue)
			assert.Equal(t, 1, job.Attempts)

			var p payload
			require.NoError(t, job.Decode(&p))
			assert.Equal(t, uint(2), p.TokenID)

			job, err = q.Reserve(ctx, Priority...)
			require.NoError(t, err)
			assert.Equal(t, QueueDefault, job.Queue)

			_, err = q.Reserve(ctx, Priority...)
			assert.ErrorIs(t, err, ErrNoJob)
		})

		t.Run(name+"/delayed jobs wait", func(t *testing.T) {
			ctx := context.Background()
			clock := testutils.NewClock(time.Now())
			q := build(clock)

			require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 10*time.Minute, QueueDefault))

			_, err := q.Reserve(ctx, Priority...)
			assert.ErrorIs(t, err, ErrNoJob)

			clock.Advance(10 * time.Minute)
			job, err := q.Reserve(ctx, Priority...)
			require.NoError(t, err)
			require.NoError(t, q.Complete(ctx, job))

			clock.Advance(time.Hour)
			_, err = q.Reserve(ctx, Priority...)
			assert.ErrorIs(t, err, ErrNoJob)
		})

		t.Run(name+"/expired lease is redelivered", func(t *testing.T) {
			ctx := context.Background()
			clock := testutils.NewClock(time.Now())
			q := build(clock)

			require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueHigh))
			first, err := q.Reserve(ctx, Priority...)
			require.NoError(t, err)

			_, err = q.Reserve(ctx, Priority...)
			assert.ErrorIs(t, err, ErrNoJob)

			clock.Advance(2 * time.Minute)
			second, err := q.Reserve(ctx, Priority...)
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, 2, second.Attempts)
		})

		t.Run(name+"/release and fail", func(t *testing.T) {
			ctx := context.Background()
			clock := testutils.NewClock(time.Now())
			q := build(clock)

			require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueHigh))
			job, err := q.Reserve(ctx, Priority...)
			require.NoError(t, err)

			require.NoError(t, q.Release(ctx, job, 30*time.Second))
			_, err = q.Reserve(ctx, Priority...)
			assert.ErrorIs(t, err, ErrNoJob)

			clock.Advance(30 * time.Second)
			job, err = q.Reserve(ctx, Priority...)
			require.NoError(t, err)

			require.NoError(t, q.Fail(ctx, job, errors.New("boom")))
			clock.Advance(time.Hour)
			_, err = q.Reserve(ctx, Priority...)
			assert.ErrorIs(t, err, ErrNoJob)
		})
	}
}

func TestDatabaseQueue_Failed(t *testing.T) {
	ctx := context.Background()
	q := NewDatabaseQueue(testutils.SetupTestDB(t, &JobRecord{}), time.Minute, nil)

	require.NoError(t, q.Dispatch(ctx, newJob(t, 1), 0, QueueHigh))
	job, err := q.Reserve(ctx, QueueHigh)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job, errors.New("provider exploded")))

	failed, err := q.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "provider exploded", failed[0].LastError)
	assert.NotNil(t, failed[0].FailedAt)
}

func TestMemoryQueue_Pending(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)

	require.NoError(t, q.Dispatch(ctx, newJob(t, 1), time.Hour, QueueDefault))
	require.NoError(t, q.Dispatch(ctx, newJob(t, 2), 0, QueueHigh))

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, QueueHigh, pending[0].Queue)
	assert.NotEmpty(t, pending[0].ID)
}
