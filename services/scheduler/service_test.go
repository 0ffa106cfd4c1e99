package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/cloudtoken/services/queue"
	"github.com/tech-arch1tect/cloudtoken/services/refresh"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"github.com/tech-arch1tect/cloudtoken/testutils"
)

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(context.Context, *queue.Job, time.Duration, string) error {
	return errors.New("queue unavailable")
}

type fixture struct {
	store *tokens.Store
	queue *queue.MemoryQueue
	clock *testutils.Clock
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	clock := testutils.NewClock(time.Now().Truncate(time.Second))
	f := &fixture{
		store: tokens.NewStore(testutils.SetupTestDB(t, &tokens.Token{}), nil, nil),
		queue: queue.NewMemoryQueue(time.Minute),
		clock: clock,
	}
	f.queue.SetClock(clock.Now)
	f.svc = NewService(f.store, f.queue, DefaultConfig(), nil, nil)
	f.svc.now = clock.Now
	return f
}

func (f *fixture) seed(t *testing.T, userID uint, expiresIn *time.Duration) *tokens.Token {
	token := &tokens.Token{UserID: userID, Provider: "dropbox", RefreshSecret: "r"}
	if expiresIn != nil {
		at := f.clock.Now().Add(*expiresIn)
		token.ExpiresAt = &at
	}
	stored, err := f.store.Upsert(context.Background(), token)
	require.NoError(t, err)
	return stored
}

func dur(d time.Duration) *time.Duration { return &d }

func TestScheduleRefreshForToken(t *testing.T) {
	t.Run("refresh time passed goes to high queue now", func(t *testing.T) {
		f := newFixture(t)
		token := f.seed(t, 1, dur(10*time.Minute))

		ok, err := f.svc.ScheduleRefreshForToken(context.Background(), token)
		require.NoError(t, err)
		assert.True(t, ok)

		pending := f.queue.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, queue.QueueHigh, pending[0].Queue)
		assert.Equal(t, refresh.JobName, pending[0].Name)
		assert.Equal(t, f.clock.Now(), pending[0].AvailableAt)

		var p refresh.JobPayload
		job := pending[0]
		require.NoError(t, job.Decode(&p))
		assert.True(t, p.Proactive)
		assert.Equal(t, uint(1), p.UserID)

		stored, err := f.store.Find(context.Background(), 1, "dropbox")
		require.NoError(t, err)
		assert.NotNil(t, stored.ProactiveRefreshScheduledAt)
	})

	t.Run("beyond max schedule ahead is declined", func(t *testing.T) {
		f := newFixture(t)
		token := f.seed(t, 1, dur(48*time.Hour))

		ok, err := f.svc.ScheduleRefreshForToken(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, f.queue.Pending())
	})

	t.Run("within horizon is delayed to exactly the refresh time", func(t *testing.T) {
		f := newFixture(t)
		token := f.seed(t, 1, dur(3*time.Hour))

		ok, err := f.svc.ScheduleRefreshForToken(context.Background(), token)
		require.NoError(t, err)
		assert.True(t, ok)

		pending := f.queue.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, queue.QueueDefault, pending[0].Queue)
		assert.WithinDuration(t, token.ExpiresAt.Add(-15*time.Minute), pending[0].AvailableAt, time.Millisecond)
	})

	t.Run("intervention and missing expiry are skipped", func(t *testing.T) {
		f := newFixture(t)
		noExpiry := f.seed(t, 1, nil)
		flagged := f.seed(t, 2, dur(time.Minute))
		flagged.RequiresUserIntervention = true

		ok, err := f.svc.ScheduleRefreshForToken(context.Background(), noExpiry)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = f.svc.ScheduleRefreshForToken(context.Background(), flagged)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, f.queue.Pending())
	})

	t.Run("dispatch failure clears the mark", func(t *testing.T) {
		f := newFixture(t)
		f.svc.dispatcher = failingDispatcher{}
		token := f.seed(t, 1, dur(time.Minute))

		ok, err := f.svc.ScheduleRefreshForToken(context.Background(), token)
		require.Error(t, err)
		assert.False(t, ok)

		stored, err := f.store.Find(context.Background(), 1, "dropbox")
		require.NoError(t, err)
		assert.Nil(t, stored.ProactiveRefreshScheduledAt)
	})
}

func TestScheduleAllExpiringTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, 1, dur(5*time.Minute))
	f.seed(t, 2, dur(50*time.Minute))
	f.seed(t, 3, dur(5*time.Hour))
	f.seed(t, 4, nil)

	result, err := f.svc.ScheduleAllExpiringTokens(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scheduled: 2}, result)
	assert.Len(t, f.queue.Pending(), 2)

	again, err := f.svc.ScheduleAllExpiringTokens(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{}, again, "already scheduled tokens are excluded")
}

func TestScheduleAllExpiringTokens_CountsFailures(t *testing.T) {
	f := newFixture(t)
	f.svc.dispatcher = failingDispatcher{}
	f.seed(t, 1, dur(5*time.Minute))
	f.seed(t, 2, dur(10*time.Minute))

	result, err := f.svc.ScheduleAllExpiringTokens(context.Background(), 60)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
}

func TestCancelScheduledRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	token := f.seed(t, 1, dur(5*time.Minute))

	_, err := f.svc.ScheduleRefreshForToken(ctx, token)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelScheduledRefresh(ctx, token))
	assert.Nil(t, token.ProactiveRefreshScheduledAt)

	stored, err := f.store.Find(ctx, 1, "dropbox")
	require.NoError(t, err)
	assert.Nil(t, stored.ProactiveRefreshScheduledAt)
}

func TestService_StartStop(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, dur(5*time.Minute))
	f.svc.config.ScanInterval = 10 * time.Millisecond

	f.svc.Start(context.Background())
	assert.Eventually(t, func() bool { return len(f.queue.Pending()) == 1 }, time.Second, 5*time.Millisecond)
	f.svc.Stop()
	f.svc.Stop()
}
