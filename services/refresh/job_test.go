package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/cloudtoken/services/locks"
	"github.com/tech-arch1tect/cloudtoken/services/providers"
	"github.com/tech-arch1tect/cloudtoken/services/queue"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
)

type notifyCall struct {
	errorType storageerrors.ErrorType
	attempts  int
}

type fakeNotifier struct {
	calls []notifyCall
	err   error
}

func (f *fakeNotifier) NotifyFailure(_ context.Context, _ *tokens.Token, t storageerrors.ErrorType, attempts int) (bool, error) {
	f.calls = append(f.calls, notifyCall{t, attempts})
	return f.err == nil, f.err
}

func newHandler(env *testEnv, n Notifier) *JobHandler {
	return NewJobHandler(env.coordinator, env.store, n, 45*time.Second, nil)
}

func refreshJob(t *testing.T, proactive bool) *queue.Job {
	job, err := NewJob(JobPayload{UserID: 1, Provider: provider, Proactive: proactive})
	require.NoError(t, err)
	return job
}

func markScheduled(t *testing.T, env *testEnv) {
	token := env.load(t)
	at := env.clock.Now()
	require.NoError(t, env.store.MarkScheduled(context.Background(), token.ID, &at))
}

func TestJobHandler_SuccessClearsSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 5*time.Minute)
	markScheduled(t, env)

	err := newHandler(env, &fakeNotifier{}).Handle(context.Background(), refreshJob(t, true))

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.calls))
	assert.Nil(t, env.load(t).ProactiveRefreshScheduledAt)
}

func TestJobHandler_CancelledProactiveJobIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 5*time.Minute)

	err := newHandler(env, &fakeNotifier{}).Handle(context.Background(), refreshJob(t, true))

	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.calls))
}

func TestJobHandler_DisconnectedTokenIsNoop(t *testing.T) {
	env := newTestEnv(t)

	err := newHandler(env, &fakeNotifier{}).Handle(context.Background(), refreshJob(t, false))
	assert.NoError(t, err)
}

func TestJobHandler_LockTimeoutRequeues(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 5*time.Minute)
	env.coordinator.config.LockWait = 10 * time.Millisecond

	held, err := env.locker.Acquire(context.Background(), locks.RefreshKey(1, provider), time.Minute, 0)
	require.NoError(t, err)
	defer func() { _ = env.locker.Release(context.Background(), held) }()

	err = newHandler(env, &fakeNotifier{}).Handle(context.Background(), refreshJob(t, false))

	var retry *queue.RetryError
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 45*time.Second, retry.Delay)
}

func TestJobHandler_NonRetryableFailureNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, -time.Minute)
	markScheduled(t, env)
	env.refresh = func(context.Context, string) (*providers.TokenData, error) {
		return nil, errors.New("invalid_grant")
	}
	notifier := &fakeNotifier{}

	err := newHandler(env, notifier).Handle(context.Background(), refreshJob(t, true))

	require.NoError(t, err)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, storageerrors.InvalidCredentials, notifier.calls[0].errorType)
	assert.Equal(t, 1, notifier.calls[0].attempts)
	assert.Nil(t, env.load(t).ProactiveRefreshScheduledAt)
}

func TestJobHandler_RetryableFailureRequeues(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, time.Minute)
	env.coordinator.config.RetryBudget = time.Second
	env.refresh = func(context.Context, string) (*providers.TokenData, error) {
		return nil, errors.New("connection reset by peer")
	}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	err := newHandler(env, notifier).Handle(context.Background(), refreshJob(t, false))

	var retry *queue.RetryError
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 2*time.Second, retry.Delay, "delay comes from the deferred backoff")
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, storageerrors.NetworkError, notifier.calls[0].errorType)
}

func TestJobHandler_RateLimitedWaitsForWindow(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 5*time.Minute)
	markScheduled(t, env)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.guard.RecordAttempt(context.Background(), 1, ""))
	}
	env.clock.Advance(20 * time.Minute)

	err := newHandler(env, &fakeNotifier{}).Handle(context.Background(), refreshJob(t, true))

	var retry *queue.RetryError
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 40*time.Minute, retry.Delay, "job comes back when the user window ends")
	assert.NotNil(t, env.load(t).ProactiveRefreshScheduledAt, "scans keep skipping the token")
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.calls))
}

func TestJobHandler_InterventionClearsSchedule(t *testing.T) {
	env := newTestEnv(t)
	token := env.seed(t, time.Minute)
	token.RequiresUserIntervention = true
	require.NoError(t, env.store.Save(context.Background(), token))
	markScheduled(t, env)

	err := newHandler(env, &fakeNotifier{}).Handle(context.Background(), refreshJob(t, true))

	require.NoError(t, err)
	assert.Nil(t, env.load(t).ProactiveRefreshScheduledAt)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.calls))
}

func TestJobHandler_BadPayload(t *testing.T) {
	env := newTestEnv(t)
	err := newHandler(env, nil).Handle(context.Background(), &queue.Job{Name: JobName, Payload: []byte("{")})
	assert.Error(t, err)
}
