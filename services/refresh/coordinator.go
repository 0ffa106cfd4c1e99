package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/audit"
	"github.com/tech-arch1tect/cloudtoken/services/locks"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/providers"
	"github.com/tech-arch1tect/cloudtoken/services/retry"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"github.com/tech-arch1tect/cloudtoken/services/tokensecurity"
	"go.uber.org/zap"
)

const releaseTimeout = 2 * time.Second

// ClientSource resolves the refresh client for a provider.
// *providers.Registry satisfies it.
type ClientSource interface {
	Client(name string) (providers.Client, error)
}

type Config struct {
	ExpiryBuffer time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
	// RetryBudget bounds backoff slept in process. Zero means unbounded.
	RetryBudget time.Duration
}

func DefaultConfig() Config {
	return Config{
		ExpiryBuffer: 15 * time.Minute,
		LockTTL:      locks.DefaultTTL,
		LockWait:     locks.DefaultWait,
	}
}

type Request struct {
	UserID   uint
	Provider string
	// Client identifies the caller for rate limiting and the audit trail.
	// An empty IPAddress skips the per-IP limit.
	Client audit.Context
	// Snapshot is the token as the caller last saw it. When nil the
	// coordinator reads one before taking the lock.
	Snapshot *tokens.Token
}

// Coordinator serializes refreshes per (user, provider) and decides whether
// a provider call is needed at all.
type Coordinator struct {
	tokens  tokens.Repository
	locker  locks.Locker
	guard   *tokensecurity.Guard
	clients ClientSource
	retry   *retry.Engine
	config  Config
	logger  *logging.Service
	metrics metrics.Recorder
	now     func() time.Time
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

func NewCoordinator(repo tokens.Repository, locker locks.Locker, guard *tokensecurity.Guard, clients ClientSource, engine *retry.Engine, cfg Config, logger *logging.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		tokens:  repo,
		locker:  locker,
		guard:   guard,
		clients: clients,
		retry:   engine,
		config:  cfg,
		logger:  logger,
		metrics: metrics.NewNoop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenStatus classifies the stored token without refreshing it.
func (c *Coordinator) TokenStatus(ctx context.Context, userID uint, provider string) (State, *tokens.Token, error) {
	token, err := c.tokens.Find(ctx, userID, provider)
	if errors.Is(err, tokens.ErrTokenNotFound) {
		return StateNoToken, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return Classify(token, c.config.ExpiryBuffer, c.now()), token, nil
}

// CoordinateRefresh refreshes the token for req if, once the lock is held,
// it still needs refreshing. It never returns nil.
func (c *Coordinator) CoordinateRefresh(ctx context.Context, req Request) *Result {
	start := c.now()
	result := c.coordinate(ctx, req)
	result.Duration = c.now().Sub(start)

	label := result.Outcome.String()
	if result.Outcome == OutcomeFailed {
		label = result.Reason.String()
	}
	c.metrics.RecordRefresh(req.Provider, label, result.Duration)

	if c.logger != nil {
		fields := []zap.Field{
			zap.Uint("user_id", req.UserID),
			zap.String("provider", req.Provider),
			zap.String("outcome", result.Outcome.String()),
			zap.Duration("duration", result.Duration),
		}
		if result.Outcome == OutcomeFailed {
			fields = append(fields,
				zap.String("reason", result.Reason.String()),
				zap.String("error_type", result.ErrorType.String()),
				zap.Error(result.Err))
			c.logger.Warn("token refresh failed", fields...)
		} else {
			c.logger.Debug("token refresh coordinated", fields...)
		}
	}
	return result
}

func (c *Coordinator) coordinate(ctx context.Context, req Request) *Result {
	snapshot := req.Snapshot
	if snapshot == nil {
		if t, err := c.tokens.Find(ctx, req.UserID, req.Provider); err == nil {
			snapshot = t
		}
	}
	wasExpiring := snapshot != nil && snapshot.ExpiresWithin(c.config.ExpiryBuffer, c.now())

	lock, err := c.acquire(ctx, req.UserID, req.Provider)
	if err != nil {
		if errors.Is(err, locks.ErrLockTimeout) {
			c.metrics.RecordLockTimeout(req.Provider)
			return Failed(ReasonLockTimeout, err)
		}
		return Failed(ReasonInternal, err)
	}
	defer c.release(ctx, lock)
	callDeadline := time.Now().Add(c.callWindow())

	if allowed, err := c.guard.CheckUserRateLimit(ctx, req.UserID); err != nil {
		return Failed(ReasonInternal, err)
	} else if !allowed {
		resetIn, _ := c.guard.UserLimitResetIn(ctx, req.UserID)
		return rateLimited(resetIn)
	}
	if req.Client.IPAddress != "" {
		if allowed, err := c.guard.CheckIPRateLimit(ctx, req.Client.IPAddress); err != nil {
			return Failed(ReasonInternal, err)
		} else if !allowed {
			resetIn, _ := c.guard.IPLimitResetIn(ctx, req.Client.IPAddress)
			return rateLimited(resetIn)
		}
	}

	token, err := c.tokens.Find(ctx, req.UserID, req.Provider)
	if errors.Is(err, tokens.ErrTokenNotFound) {
		return Failed(ReasonNoToken, ErrNoToken)
	}
	if err != nil {
		return Failed(ReasonInternal, err)
	}

	if token.RequiresUserIntervention {
		r := Failed(ReasonInterventionRequired, ErrInterventionRequired)
		r.ErrorType = storageerrors.ErrorType(token.LastErrorType)
		r.FailureCount = token.RefreshFailureCount
		return r
	}

	now := c.now()
	if !token.ExpiresWithin(c.config.ExpiryBuffer, now) {
		if wasExpiring {
			return RefreshedByAnotherProcess()
		}
		return AlreadyValid()
	}

	ac := req.Client
	ac.Provider = req.Provider

	if token.RefreshSecret == "" {
		// Nothing to refresh with; only the user can fix this.
		return c.fail(ctx, token, storageerrors.New(storageerrors.TokenExpired, req.Provider, storageerrors.ErrRefreshNotSupported), ac)
	}

	if err := c.guard.RecordAttempt(ctx, req.UserID, req.Client.IPAddress); err != nil {
		return Failed(ReasonInternal, err)
	}
	token.LastRefreshAttemptAt = &now

	callCtx, cancel := context.WithDeadline(ctx, callDeadline)
	data, attempts, err := c.callProvider(callCtx, token)
	cancel()
	if err != nil {
		return c.fail(ctx, token, err, ac)
	}

	c.guard.RotateTokenOnRefresh(ctx, token, data)
	if err := c.tokens.Update(ctx, token); err != nil {
		if errors.Is(err, tokens.ErrTokenChanged) {
			return c.superseded(ctx, token)
		}
		if c.logger != nil {
			c.logger.Error("refreshed token could not be saved",
				zap.Uint("user_id", req.UserID),
				zap.String("provider", req.Provider),
				zap.Error(err))
		}
		return Failed(ReasonInternal, err)
	}

	if err := c.guard.ResetUserRateLimit(ctx, req.UserID); err != nil && c.logger != nil {
		c.logger.Warn("failed to reset user rate limit", zap.Uint("user_id", req.UserID), zap.Error(err))
	}

	return Succeeded(data, attempts)
}

func (c *Coordinator) callProvider(ctx context.Context, token *tokens.Token) (*providers.TokenData, int, error) {
	client, err := c.clients.Client(token.Provider)
	if err != nil {
		return nil, 0, err
	}

	ectx := storageerrors.Context{
		Provider:  token.Provider,
		Operation: "refresh_token",
		UserID:    fmt.Sprint(token.UserID),
	}

	var opts []retry.CallOption
	if c.config.RetryBudget > 0 {
		opts = append(opts, retry.WithDelayBudget(c.config.RetryBudget))
	}

	attempts := 0
	data, err := retry.Do(ctx, c.retry, ectx, func(ctx context.Context) (*providers.TokenData, error) {
		attempts++
		return client.RefreshToken(ctx, token.RefreshSecret)
	}, opts...)
	return data, attempts, err
}

// fail records a provider failure on the token and in the audit trail.
func (c *Coordinator) fail(ctx context.Context, token *tokens.Token, err error, ac audit.Context) *Result {
	errType := storageerrors.UnknownError
	if t, ok := storageerrors.TypeOf(err); ok {
		errType = t
	} else {
		err = storageerrors.New(errType, token.Provider, err)
	}

	c.guard.AuditRefreshFailure(ctx, token.UserID, err, ac)

	token.RefreshFailureCount++
	token.LastErrorType = errType.String()
	if errType.RequiresUserIntervention() {
		token.RequiresUserIntervention = true
	}

	if saveErr := c.tokens.Update(ctx, token); saveErr != nil {
		if errors.Is(saveErr, tokens.ErrTokenChanged) {
			// The user reconnected or disconnected meanwhile; the failure
			// belongs to credentials that no longer exist.
			return c.superseded(ctx, token)
		}
		if c.logger != nil {
			c.logger.Error("failed to record refresh failure on token",
				zap.Uint("user_id", token.UserID),
				zap.String("provider", token.Provider),
				zap.Error(saveErr))
		}
	}
	if token.RequiresUserIntervention {
		c.guard.AuditUserIntervention(ctx, token.UserID, "reauthentication_required", ac)
	}

	r := Failed(ReasonProviderError, err)
	r.FailureCount = token.RefreshFailureCount
	return r
}

// superseded reports a refresh whose token was rewritten or removed by
// another writer while the provider call ran. Nothing is written.
func (c *Coordinator) superseded(ctx context.Context, token *tokens.Token) *Result {
	if c.logger != nil {
		c.logger.Warn("token changed during refresh, discarding result",
			zap.Uint("user_id", token.UserID),
			zap.String("provider", token.Provider))
	}

	_, err := c.tokens.Find(ctx, token.UserID, token.Provider)
	switch {
	case errors.Is(err, tokens.ErrTokenNotFound):
		return Failed(ReasonNoToken, ErrNoToken)
	case err != nil:
		return Failed(ReasonInternal, err)
	default:
		return RefreshedByAnotherProcess()
	}
}

func rateLimited(resetIn time.Duration) *Result {
	r := Failed(ReasonRateLimited, ErrRateLimited)
	if resetIn > 0 {
		r.RetryAfter = resetIn
	}
	return r
}

// WithTokenLock runs fn while holding the refresh lock for (userID,
// provider). Writers outside the coordinator use it so their changes never
// interleave with a refresh. It returns locks.ErrLockTimeout when a refresh
// holds the lock past the configured wait.
func (c *Coordinator) WithTokenLock(ctx context.Context, userID uint, provider string, fn func(ctx context.Context) error) error {
	lock, err := c.acquire(ctx, userID, provider)
	if err != nil {
		return err
	}
	defer c.release(ctx, lock)
	return fn(ctx)
}

func (c *Coordinator) acquire(ctx context.Context, userID uint, provider string) (*locks.Lock, error) {
	lock, err := c.locker.Acquire(ctx, locks.RefreshKey(userID, provider), c.lockTTL(), c.config.LockWait)
	if err != nil && !errors.Is(err, locks.ErrLockTimeout) {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	return lock, err
}

func (c *Coordinator) lockTTL() time.Duration {
	if c.config.LockTTL <= 0 {
		return locks.DefaultTTL
	}
	return c.config.LockTTL
}

// callWindow is how long the provider call may run once the lock is held.
// The last fifth of the TTL is left for recording the outcome.
func (c *Coordinator) callWindow() time.Duration {
	ttl := c.lockTTL()
	return ttl - ttl/5
}

// release runs even when ctx is already cancelled so the key does not sit
// until its TTL.
func (c *Coordinator) release(ctx context.Context, lock *locks.Lock) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := c.locker.Release(releaseCtx, lock); err != nil && c.logger != nil {
		c.logger.Warn("failed to release refresh lock",
			zap.String("key", lock.Key),
			zap.Error(err))
	}
}
