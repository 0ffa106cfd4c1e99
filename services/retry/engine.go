package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"go.uber.org/zap"
)

const DefaultJitterFactor = 0.1

type Config struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

var defaultConfigs = map[storageerrors.ErrorType]Config{
	storageerrors.APIQuotaExceeded:   {MaxAttempts: 2, BaseDelay: 60 * time.Second, MaxDelay: 5 * time.Minute, BackoffMultiplier: 2, Jitter: true},
	storageerrors.NetworkError:       {MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2, Jitter: true},
	storageerrors.ServiceUnavailable: {MaxAttempts: 3, BaseDelay: 5 * time.Second, MaxDelay: 60 * time.Second, BackoffMultiplier: 2, Jitter: true},
	storageerrors.Timeout:            {MaxAttempts: 3, BaseDelay: 1 * time.Second, MaxDelay: 15 * time.Second, BackoffMultiplier: 2, Jitter: true},
	storageerrors.UnknownError:       {MaxAttempts: 2, BaseDelay: 1 * time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 2, Jitter: true},
}

// ConfigFor returns the default retry configuration for t. Non-retryable
// types get a single attempt.
func ConfigFor(t storageerrors.ErrorType) Config {
	if cfg, ok := defaultConfigs[t]; ok {
		return cfg
	}
	return Config{MaxAttempts: 1, BackoffMultiplier: 1}
}

// Classifier maps a raw error to an ErrorType for the provider in ctx.
type Classifier interface {
	Classify(err error, ctx storageerrors.Context) storageerrors.ErrorType
}

type Engine struct {
	classifier   Classifier
	logger       *logging.Service
	metrics      metrics.Recorder
	jitter       bool
	jitterFactor float64
	random       func() float64
	sleep        func(ctx context.Context, d time.Duration) error
}

type Option func(*Engine)

func WithLogger(logger *logging.Service) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithJitter toggles jitter globally. factor is the maximum relative
// deviation applied in either direction.
func WithJitter(enabled bool, factor float64) Option {
	return func(e *Engine) {
		e.jitter = enabled
		if factor >= 0 && factor < 1 {
			e.jitterFactor = factor
		}
	}
}

func WithRandom(random func() float64) Option {
	return func(e *Engine) { e.random = random }
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func NewEngine(classifier Classifier, opts ...Option) *Engine {
	e := &Engine{
		classifier:   classifier,
		metrics:      metrics.NewNoop(),
		jitter:       true,
		jitterFactor: DefaultJitterFactor,
		random:       rand.Float64,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CallOption adjusts a single Execute call.
type CallOption func(*call)

type call struct {
	config *Config
	budget time.Duration
}

// WithConfig pins the retry configuration instead of looking it up by the
// classified error type.
func WithConfig(cfg Config) CallOption {
	return func(c *call) { c.config = &cfg }
}

// WithDelayBudget stops retrying in-process once the backoff slept so far
// plus the next delay would exceed d. The returned error then carries
// RetryAfter so the caller can reschedule the work.
func WithDelayBudget(d time.Duration) CallOption {
	return func(c *call) { c.budget = d }
}

// Delay computes the wait before the retry that follows attempt.
// Attempts are 1-based.
func (e *Engine) Delay(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}

	raw := float64(cfg.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && raw > float64(cfg.MaxDelay) {
		raw = float64(cfg.MaxDelay)
	}

	if cfg.Jitter && e.jitter && e.jitterFactor > 0 {
		raw += raw * e.jitterFactor * (e.random()*2 - 1)
	}

	if raw < 0 {
		return 0
	}
	return time.Duration(raw)
}

// Execute runs op until it succeeds, fails with a non-retryable error or
// runs out of attempts. Failures are returned as *storageerrors.Error.
func (e *Engine) Execute(ctx context.Context, ectx storageerrors.Context, op func(ctx context.Context) error, opts ...CallOption) error {
	c := &call{}
	for _, opt := range opts {
		opt(c)
	}

	attempt := 0
	var slept time.Duration
	for {
		attempt++
		err := op(ctx)
		if err == nil {
			if attempt > 1 && e.logger != nil {
				e.logger.Info("operation succeeded after retry",
					zap.String("provider", ectx.Provider),
					zap.String("operation", ectx.Operation),
					zap.Int("attempt", attempt))
			}
			return nil
		}

		errType := e.classify(err, ectx)
		cfg := ConfigFor(errType)
		if c.config != nil {
			cfg = *c.config
		}

		failure := &storageerrors.Error{
			Type:     errType,
			Provider: ectx.Provider,
			Err:      err,
			Attempts: attempt,
		}

		var classified *storageerrors.Error
		if errors.As(err, &classified) && classified.RetryAfter > 0 {
			// The operation already knows when to come back.
			failure.Err = classified.Err
			failure.RetryAfter = classified.RetryAfter
			return failure
		}

		if !errType.IsRetryable() {
			if e.logger != nil {
				e.logger.Warn("operation failed with non-retryable error",
					zap.String("provider", ectx.Provider),
					zap.String("operation", ectx.Operation),
					zap.String("error_type", string(errType)),
					zap.Error(err))
			}
			return failure
		}

		if attempt >= cfg.MaxAttempts {
			if e.logger != nil {
				e.logger.Warn("operation failed after exhausting retries",
					zap.String("provider", ectx.Provider),
					zap.String("operation", ectx.Operation),
					zap.String("error_type", string(errType)),
					zap.Int("attempts", attempt),
					zap.Error(err))
			}
			return failure
		}

		delay := e.Delay(cfg, attempt)
		if e.exceedsBudget(ctx, c.budget, slept, delay) {
			failure.RetryAfter = delay
			if e.logger != nil {
				e.logger.Info("deferring retry beyond in-process budget",
					zap.String("provider", ectx.Provider),
					zap.String("error_type", string(errType)),
					zap.Duration("retry_after", delay))
			}
			return failure
		}

		e.metrics.RecordRetry(ectx.Provider, string(errType))
		if e.logger != nil {
			e.logger.Info("retrying operation",
				zap.String("provider", ectx.Provider),
				zap.String("operation", ectx.Operation),
				zap.String("error_type", string(errType)),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
		}

		if err := e.sleep(ctx, delay); err != nil {
			failure.Err = errors.Join(failure.Err, err)
			return failure
		}
		slept += delay
	}
}

// exceedsBudget reports whether sleeping delay would overrun the call's
// budget or outlive ctx.
func (e *Engine) exceedsBudget(ctx context.Context, budget, slept, delay time.Duration) bool {
	if budget > 0 && slept+delay > budget {
		return true
	}
	if deadline, ok := ctx.Deadline(); ok && delay >= time.Until(deadline) {
		return true
	}
	return false
}

func (e *Engine) classify(err error, ectx storageerrors.Context) storageerrors.ErrorType {
	if t, ok := storageerrors.TypeOf(err); ok {
		return t
	}
	if e.classifier == nil {
		return storageerrors.UnknownError
	}
	return e.classifier.Classify(err, ectx)
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, e *Engine, ectx storageerrors.Context, op func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	var result T
	err := e.Execute(ctx, ectx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, opts...)
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
