package providers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"golang.org/x/time/rate"
)

var ErrPaused = errors.New("provider is rate limiting token requests")

// Pacer throttles calls to one provider's token endpoint. After the provider
// answers 429, Pause holds callers until the back-off elapses. A caller that
// cannot wait that long gets an API_QUOTA_EXCEEDED error carrying the
// remaining pause as RetryAfter.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	// maxWait is the longest pause Wait sleeps through. Negative means no
	// limit beyond the context deadline.
	maxWait time.Duration
}

type PacerOption func(*Pacer)

// WithMaxWait caps how long Wait sleeps through a pause.
func WithMaxWait(d time.Duration) PacerOption {
	return func(p *Pacer) {
		if d >= 0 {
			p.maxWait = d
		}
	}
}

func NewPacer(requestsPerSecond float64, burst int, opts ...PacerOption) *Pacer {
	p := &Pacer{maxWait: -1}
	if requestsPerSecond <= 0 {
		p.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		if p.exceedsWait(ctx, wait) {
			return &storageerrors.Error{
				Type:       storageerrors.APIQuotaExceeded,
				Err:        ErrPaused,
				Attempts:   1,
				RetryAfter: wait,
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return p.limiter.Wait(ctx)
}

func (p *Pacer) exceedsWait(ctx context.Context, wait time.Duration) bool {
	if p.maxWait >= 0 && wait > p.maxWait {
		return true
	}
	if deadline, ok := ctx.Deadline(); ok && wait >= time.Until(deadline) {
		return true
	}
	return false
}

// Pause blocks callers for d, one minute when d is not positive. A shorter
// pause never cuts an existing one. It returns how long callers are now held.
func (p *Pacer) Pause(d time.Duration) time.Duration {
	if d <= 0 {
		d = time.Minute
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if until := now.Add(d); until.After(p.retryAt) {
		p.retryAt = until
	}
	return p.retryAt.Sub(now)
}

// PausedUntil returns the end of the current back-off, if any.
func (p *Pacer) PausedUntil() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retryAt
}
