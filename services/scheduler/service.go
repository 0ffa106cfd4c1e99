package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/queue"
	"github.com/tech-arch1tect/cloudtoken/services/refresh"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"go.uber.org/zap"
)

type Config struct {
	ExpiryBuffer     time.Duration
	MaxScheduleAhead time.Duration
	ScanInterval     time.Duration
	// ScanWindowMinutes is how far ahead each periodic scan looks.
	ScanWindowMinutes int
}

func DefaultConfig() Config {
	return Config{
		ExpiryBuffer:      15 * time.Minute,
		MaxScheduleAhead:  24 * time.Hour,
		ScanInterval:      5 * time.Minute,
		ScanWindowMinutes: 60,
	}
}

type ScanResult struct {
	Scheduled int `json:"scheduled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Service schedules refresh jobs ahead of token expiry.
type Service struct {
	tokens     tokens.Repository
	dispatcher queue.Dispatcher
	config     Config
	logger     *logging.Service
	metrics    metrics.Recorder
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(repo tokens.Repository, dispatcher queue.Dispatcher, cfg Config, logger *logging.Service, m metrics.Recorder) *Service {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Service{
		tokens:     repo,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// ScheduleRefreshForToken queues a refresh for expiresAt - buffer. A refresh
// time already in the past goes straight onto the high priority queue; one
// further out than MaxScheduleAhead is left for a later scan and reported
// as false.
func (s *Service) ScheduleRefreshForToken(ctx context.Context, token *tokens.Token) (bool, error) {
	if token.RequiresUserIntervention || token.ExpiresAt == nil {
		return false, nil
	}

	now := s.now()
	refreshAt := token.ExpiresAt.Add(-s.config.ExpiryBuffer)
	delay := refreshAt.Sub(now)

	queueName := queue.QueueDefault
	switch {
	case delay <= 0:
		delay = 0
		queueName = queue.QueueHigh
	case delay > s.config.MaxScheduleAhead:
		if s.logger != nil {
			s.logger.Debug("refresh too far ahead to schedule",
				zap.Uint("token_id", token.ID),
				zap.Time("refresh_at", refreshAt))
		}
		return false, nil
	}

	job, err := refresh.NewJob(refresh.JobPayload{
		UserID:    token.UserID,
		Provider:  token.Provider,
		Proactive: true,
	})
	if err != nil {
		return false, err
	}

	// The mark goes first: a proactive job that finds it cleared does
	// nothing.
	if err := s.tokens.MarkScheduled(ctx, token.ID, &now); err != nil {
		return false, err
	}

	if err := s.dispatcher.Dispatch(ctx, job, delay, queueName); err != nil {
		if clearErr := s.tokens.MarkScheduled(ctx, token.ID, nil); clearErr != nil && s.logger != nil {
			s.logger.Warn("failed to clear schedule mark after dispatch error",
				zap.Uint("token_id", token.ID),
				zap.Error(clearErr))
		}
		return false, fmt.Errorf("failed to dispatch refresh job: %w", err)
	}

	token.ProactiveRefreshScheduledAt = &now
	s.metrics.RecordScheduled(queueName)

	if s.logger != nil {
		s.logger.Info("proactive refresh scheduled",
			zap.Uint("user_id", token.UserID),
			zap.String("provider", token.Provider),
			zap.String("queue", queueName),
			zap.Duration("delay", delay))
	}
	return true, nil
}

// ScheduleAllExpiringTokens schedules every unscheduled token that expires
// within the window. Per-token failures are counted, not returned.
func (s *Service) ScheduleAllExpiringTokens(ctx context.Context, withinMinutes int) (ScanResult, error) {
	var result ScanResult

	cutoff := s.now().Add(time.Duration(withinMinutes) * time.Minute)
	candidates, err := s.tokens.FindExpiring(ctx, cutoff)
	if err != nil {
		return result, err
	}

	for _, token := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		scheduled, err := s.ScheduleRefreshForToken(ctx, token)
		switch {
		case err != nil:
			result.Failed++
			if s.logger != nil {
				s.logger.Error("failed to schedule token refresh",
					zap.Uint("token_id", token.ID),
					zap.Uint("user_id", token.UserID),
					zap.String("provider", token.Provider),
					zap.Error(err))
			}
		case scheduled:
			result.Scheduled++
		default:
			result.Skipped++
		}
	}

	s.metrics.RecordScanResult(result.Scheduled, result.Skipped, result.Failed)
	if s.logger != nil {
		s.logger.Info("expiring token scan complete",
			zap.Int("window_minutes", withinMinutes),
			zap.Int("scheduled", result.Scheduled),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// CancelScheduledRefresh clears the schedule mark, turning any queued
// proactive job for the token into a no-op.
func (s *Service) CancelScheduledRefresh(ctx context.Context, token *tokens.Token) error {
	if err := s.tokens.MarkScheduled(ctx, token.ID, nil); err != nil {
		return err
	}
	token.ProactiveRefreshScheduledAt = nil
	return nil
}

// Start runs a scan immediately and then every ScanInterval until Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)

	if s.logger != nil {
		s.logger.Info("refresh scheduler started",
			zap.Duration("interval", s.config.ScanInterval),
			zap.Int("window_minutes", s.config.ScanWindowMinutes))
	}
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.config.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScheduleAllExpiringTokens(ctx, s.config.ScanWindowMinutes); err != nil && ctx.Err() == nil && s.logger != nil {
			s.logger.Error("expiring token scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
