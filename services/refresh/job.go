package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/queue"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"go.uber.org/zap"
)

const JobName = "refresh_token"

type JobPayload struct {
	UserID   uint   `json:"user_id"`
	Provider string `json:"provider"`
	// Proactive jobs become no-ops once proactive_refresh_scheduled_at has
	// been cleared.
	Proactive bool `json:"proactive"`
}

func NewJob(p JobPayload) (*queue.Job, error) {
	return queue.NewJob(JobName, p)
}

type Notifier interface {
	NotifyFailure(ctx context.Context, token *tokens.Token, t storageerrors.ErrorType, attempts int) (bool, error)
}

// JobHandler runs queued refreshes and turns their results into queue
// decisions.
type JobHandler struct {
	coordinator  *Coordinator
	tokens       tokens.Repository
	notifier     Notifier
	requeueDelay time.Duration
	logger       *logging.Service
}

func NewJobHandler(c *Coordinator, repo tokens.Repository, notifier Notifier, requeueDelay time.Duration, logger *logging.Service) *JobHandler {
	if requeueDelay <= 0 {
		requeueDelay = 30 * time.Second
	}
	return &JobHandler{
		coordinator:  c,
		tokens:       repo,
		notifier:     notifier,
		requeueDelay: requeueDelay,
		logger:       logger,
	}
}

func (h *JobHandler) Handle(ctx context.Context, job *queue.Job) error {
	var p JobPayload
	if err := job.Decode(&p); err != nil {
		return err
	}

	token, err := h.tokens.Find(ctx, p.UserID, p.Provider)
	if errors.Is(err, tokens.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if p.Proactive && token.ProactiveRefreshScheduledAt == nil {
		if h.logger != nil {
			h.logger.Debug("proactive refresh was cancelled",
				zap.Uint("user_id", p.UserID),
				zap.String("provider", p.Provider))
		}
		return nil
	}

	result := h.coordinator.CoordinateRefresh(ctx, Request{
		UserID:   p.UserID,
		Provider: p.Provider,
		Snapshot: token,
	})

	switch result.Outcome {
	case OutcomeSucceeded, OutcomeAlreadyValid, OutcomeRefreshedByAnotherProcess:
		h.clearSchedule(ctx, token)
		return nil
	case OutcomeFailed:
		return h.handleFailure(ctx, token, result)
	default:
		return nil
	}
}

func (h *JobHandler) handleFailure(ctx context.Context, token *tokens.Token, result *Result) error {
	switch result.Reason {
	case ReasonLockTimeout:
		return queue.Retry(h.requeueDelay, "refresh lock held elsewhere")
	case ReasonNoToken:
		return nil
	case ReasonRateLimited:
		// The schedule mark stays so scans skip the token until the job
		// comes back after the window.
		delay := result.RetryAfter
		if delay <= 0 {
			delay = h.requeueDelay
		}
		return queue.Retry(delay, "refresh rate limited")
	case ReasonInterventionRequired:
		h.clearSchedule(ctx, token)
		return nil
	case ReasonProviderError:
		h.notify(ctx, token, result)
		if result.Retryable() {
			delay := result.RetryAfter
			if delay <= 0 {
				delay = h.requeueDelay
			}
			return queue.Retry(delay, result.Message)
		}
		h.clearSchedule(ctx, token)
		return nil
	default:
		return result.Err
	}
}

func (h *JobHandler) notify(ctx context.Context, token *tokens.Token, result *Result) {
	if h.notifier == nil {
		return
	}
	if _, err := h.notifier.NotifyFailure(ctx, token, result.ErrorType, result.FailureCount); err != nil && h.logger != nil {
		h.logger.Warn("failed to notify user of refresh failure",
			zap.Uint("user_id", token.UserID),
			zap.String("provider", token.Provider),
			zap.Error(err))
	}
}

func (h *JobHandler) clearSchedule(ctx context.Context, token *tokens.Token) {
	if token.ProactiveRefreshScheduledAt == nil {
		return
	}
	if err := h.tokens.MarkScheduled(ctx, token.ID, nil); err != nil && h.logger != nil {
		h.logger.Warn("failed to clear proactive refresh schedule",
			zap.Uint("token_id", token.ID),
			zap.Error(err))
	}
}
