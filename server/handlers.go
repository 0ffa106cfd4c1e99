package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	jwtmw "github.com/tech-arch1tect/cloudtoken/middleware/jwt"
	"github.com/tech-arch1tect/cloudtoken/services/audit"
	"github.com/tech-arch1tect/cloudtoken/services/jwt"
	"github.com/tech-arch1tect/cloudtoken/services/locks"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/refresh"
	"github.com/tech-arch1tect/cloudtoken/services/scheduler"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"go.uber.org/zap"
)

type Refresher interface {
	CoordinateRefresh(ctx context.Context, req refresh.Request) *refresh.Result
	TokenStatus(ctx context.Context, userID uint, provider string) (refresh.State, *tokens.Token, error)
	WithTokenLock(ctx context.Context, userID uint, provider string, fn func(ctx context.Context) error) error
}

type Scheduler interface {
	ScheduleRefreshForToken(ctx context.Context, token *tokens.Token) (bool, error)
	ScheduleAllExpiringTokens(ctx context.Context, withinMinutes int) (scheduler.ScanResult, error)
	CancelScheduledRefresh(ctx context.Context, token *tokens.Token) error
}

type Auditor interface {
	AuditUserIntervention(ctx context.Context, userID uint, action string, ac audit.Context)
}

type AuditLog interface {
	Recent(ctx context.Context, userID uint, limit int) ([]audit.Entry, error)
}

type LinkConsumer interface {
	ValidateReconnectToken(ctx context.Context, tokenString string) (*jwt.Claims, error)
	ConsumeReconnectToken(ctx context.Context, tokenString string) (*jwt.Claims, error)
}

type HandlerDeps struct {
	Refresher  Refresher
	Tokens     tokens.Repository
	Scheduler  Scheduler
	Auditor    Auditor
	AuditLog   AuditLog
	Links      LinkConsumer
	ScanWindow int
	Logger     *logging.Service
}

type Handlers struct {
	deps HandlerDeps
}

func NewHandlers(deps HandlerDeps) *Handlers {
	if deps.ScanWindow <= 0 {
		deps.ScanWindow = 60
	}
	return &Handlers{deps: deps}
}

type statusResponse struct {
	UserID   uint          `json:"user_id"`
	Provider string        `json:"provider"`
	State    refresh.State `json:"state"`
	Token    *tokens.Token `json:"token,omitempty"`
}

type refreshResponse struct {
	Outcome           string        `json:"outcome"`
	State             refresh.State `json:"state"`
	Reason            string        `json:"reason,omitempty"`
	Message           string        `json:"message,omitempty"`
	ErrorType         string        `json:"error_type,omitempty"`
	Attempts          int           `json:"attempts"`
	FailureCount      int           `json:"failure_count,omitempty"`
	RetryAfterSeconds int64         `json:"retry_after_seconds,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	DurationMS        int64         `json:"duration_ms"`
}

type reconnectRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
	TokenType    string     `json:"token_type"`
	Scopes       []string   `json:"scopes"`
	Email        string     `json:"email"`
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Status(c echo.Context) error {
	userID, provider, err := tokenParams(c)
	if err != nil {
		return err
	}

	state, token, err := h.deps.Refresher.TokenStatus(c.Request().Context(), userID, provider)
	if err != nil {
		return h.internal("failed to load token status", err)
	}

	return c.JSON(http.StatusOK, statusResponse{
		UserID:   userID,
		Provider: provider,
		State:    state,
		Token:    token,
	})
}

func (h *Handlers) Refresh(c echo.Context) error {
	userID, provider, err := tokenParams(c)
	if err != nil {
		return err
	}

	result := h.deps.Refresher.CoordinateRefresh(c.Request().Context(), refresh.Request{
		UserID:   userID,
		Provider: provider,
		Client:   clientContext(c, provider),
	})

	resp := refreshResponse{
		Outcome:      result.Outcome.String(),
		State:        result.State(),
		Reason:       result.Reason.String(),
		Message:      result.Message,
		Attempts:     result.Attempts,
		FailureCount: result.FailureCount,
		DurationMS:   result.Duration.Milliseconds(),
	}
	if result.ErrorType != "" {
		resp.ErrorType = result.ErrorType.String()
	}
	if result.TokenData != nil {
		resp.ExpiresAt = result.TokenData.ExpiresAt
	}
	if result.RetryAfter > 0 {
		resp.RetryAfterSeconds = int64(result.RetryAfter.Round(time.Second) / time.Second)
		c.Response().Header().Set("Retry-After", strconv.FormatInt(resp.RetryAfterSeconds, 10))
	}

	return c.JSON(refreshStatusCode(result), resp)
}

func refreshStatusCode(r *refresh.Result) int {
	if r.Success() {
		return http.StatusOK
	}
	switch r.Reason {
	case refresh.ReasonNoToken:
		return http.StatusNotFound
	case refresh.ReasonRateLimited:
		return http.StatusTooManyRequests
	case refresh.ReasonLockTimeout:
		return http.StatusServiceUnavailable
	case refresh.ReasonInterventionRequired:
		return http.StatusConflict
	case refresh.ReasonProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) Scan(c echo.Context) error {
	within := h.deps.ScanWindow
	if raw := c.QueryParam("within"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "within must be a positive number of minutes")
		}
		within = v
	}

	result, err := h.deps.Scheduler.ScheduleAllExpiringTokens(c.Request().Context(), within)
	if err != nil {
		return h.internal("expiry scan failed", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"within_minutes": within,
		"scheduled":      result.Scheduled,
		"skipped":        result.Skipped,
		"failed":         result.Failed,
	})
}

// Disconnect removes a user's connection. Any queued proactive refresh is
// cancelled first so it becomes a no-op. The refresh lock is held throughout
// so an in-flight refresh cannot write the token back.
func (h *Handlers) Disconnect(c echo.Context) error {
	userID, provider, err := tokenParams(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	err = h.deps.Refresher.WithTokenLock(ctx, userID, provider, func(ctx context.Context) error {
		token, err := h.deps.Tokens.Find(ctx, userID, provider)
		if err != nil {
			return err
		}

		if token.ProactiveRefreshScheduledAt != nil {
			if err := h.deps.Scheduler.CancelScheduledRefresh(ctx, token); err != nil {
				return fmt.Errorf("cancel scheduled refresh: %w", err)
			}
		}

		if err := h.deps.Tokens.Delete(ctx, userID, provider); err != nil && !errors.Is(err, tokens.ErrTokenNotFound) {
			return fmt.Errorf("delete token: %w", err)
		}
		return nil
	})
	switch {
	case errors.Is(err, tokens.ErrTokenNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no connection for this provider")
	case errors.Is(err, locks.ErrLockTimeout):
		return refreshInProgress(c)
	case err != nil:
		return h.internal("failed to disconnect", err)
	}

	h.deps.Auditor.AuditUserIntervention(ctx, userID, "disconnect", clientContext(c, provider))

	return c.NoContent(http.StatusNoContent)
}

// Reconnect stores the credentials from a completed OAuth flow. It is
// authorised by the reconnect link sent in the failure notification, which
// is consumed here and cannot be used again. The link is only consumed once
// the refresh lock is held, so a busy lock leaves it usable.
func (h *Handlers) Reconnect(c echo.Context) error {
	var req reconnectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AccessToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "access_token is required")
	}

	link, err := jwtmw.BearerToken(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	claims, err := h.deps.Links.ValidateReconnectToken(ctx, link)
	if err != nil {
		return jwtmw.HTTPError(err)
	}

	var saved *tokens.Token
	var linkErr error
	err = h.deps.Refresher.WithTokenLock(ctx, claims.UserID, claims.Provider, func(ctx context.Context) error {
		if _, linkErr = h.deps.Links.ConsumeReconnectToken(ctx, link); linkErr != nil {
			return linkErr
		}

		var err error
		saved, err = h.deps.Tokens.Upsert(ctx, &tokens.Token{
			UserID:        claims.UserID,
			Provider:      claims.Provider,
			Email:         req.Email,
			AccessSecret:  req.AccessToken,
			RefreshSecret: req.RefreshToken,
			TokenType:     req.TokenType,
			Scopes:        req.Scopes,
			ExpiresAt:     req.ExpiresAt,
		})
		return err
	})
	switch {
	case linkErr != nil:
		return jwtmw.HTTPError(linkErr)
	case errors.Is(err, locks.ErrLockTimeout):
		return refreshInProgress(c)
	case err != nil:
		return h.internal("failed to store token", err)
	}

	h.deps.Auditor.AuditUserIntervention(ctx, claims.UserID, "reconnect", clientContext(c, claims.Provider))

	if _, err := h.deps.Scheduler.ScheduleRefreshForToken(ctx, saved); err != nil && h.deps.Logger != nil {
		h.deps.Logger.Warn("failed to schedule refresh for reconnected token",
			zap.Uint("user_id", saved.UserID),
			zap.String("provider", saved.Provider),
			zap.Error(err))
	}

	return c.JSON(http.StatusOK, saved)
}

func (h *Handlers) AuditTrail(c echo.Context) error {
	userID, err := userParam(c)
	if err != nil {
		return err
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = v
	}

	entries, err := h.deps.AuditLog.Recent(c.Request().Context(), userID, limit)
	if err != nil {
		return h.internal("failed to load audit entries", err)
	}

	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

func refreshInProgress(c echo.Context) error {
	c.Response().Header().Set("Retry-After", "1")
	return echo.NewHTTPError(http.StatusServiceUnavailable, "a token refresh is in progress, try again shortly")
}

func (h *Handlers) internal(msg string, err error) error {
	if h.deps.Logger != nil {
		h.deps.Logger.Error(msg, zap.Error(err))
	}
	return echo.NewHTTPError(http.StatusInternalServerError, msg).SetInternal(err)
}

func userParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("user"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return uint(id), nil
}

func tokenParams(c echo.Context) (uint, string, error) {
	userID, err := userParam(c)
	if err != nil {
		return 0, "", err
	}

	provider := strings.TrimSpace(c.Param("provider"))
	if provider == "" {
		return 0, "", echo.NewHTTPError(http.StatusBadRequest, "provider is required")
	}
	return userID, provider, nil
}

func clientContext(c echo.Context, provider string) audit.Context {
	return audit.Context{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Provider:  provider,
	}
}
