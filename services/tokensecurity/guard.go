package tokensecurity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/audit"
	"github.com/tech-arch1tect/cloudtoken/services/counters"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/providers"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttemptsPerUser = 5
	DefaultMaxAttemptsPerIP   = 20
	DefaultWindow             = time.Hour
)

type Limits struct {
	MaxAttemptsPerUser int
	MaxAttemptsPerIP   int
	Window             time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxAttemptsPerUser: DefaultMaxAttemptsPerUser,
		MaxAttemptsPerIP:   DefaultMaxAttemptsPerIP,
		Window:             DefaultWindow,
	}
}

// Guard enforces refresh rate limits and records security-relevant events.
type Guard struct {
	counters counters.Store
	audit    audit.Recorder
	logger   *logging.Service
	metrics  metrics.Recorder
	limits   Limits
	now      func() time.Time
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func NewGuard(store counters.Store, recorder audit.Recorder, logger *logging.Service, limits Limits, opts ...Option) *Guard {
	if limits.MaxAttemptsPerUser <= 0 {
		limits.MaxAttemptsPerUser = DefaultMaxAttemptsPerUser
	}
	if limits.MaxAttemptsPerIP <= 0 {
		limits.MaxAttemptsPerIP = DefaultMaxAttemptsPerIP
	}
	if limits.Window <= 0 {
		limits.Window = DefaultWindow
	}

	g := &Guard{
		counters: store,
		audit:    recorder,
		logger:   logger,
		metrics:  metrics.NewNoop(),
		limits:   limits,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func userKey(userID uint) string {
	return "token_refresh_attempts:user:" + strconv.FormatUint(uint64(userID), 10)
}

func ipKey(ip string) string {
	return "token_refresh_attempts:ip:" + ip
}

// CheckUserRateLimit reports whether the user is under the hourly limit.
// Exceeding it writes a security audit entry.
func (g *Guard) CheckUserRateLimit(ctx context.Context, userID uint) (bool, error) {
	count, err := g.counters.Get(ctx, userKey(userID))
	if err != nil {
		return false, fmt.Errorf("check user rate limit: %w", err)
	}
	if count < g.limits.MaxAttemptsPerUser {
		return true, nil
	}

	g.rateLimited(ctx, "user", userID, "", count, g.limits.MaxAttemptsPerUser)
	return false, nil
}

// CheckIPRateLimit reports whether the address is under the hourly limit.
func (g *Guard) CheckIPRateLimit(ctx context.Context, ip string) (bool, error) {
	count, err := g.counters.Get(ctx, ipKey(ip))
	if err != nil {
		return false, fmt.Errorf("check ip rate limit: %w", err)
	}
	if count < g.limits.MaxAttemptsPerIP {
		return true, nil
	}

	g.rateLimited(ctx, "ip", 0, ip, count, g.limits.MaxAttemptsPerIP)
	return false, nil
}

func (g *Guard) rateLimited(ctx context.Context, scope string, userID uint, ip string, count, limit int) {
	g.metrics.RecordRateLimited(scope)

	if g.logger != nil {
		g.logger.Warn("token refresh rate limit exceeded",
			zap.String("scope", scope),
			zap.Uint("user_id", userID),
			zap.String("ip", ip),
			zap.Int("attempts", count),
			zap.Int("limit", limit))
	}

	g.record(ctx, audit.Record{
		EventType: audit.EventRateLimitExceeded,
		Severity:  audit.SeverityWarning,
		UserID:    userID,
		Action:    "refresh_rate_limited",
		Message:   fmt.Sprintf("%s limit of %d attempts per %s reached", scope, limit, g.limits.Window),
		Context: audit.Context{
			IPAddress: ip,
			Extra:     map[string]any{"scope": scope, "attempts": count},
		},
	})
}

// RecordAttempt counts one refresh attempt against the user and, when
// known, the client address.
func (g *Guard) RecordAttempt(ctx context.Context, userID uint, ip string) error {
	if _, err := g.counters.Increment(ctx, userKey(userID), g.limits.Window); err != nil {
		return fmt.Errorf("record user attempt: %w", err)
	}
	if ip == "" {
		return nil
	}
	if _, err := g.counters.Increment(ctx, ipKey(ip), g.limits.Window); err != nil {
		return fmt.Errorf("record ip attempt: %w", err)
	}
	return nil
}

// UserLimitResetIn returns how long until the user's attempt window ends.
func (g *Guard) UserLimitResetIn(ctx context.Context, userID uint) (time.Duration, error) {
	return g.counters.TTL(ctx, userKey(userID))
}

func (g *Guard) IPLimitResetIn(ctx context.Context, ip string) (time.Duration, error) {
	return g.counters.TTL(ctx, ipKey(ip))
}

func (g *Guard) ResetUserRateLimit(ctx context.Context, userID uint) error {
	if err := g.counters.Reset(ctx, userKey(userID)); err != nil {
		return fmt.Errorf("reset user rate limit: %w", err)
	}
	return nil
}

// RotateTokenOnRefresh applies freshly issued credentials to token and
// clears its failure state. The token is modified in place and returned.
func (g *Guard) RotateTokenOnRefresh(ctx context.Context, token *tokens.Token, data *providers.TokenData) *tokens.Token {
	oldAccess := logging.SecretPrefix(token.AccessSecret)
	oldRefresh := logging.SecretPrefix(token.RefreshSecret)
	now := g.now()

	token.AccessSecret = data.AccessToken
	refreshRotated := data.RefreshToken != "" && data.RefreshToken != token.RefreshSecret
	if data.RefreshToken != "" {
		token.RefreshSecret = data.RefreshToken
	}
	token.ExpiresAt = data.ExpiresAt
	if data.TokenType != "" {
		token.TokenType = data.TokenType
	}
	if len(data.Scopes) > 0 {
		token.Scopes = data.Scopes
	}
	token.RefreshFailureCount = 0
	token.RequiresUserIntervention = false
	token.LastErrorType = ""
	token.LastSuccessfulRefreshAt = &now

	if g.logger != nil {
		g.logger.Info("token rotated",
			zap.Uint("user_id", token.UserID),
			zap.String("provider", token.Provider),
			zap.String("old_access_prefix", oldAccess),
			zap.String("new_access_prefix", logging.SecretPrefix(token.AccessSecret)),
			zap.Bool("refresh_rotated", refreshRotated))
	}

	g.record(ctx, audit.Record{
		EventType: audit.EventTokenRotated,
		Severity:  audit.SeverityInfo,
		UserID:    token.UserID,
		Action:    "rotate_token",
		Context: audit.Context{
			Provider: token.Provider,
			Extra: map[string]any{
				"old_access_prefix":  oldAccess,
				"old_refresh_prefix": oldRefresh,
				"refresh_rotated":    refreshRotated,
			},
		},
	})

	return token
}

// AuditRefreshFailure records a failed refresh with its classification.
func (g *Guard) AuditRefreshFailure(ctx context.Context, userID uint, err error, ac audit.Context) {
	errorType := storageerrors.UnknownError
	if t, ok := storageerrors.TypeOf(err); ok {
		errorType = t
	}

	severity := audit.SeverityWarning
	if errorType.RequiresUserIntervention() {
		severity = audit.SeverityError
	}

	message := ""
	if err != nil {
		message = err.Error()
	}

	g.record(ctx, audit.Record{
		EventType: audit.EventRefreshFailed,
		Severity:  severity,
		UserID:    userID,
		Action:    "refresh_token",
		ErrorType: errorType.String(),
		Message:   message,
		Context:   ac,
	})
}

// AuditUserIntervention records an action that needs or came from the user,
// such as a forced re-authentication or a disconnect.
func (g *Guard) AuditUserIntervention(ctx context.Context, userID uint, action string, ac audit.Context) {
	g.record(ctx, audit.Record{
		EventType: audit.EventUserIntervention,
		Severity:  audit.SeverityWarning,
		UserID:    userID,
		Action:    action,
		Context:   ac,
	})
}

// record never fails the caller. Audit write errors are logged.
func (g *Guard) record(ctx context.Context, r audit.Record) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Record(ctx, r); err != nil && g.logger != nil {
		g.logger.Error("failed to write security audit entry",
			zap.Error(err),
			zap.String("event", string(r.EventType)),
			zap.Uint("user_id", r.UserID))
	}
}
