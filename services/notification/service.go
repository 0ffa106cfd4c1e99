package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/counters"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"go.uber.org/zap"
)

type Mailer interface {
	SendPlain(ctx context.Context, to []string, subject, body string) error
	SendTemplate(ctx context.Context, templateName string, to []string, subject string, data map[string]any) error
}

// Messages supplies the provider-specific wording. *storageerrors.Registry
// satisfies it.
type Messages interface {
	UserMessage(t storageerrors.ErrorType, ctx storageerrors.Context) string
	RecommendedActions(t storageerrors.ErrorType, ctx storageerrors.Context) []string
}

type LinkSigner interface {
	Enabled() bool
	GenerateReconnectToken(userID uint, provider string) (string, error)
}

type Config struct {
	Enabled        bool
	AppName        string
	ThrottleWindow time.Duration
	ReconnectURL   string
	// Template names a mail template; empty sends plain text.
	Template string
}

type Service struct {
	config   Config
	mailer   Mailer
	messages Messages
	signer   LinkSigner
	throttle counters.Store
	logger   *logging.Service
	metrics  metrics.Recorder
}

func NewService(cfg Config, mailer Mailer, messages Messages, signer LinkSigner, throttle counters.Store, logger *logging.Service, m metrics.Recorder) *Service {
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = 24 * time.Hour
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Service{
		config:   cfg,
		mailer:   mailer,
		messages: messages,
		signer:   signer,
		throttle: throttle,
		logger:   logger,
		metrics:  m,
	}
}

func throttleKey(userID uint, provider string, t storageerrors.ErrorType) string {
	return fmt.Sprintf("notification:%d:%s:%s", userID, provider, t)
}

// NotifyFailure emails the token owner about a failed refresh when Decide
// allows it and no notification of the same type went out within the
// throttle window. It reports whether a message was sent.
func (s *Service) NotifyFailure(ctx context.Context, token *tokens.Token, t storageerrors.ErrorType, attempts int) (bool, error) {
	if !s.config.Enabled || !Decide(t, attempts, 0) {
		return false, nil
	}

	if s.mailer == nil || token.Email == "" {
		if s.logger != nil {
			s.logger.Warn("cannot deliver connection failure notification",
				zap.Uint("user_id", token.UserID),
				zap.String("provider", token.Provider),
				zap.String("error_type", t.String()),
				zap.Bool("mail_configured", s.mailer != nil))
		}
		return false, nil
	}

	key := throttleKey(token.UserID, token.Provider, t)
	count, err := s.throttle.Increment(ctx, key, s.config.ThrottleWindow)
	if err != nil {
		return false, fmt.Errorf("failed to check notification throttle: %w", err)
	}
	if count > 1 {
		if s.logger != nil {
			s.logger.Debug("notification throttled",
				zap.Uint("user_id", token.UserID),
				zap.String("provider", token.Provider),
				zap.String("error_type", t.String()),
				zap.Int("count", count))
		}
		s.metrics.RecordNotification(t.String(), false)
		return false, nil
	}

	if err := s.send(ctx, token, t); err != nil {
		if resetErr := s.throttle.Reset(ctx, key); resetErr != nil && s.logger != nil {
			s.logger.Warn("failed to reset notification throttle", zap.Error(resetErr))
		}
		if s.logger != nil {
			s.logger.Error("failed to send connection failure notification",
				zap.Uint("user_id", token.UserID),
				zap.String("provider", token.Provider),
				zap.Error(err))
		}
		return false, fmt.Errorf("failed to send notification: %w", err)
	}

	s.metrics.RecordNotification(t.String(), true)
	if s.logger != nil {
		s.logger.Info("connection failure notification sent",
			zap.Uint("user_id", token.UserID),
			zap.String("provider", token.Provider),
			zap.String("error_type", t.String()),
			zap.Int("attempts", attempts))
	}
	return true, nil
}

func (s *Service) send(ctx context.Context, token *tokens.Token, t storageerrors.ErrorType) error {
	ectx := storageerrors.Context{
		Provider:  token.Provider,
		Operation: "refresh_token",
		UserID:    fmt.Sprint(token.UserID),
	}
	providerName := storageerrors.DisplayName(token.Provider)
	message := s.messages.UserMessage(t, ectx)
	actions := s.messages.RecommendedActions(t, ectx)
	link := s.reconnectLink(token, t)

	subject := fmt.Sprintf("Action needed: your %s connection", providerName)
	if !t.RequiresUserIntervention() {
		subject = fmt.Sprintf("Problem with your %s connection", providerName)
	}
	to := []string{token.Email}

	if s.config.Template != "" {
		return s.mailer.SendTemplate(ctx, s.config.Template, to, subject, map[string]any{
			"AppName":      s.config.AppName,
			"Provider":     token.Provider,
			"ProviderName": providerName,
			"ErrorType":    t.String(),
			"Message":      message,
			"Actions":      actions,
			"ReconnectURL": link,
		})
	}

	var body strings.Builder
	body.WriteString(message)
	body.WriteString("\n\n")
	for _, action := range actions {
		body.WriteString("- ")
		body.WriteString(action)
		body.WriteString("\n")
	}
	if link != "" {
		fmt.Fprintf(&body, "\nReconnect your account: %s\n", link)
	}

	return s.mailer.SendPlain(ctx, to, subject, body.String())
}

// reconnectLink is empty unless the failure needs the user to reconnect and
// links can be signed.
func (s *Service) reconnectLink(token *tokens.Token, t storageerrors.ErrorType) string {
	if !t.RequiresUserIntervention() || s.signer == nil || !s.signer.Enabled() || s.config.ReconnectURL == "" {
		return ""
	}

	signed, err := s.signer.GenerateReconnectToken(token.UserID, token.Provider)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to sign reconnect link", zap.Error(err))
		}
		return ""
	}

	u, err := url.Parse(s.config.ReconnectURL)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("invalid reconnect URL", zap.String("url", s.config.ReconnectURL), zap.Error(err))
		}
		return ""
	}
	q := u.Query()
	q.Set("provider", token.Provider)
	q.Set("token", signed)
	u.RawQuery = q.Encode()
	return u.String()
}
