package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mileusna/useragent"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Context describes who triggered the audited operation.
type Context struct {
	IPAddress string
	UserAgent string
	Provider  string
	Extra     map[string]any
}

type Record struct {
	EventType EventType
	Severity  Severity
	UserID    uint
	Action    string
	ErrorType string
	Message   string
	Context   Context
}

// Recorder is implemented by Service. Tests substitute their own.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

type Service struct {
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

var _ Recorder = (*Service)(nil)

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// Record writes the entry to the audit table and mirrors it to the log.
func (s *Service) Record(ctx context.Context, r Record) error {
	browser, os := describeAgent(r.Context.UserAgent)

	entry := &Entry{
		EventType: r.EventType,
		Severity:  r.Severity,
		UserID:    r.UserID,
		Provider:  r.Context.Provider,
		Action:    r.Action,
		ErrorType: r.ErrorType,
		Message:   r.Message,
		IPAddress: r.Context.IPAddress,
		UserAgent: r.Context.UserAgent,
		Browser:   browser,
		OS:        os,
		Details:   maskSensitive(r.Context.Extra),
		CreatedAt: s.now(),
	}

	if s.logger != nil {
		fields := []zap.Field{
			zap.String("event", string(r.EventType)),
			zap.String("severity", string(r.Severity)),
			zap.Uint("user_id", r.UserID),
			zap.String("provider", r.Context.Provider),
			zap.String("action", r.Action),
		}
		if r.ErrorType != "" {
			fields = append(fields, zap.String("error_type", r.ErrorType))
		}
		if r.Context.IPAddress != "" {
			fields = append(fields, zap.String("ip", r.Context.IPAddress))
		}

		switch r.Severity {
		case SeverityError, SeverityCritical:
			s.logger.Error("security audit", fields...)
		case SeverityWarning:
			s.logger.Warn("security audit", fields...)
		default:
			s.logger.Info("security audit", fields...)
		}
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries for a user, newest first.
func (s *Service) Recent(ctx context.Context, userID uint, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entries: %w", err)
	}
	return entries, nil
}

func describeAgent(userAgent string) (browser, os string) {
	if userAgent == "" {
		return "", ""
	}

	ua := useragent.Parse(userAgent)

	browser = ua.Name
	if browser != "" && ua.Version != "" {
		browser += " " + ua.Version
	}

	os = ua.OS
	if os != "" && ua.OSVersion != "" {
		os += " " + ua.OSVersion
	}
	return browser, os
}

var sensitiveKeys = []string{"secret", "token", "password", "authorization"}

func maskSensitive(extra map[string]any) Details {
	if len(extra) == 0 {
		return nil
	}

	out := make(Details, len(extra))
	for k, v := range extra {
		lower := strings.ToLower(k)
		masked := false
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				masked = true
				break
			}
		}
		if masked {
			if str, ok := v.(string); ok {
				out[k] = logging.SecretPrefix(str)
				continue
			}
			out[k] = "***"
			continue
		}
		out[k] = v
	}
	return out
}
