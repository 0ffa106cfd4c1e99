package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmlTemplate "html/template"
	"path/filepath"
	"strings"
	textTemplate "text/template"
	"time"

	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

var ErrTemplateNotFound = errors.New("mail template not found")

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Service struct {
	config        *config.MailConfig
	client        Sender
	htmlTemplates *htmlTemplate.Template
	textTemplates *textTemplate.Template
	logger        *logging.Service
}

func NewService(cfg *config.MailConfig, logger *logging.Service) (*Service, error) {
	if logger != nil {
		logger.Info("initializing mail service",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("encryption", cfg.Encryption),
			zap.String("from_address", cfg.FromAddress))
	}

	clientOpts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username))
	}
	if cfg.Password != "" {
		clientOpts = append(clientOpts, mail.WithPassword(cfg.Password))
	}

	switch cfg.Encryption {
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		if logger != nil {
			logger.Error("failed to create mail client",
				zap.Error(err),
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port))
		}
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return NewServiceWithClient(cfg, logger, client)
}

// NewServiceWithClient builds the service around an existing sender.
func NewServiceWithClient(cfg *config.MailConfig, logger *logging.Service, client Sender) (*Service, error) {
	if cfg.FromAddress == "" {
		if logger != nil {
			logger.Error("mail service initialization failed: FROM_ADDRESS is required")
		}
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	service := &Service{
		config: cfg,
		client: client,
		logger: logger,
	}

	if err := service.loadTemplates(); err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	return service, nil
}

func (s *Service) loadTemplates() error {
	if s.config.TemplatesDir == "" {
		return nil
	}

	htmlPattern := filepath.Join(s.config.TemplatesDir, "*.html")
	textPattern := filepath.Join(s.config.TemplatesDir, "*.txt")

	var err error
	s.htmlTemplates, err = htmlTemplate.ParseGlob(htmlPattern)
	if err != nil && !isNoMatch(err) {
		if s.logger != nil {
			s.logger.Error("failed to parse HTML templates",
				zap.Error(err),
				zap.String("pattern", htmlPattern))
		}
		return fmt.Errorf("failed to parse HTML templates: %w", err)
	}

	s.textTemplates, err = textTemplate.ParseGlob(textPattern)
	if err != nil && !isNoMatch(err) {
		if s.logger != nil {
			s.logger.Error("failed to parse text templates",
				zap.Error(err),
				zap.String("pattern", textPattern))
		}
		return fmt.Errorf("failed to parse text templates: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("mail templates loaded",
			zap.String("templates_dir", s.config.TemplatesDir),
			zap.Bool("html", s.htmlTemplates != nil),
			zap.Bool("text", s.textTemplates != nil))
	}

	return nil
}

func isNoMatch(err error) bool {
	return strings.Contains(err.Error(), "pattern matches no files")
}

// HasTemplate reports whether an html or txt template with this name is loaded.
func (s *Service) HasTemplate(name string) bool {
	if s.htmlTemplates != nil && s.htmlTemplates.Lookup(name+".html") != nil {
		return true
	}
	return s.textTemplates != nil && s.textTemplates.Lookup(name+".txt") != nil
}

func (s *Service) NewMessage() (*mail.Msg, error) {
	message := mail.NewMsg()

	if s.config.FromName != "" {
		if err := message.FromFormat(s.config.FromName, s.config.FromAddress); err != nil {
			return nil, fmt.Errorf("failed to set FROM address: %w", err)
		}
		return message, nil
	}

	if err := message.From(s.config.FromAddress); err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}
	return message, nil
}

func (s *Service) Send(ctx context.Context, message *mail.Msg) error {
	startTime := time.Now()
	err := s.client.DialAndSendWithContext(ctx, message)
	duration := time.Since(startTime)

	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send email",
				zap.Error(err),
				zap.Duration("attempt_duration", duration))
		}
		return err
	}

	if s.logger != nil {
		s.logger.Info("email sent successfully",
			zap.Duration("send_duration", duration))
	}
	return nil
}

func (s *Service) compose(to []string, subject string) (*mail.Msg, error) {
	message, err := s.NewMessage()
	if err != nil {
		return nil, err
	}

	if err := message.To(to...); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to set TO addresses",
				zap.Error(err),
				zap.Strings("recipients", to))
		}
		return nil, fmt.Errorf("failed to set TO addresses: %w", err)
	}

	message.Subject(subject)
	return message, nil
}

func (s *Service) SendTemplate(ctx context.Context, templateName string, to []string, subject string, data map[string]any) error {
	if s.logger != nil {
		s.logger.Info("sending template email",
			zap.String("template", templateName),
			zap.Strings("recipients", to),
			zap.String("subject", subject))
	}

	message, err := s.compose(to, subject)
	if err != nil {
		return err
	}

	if err := s.renderTemplate(templateName, data, message); err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return s.Send(ctx, message)
}

func (s *Service) renderTemplate(templateName string, data map[string]any, message *mail.Msg) error {
	var hasTemplate bool

	if s.htmlTemplates != nil {
		if tmpl := s.htmlTemplates.Lookup(templateName + ".html"); tmpl != nil {
			var htmlBuf bytes.Buffer
			if err := tmpl.Execute(&htmlBuf, data); err != nil {
				return fmt.Errorf("failed to execute HTML template: %w", err)
			}
			message.SetBodyString(mail.TypeTextHTML, htmlBuf.String())
			hasTemplate = true
		}
	}

	if s.textTemplates != nil {
		if tmpl := s.textTemplates.Lookup(templateName + ".txt"); tmpl != nil {
			var textBuf bytes.Buffer
			if err := tmpl.Execute(&textBuf, data); err != nil {
				return fmt.Errorf("failed to execute text template: %w", err)
			}
			if hasTemplate {
				message.AddAlternativeString(mail.TypeTextPlain, textBuf.String())
			} else {
				message.SetBodyString(mail.TypeTextPlain, textBuf.String())
			}
			hasTemplate = true
		}
	}

	if !hasTemplate {
		if s.logger != nil {
			s.logger.Warn("template not found", zap.String("template", templateName))
		}
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, templateName)
	}

	return nil
}

func (s *Service) SendPlain(ctx context.Context, to []string, subject, body string) error {
	if s.logger != nil {
		s.logger.Info("sending plain text email",
			zap.Strings("recipients", to),
			zap.String("subject", subject),
			zap.Int("body_length", len(body)))
	}

	message, err := s.compose(to, subject)
	if err != nil {
		return err
	}
	message.SetBodyString(mail.TypeTextPlain, body)

	return s.Send(ctx, message)
}
