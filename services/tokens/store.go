package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenChanged is returned by Update when the row was rewritten or
	// deleted after the token was loaded.
	ErrTokenChanged = errors.New("token changed since it was loaded")
)

// refreshColumns are the columns a refresh owns. Identity, email and the
// proactive schedule mark are written elsewhere.
var refreshColumns = []string{
	"access_secret", "refresh_secret", "token_type", "scopes", "expires_at",
	"requires_user_intervention", "refresh_failure_count", "last_error_type",
	"last_refresh_attempt_at", "last_successful_refresh_at", "version", "updated_at",
}

// Repository is the token store used by the refresh core. Returned tokens
// carry decrypted secrets and are owned by the caller.
type Repository interface {
	Find(ctx context.Context, userID uint, provider string) (*Token, error)
	Save(ctx context.Context, token *Token) error
	// Update writes the refresh state of an existing token if nobody else
	// wrote it since it was loaded, and returns ErrTokenChanged otherwise.
	Update(ctx context.Context, token *Token) error
	Upsert(ctx context.Context, token *Token) (*Token, error)
	Delete(ctx context.Context, userID uint, provider string) error
	// FindExpiring returns refreshable tokens expiring before the cutoff
	// that have no proactive refresh scheduled.
	FindExpiring(ctx context.Context, before time.Time) ([]*Token, error)
	MarkScheduled(ctx context.Context, id uint, at *time.Time) error
}

type Store struct {
	db     *gorm.DB
	cipher *Cipher
	logger *logging.Service
}

var _ Repository = (*Store)(nil)

// NewStore returns a gorm-backed store. A nil cipher stores secrets as given.
func NewStore(db *gorm.DB, cipher *Cipher, logger *logging.Service) *Store {
	if cipher == nil && logger != nil {
		logger.Warn("token encryption key not configured, secrets are stored in plaintext")
	}
	return &Store{db: db, cipher: cipher, logger: logger}
}

func (s *Store) Find(ctx context.Context, userID uint, provider string) (*Token, error) {
	var token Token
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.open(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Save writes the whole token unconditionally, inserting it when it has no
// id.
func (s *Store) Save(ctx context.Context, token *Token) error {
	row, err := s.seal(token)
	if err != nil {
		return err
	}
	row.Version = token.Version + 1

	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to save token",
				zap.Error(err),
				zap.Uint("user_id", token.UserID),
				zap.String("provider", token.Provider))
		}
		return fmt.Errorf("failed to save token: %w", err)
	}

	token.ID = row.ID
	token.Version = row.Version
	token.CreatedAt = row.CreatedAt
	token.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) Update(ctx context.Context, token *Token) error {
	row, err := s.seal(token)
	if err != nil {
		return err
	}
	row.Version = token.Version + 1

	result := s.db.WithContext(ctx).
		Model(row).
		Where("version = ?", token.Version).
		Select(refreshColumns).
		Updates(row)
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to update token",
				zap.Error(result.Error),
				zap.Uint("user_id", token.UserID),
				zap.String("provider", token.Provider))
		}
		return fmt.Errorf("failed to update token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTokenChanged
	}

	token.Version = row.Version
	token.UpdatedAt = row.UpdatedAt
	return nil
}

// Upsert stores a freshly authorised token, replacing any existing row for
// the same user and provider. Reconnecting clears the intervention flag and
// failure state.
func (s *Store) Upsert(ctx context.Context, token *Token) (*Token, error) {
	token.RequiresUserIntervention = false
	token.RefreshFailureCount = 0
	token.LastErrorType = ""
	token.ProactiveRefreshScheduledAt = nil

	row, err := s.seal(token)
	if err != nil {
		return nil, err
	}

	row.Version = 1

	updates := clause.AssignmentColumns([]string{
		"email", "access_secret", "refresh_secret", "token_type", "scopes",
		"expires_at", "requires_user_intervention", "refresh_failure_count",
		"last_error_type", "proactive_refresh_scheduled_at", "updated_at",
	})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("cloud_storage_tokens.version + 1"),
	})

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: updates,
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("token stored",
			zap.Uint("user_id", token.UserID),
			zap.String("provider", token.Provider))
	}

	return s.Find(ctx, token.UserID, token.Provider)
}

func (s *Store) Delete(ctx context.Context, userID uint, provider string) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&Token{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *Store) FindExpiring(ctx context.Context, before time.Time) ([]*Token, error) {
	var rows []Token
	err := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", before).
		Where("requires_user_intervention = ?", false).
		Where("proactive_refresh_scheduled_at IS NULL").
		Order("expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load expiring tokens: %w", err)
	}

	result := make([]*Token, 0, len(rows))
	for i := range rows {
		if err := s.open(&rows[i]); err != nil {
			return nil, err
		}
		result = append(result, &rows[i])
	}
	return result, nil
}

func (s *Store) MarkScheduled(ctx context.Context, id uint, at *time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&Token{}).
		Where("id = ?", id).
		Update("proactive_refresh_scheduled_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark token scheduled: %w", err)
	}
	return nil
}

func (s *Store) seal(token *Token) (*Token, error) {
	row := token.Clone()
	if s.cipher == nil {
		return row, nil
	}

	var err error
	if row.AccessSecret, err = s.cipher.Encrypt(token.AccessSecret); err != nil {
		return nil, fmt.Errorf("encrypt access secret: %w", err)
	}
	if row.RefreshSecret, err = s.cipher.Encrypt(token.RefreshSecret); err != nil {
		return nil, fmt.Errorf("encrypt refresh secret: %w", err)
	}
	return row, nil
}

func (s *Store) open(token *Token) error {
	if s.cipher == nil {
		return nil
	}

	var err error
	if token.AccessSecret, err = s.cipher.Decrypt(token.AccessSecret); err != nil {
		return err
	}
	if token.RefreshSecret, err = s.cipher.Decrypt(token.RefreshSecret); err != nil {
		return err
	}
	return nil
}
