package revocation

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAlreadyRevoked = errors.New("token already revoked")

func hashJTI(jti string) string {
	hash := sha256.Sum256([]byte(jti))
	return fmt.Sprintf("%x", hash[:8])
}

// RevokedToken marks a signed link as used until it would have expired
// anyway.
type RevokedToken struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	JTI       string    `json:"jti" gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

type Store struct {
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

func NewStore(db *gorm.DB, logger *logging.Service) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// Revoke records jti. It returns ErrAlreadyRevoked when another caller got
// there first, which makes single-use consumption race free.
func (s *Store) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&RevokedToken{JTI: jti, ExpiresAt: expiresAt})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to revoke token",
				zap.String("jti_hash", hashJTI(jti)),
				zap.Error(result.Error))
		}
		return fmt.Errorf("failed to revoke token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyRevoked
	}

	if s.logger != nil {
		s.logger.Debug("token revoked",
			zap.String("jti_hash", hashJTI(jti)),
			zap.Time("expires_at", expiresAt))
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, s.now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return count > 0, nil
}

// Cleanup deletes entries whose tokens have expired.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&RevokedToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clean revoked tokens: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up expired revoked tokens",
			zap.Int64("expired_count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}
