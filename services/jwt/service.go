package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
)

const (
	TokenTypeReconnect = "reconnect"
	TokenTypeAdmin     = "admin"
)

var (
	ErrInvalidToken     = errors.New("invalid JWT token")
	ErrExpiredToken     = errors.New("JWT token has expired")
	ErrMalformedToken   = errors.New("malformed JWT token")
	ErrInvalidSignature = errors.New("invalid JWT token signature")
	ErrTokenRevoked     = errors.New("JWT token has been revoked")
	ErrWrongTokenType   = errors.New("JWT token has the wrong type")
	ErrNotConfigured    = errors.New("JWT secret key is not configured")
)

// Claims identify the connection a reconnect link is for. Admin tokens leave
// Provider empty.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Provider  string `json:"provider,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// RevocationStore makes reconnect links single use.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Service struct {
	config     *config.JWTConfig
	logger     *logging.Service
	revocation RevocationStore
	now        func() time.Time
}

func NewService(cfg *config.JWTConfig, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) SetRevocationStore(store RevocationStore) {
	s.revocation = store
}

func (s *Service) Enabled() bool {
	return s.config.SecretKey != ""
}

// GenerateReconnectToken signs the link embedded in connection failure
// notifications.
func (s *Service) GenerateReconnectToken(userID uint, provider string) (string, error) {
	return s.generate(Claims{
		UserID:    userID,
		Provider:  provider,
		TokenType: TokenTypeReconnect,
	}, s.config.ReconnectExpiry)
}

func (s *Service) GenerateAdminToken(userID uint) (string, error) {
	return s.generate(Claims{
		UserID:    userID,
		TokenType: TokenTypeAdmin,
	}, s.config.AdminExpiry)
}

func (s *Service) generate(claims Claims, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}

	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    s.config.Issuer,
		Subject:   strconv.FormatUint(uint64(claims.UserID), 10),
		Audience:  []string{s.config.Issuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign JWT token",
				zap.String("token_type", claims.TokenType),
				zap.Error(err))
		}
		return "", fmt.Errorf("failed to generate JWT token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) ValidateAdminToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeAdmin)
}

// ValidateReconnectToken checks signature, expiry and type, and that the link
// has not already been consumed.
func (s *Service) ValidateReconnectToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.validate(tokenString, TokenTypeReconnect)
	if err != nil {
		return nil, err
	}

	if s.revocation != nil {
		revoked, err := s.revocation.IsRevoked(ctx, claims.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("failed to check token revocation status", zap.Error(err))
			}
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// ConsumeReconnectToken validates the link and revokes it so it cannot be
// replayed.
func (s *Service) ConsumeReconnectToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.ValidateReconnectToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if s.revocation == nil {
		return claims, nil
	}

	if err := s.revocation.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		if s.logger != nil {
			s.logger.Warn("reconnect token could not be consumed",
				zap.Uint("user_id", claims.UserID),
				zap.String("provider", claims.Provider),
				zap.Error(err))
		}
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

func (s *Service) validate(tokenString, tokenType string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}

		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}

		return []byte(s.config.SecretKey), nil
	},
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithAudience(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("JWT token validation failed", zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
