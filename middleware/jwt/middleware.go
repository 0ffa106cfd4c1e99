package jwt

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/cloudtoken/services/jwt"
)

const (
	UserIDKey = "_jwt_user_id"
	ClaimsKey = "_jwt_claims"
)

// RequireAdmin guards the admin API with a bearer admin token. With no JWT
// secret configured the API is left open for local use.
func RequireAdmin(jwtService *jwt.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !jwtService.Enabled() {
				return next(c)
			}

			tokenString, err := BearerToken(c)
			if err != nil {
				return err
			}

			claims, err := jwtService.ValidateAdminToken(tokenString)
			if err != nil {
				return HTTPError(err)
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "JWT token required")
	}

	return tokenString, nil
}

// HTTPError maps a validation error from the jwt service to a 401.
func HTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "JWT token has expired")
	case errors.Is(err, jwt.ErrMalformedToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "Malformed JWT token")
	case errors.Is(err, jwt.ErrInvalidSignature):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid JWT token signature")
	case errors.Is(err, jwt.ErrTokenRevoked):
		return echo.NewHTTPError(http.StatusUnauthorized, "JWT token has already been used")
	case errors.Is(err, jwt.ErrWrongTokenType):
		return echo.NewHTTPError(http.StatusForbidden, "JWT token is not valid for this endpoint")
	default:
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid JWT token")
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetClaims(c echo.Context) *jwt.Claims {
	if claims, ok := c.Get(ClaimsKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}
