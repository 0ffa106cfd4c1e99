package storageerrors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Matcher recognises one family of errors. Classification walks an ordered
// chain of matchers and stops at the first match.
type Matcher func(err error) (ErrorType, bool)

// Chain classifies err with the first matcher that recognises it.
func Chain(err error, matchers ...Matcher) ErrorType {
	if err == nil {
		return ""
	}
	for _, m := range matchers {
		if t, ok := m(err); ok {
			return t
		}
	}
	return UnknownError
}

// sharedMatchers run after the provider specific ones.
func sharedMatchers() []Matcher {
	return []Matcher{
		MatchContext,
		MatchOAuth,
		MatchNetError,
		MatchSubstring,
	}
}

// MatchClassified honours a type that was already attached upstream.
func MatchClassified(err error) (ErrorType, bool) {
	return TypeOf(err)
}

func MatchContext(err error) (ErrorType, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout, true
	}
	return "", false
}

// MatchOAuth maps token endpoint failures using the RFC 6749 error codes
// first and the HTTP status second.
func MatchOAuth(err error) (ErrorType, bool) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return "", false
	}

	switch re.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return InvalidCredentials, true
	case "invalid_scope", "access_denied":
		return InsufficientPermissions, true
	case "temporarily_unavailable", "server_error":
		return ServiceUnavailable, true
	case "slow_down":
		return APIQuotaExceeded, true
	}

	if re.Response != nil {
		if t, ok := classifyStatus(re.Response.StatusCode); ok {
			return t, true
		}
	}

	if strings.Contains(strings.ToLower(string(re.Body)), "invalid_grant") {
		return InvalidCredentials, true
	}

	return "", false
}

func MatchNetError(err error) (ErrorType, bool) {
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return Timeout, true
		}
		return NetworkError, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NetworkError, true
	}

	return "", false
}

type substringRule struct {
	needles []string
	t       ErrorType
}

var substringRules = []substringRule{
	{[]string{"invalid_grant", "token has been expired or revoked", "refresh token is invalid"}, InvalidCredentials},
	{[]string{"timed out", "timeout", "deadline exceeded"}, Timeout},
	{[]string{"service unavailable", "bad gateway", "gateway timeout", "temporarily unavailable", "internal server error"}, ServiceUnavailable},
	{[]string{"rate limit", "too many requests", "ratelimit"}, APIQuotaExceeded},
	{[]string{"connection refused", "connection reset", "no such host", "network is unreachable", "broken pipe", "unexpected eof", "tls handshake"}, NetworkError},
}

// MatchSubstring is the last resort for errors that lost their structure.
func MatchSubstring(err error) (ErrorType, bool) {
	msg := strings.ToLower(err.Error())
	for _, rule := range substringRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.t, true
			}
		}
	}
	return "", false
}

func classifyStatus(code int) (ErrorType, bool) {
	switch {
	case code == http.StatusUnauthorized:
		return InvalidCredentials, true
	case code == http.StatusForbidden:
		return InsufficientPermissions, true
	case code == http.StatusNotFound:
		return FileNotFound, true
	case code == http.StatusRequestTimeout:
		return Timeout, true
	case code == http.StatusRequestEntityTooLarge:
		return FileTooLarge, true
	case code == http.StatusUnsupportedMediaType:
		return InvalidFileType, true
	case code == http.StatusTooManyRequests:
		return APIQuotaExceeded, true
	case code == http.StatusInsufficientStorage:
		return StorageQuotaExceeded, true
	case code == http.StatusGatewayTimeout:
		return Timeout, true
	case code >= 500:
		return ServiceUnavailable, true
	}
	return "", false
}
