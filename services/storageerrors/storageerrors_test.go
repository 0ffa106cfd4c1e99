package storageerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func retrieveError(status int, code string) *oauth2.RetrieveError {
	return &oauth2.RetrieveError{
		Response:  &http.Response{StatusCode: status},
		ErrorCode: code,
	}
}

func TestErrorType_Policies(t *testing.T) {
	nonRetryable := []ErrorType{
		InvalidCredentials, InsufficientPermissions, StorageQuotaExceeded,
		InvalidFileType, FileTooLarge, ProviderNotConfigured,
	}
	for _, et := range nonRetryable {
		assert.False(t, et.IsRetryable(), "%s should not be retryable", et)
		assert.Equal(t, 1, et.MaxRetryAttempts())
	}

	retryable := []ErrorType{NetworkError, ServiceUnavailable, Timeout, APIQuotaExceeded}
	for _, et := range retryable {
		assert.True(t, et.IsRetryable(), "%s should be retryable", et)
		assert.True(t, et.IsRecoverable())
		assert.False(t, et.ShouldNotifyImmediately())
	}

	assert.Equal(t, 2, APIQuotaExceeded.MaxRetryAttempts())
	assert.Equal(t, 3, NetworkError.MaxRetryAttempts())
	assert.True(t, InvalidCredentials.RequiresUserIntervention())
	assert.True(t, InvalidCredentials.ShouldNotifyImmediately())
	assert.False(t, NetworkError.RequiresUserIntervention())
}

func TestErrorType_AllTypesHavePoliciesAndMessages(t *testing.T) {
	types := AllTypes()
	require.Len(t, types, 15)

	for _, et := range types {
		assert.True(t, et.Valid())
		assert.GreaterOrEqual(t, et.MaxRetryAttempts(), 1)
		assert.NotEmpty(t, DefaultMessage(et, Context{Provider: ProviderDropbox}))
		assert.NotEmpty(t, DefaultActions(et, Context{}))
	}

	unknown := ErrorType("SOMETHING_NEW")
	assert.False(t, unknown.Valid())
	assert.Equal(t, UnknownError.Policy(), unknown.Policy())
	assert.NotEmpty(t, DefaultMessage(unknown, Context{}))
}

func TestError_WrapAndTypeOf(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("refresh failed: %w", New(Timeout, ProviderDropbox, cause))

	et, ok := TypeOf(err)
	require.True(t, ok)
	assert.Equal(t, Timeout, et)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dropbox: TIMEOUT: boom")

	_, ok = TypeOf(cause)
	assert.False(t, ok)
}

func TestSharedMatchers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"deadline exceeded", fmt.Errorf("call: %w", context.DeadlineExceeded), Timeout},
		{"invalid grant", retrieveError(http.StatusBadRequest, "invalid_grant"), InvalidCredentials},
		{"invalid client", retrieveError(http.StatusUnauthorized, "invalid_client"), InvalidCredentials},
		{"invalid scope", retrieveError(http.StatusBadRequest, "invalid_scope"), InsufficientPermissions},
		{"token endpoint 503", retrieveError(http.StatusServiceUnavailable, ""), ServiceUnavailable},
		{"token endpoint 429", retrieveError(http.StatusTooManyRequests, ""), APIQuotaExceeded},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutError{}}, Timeout},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, NetworkError},
		{"dns", &net.DNSError{Name: "oauth2.googleapis.com", Err: "no such host"}, NetworkError},
		{"substring timeout", errors.New("request timed out"), Timeout},
		{"substring 503", errors.New("upstream said: Service Unavailable"), ServiceUnavailable},
		{"substring invalid grant", errors.New(`{"error":"invalid_grant"}`), InvalidCredentials},
		{"substring reset", errors.New("read: connection reset by peer"), NetworkError},
		{"unrecognised", errors.New("something odd"), UnknownError},
	}

	h := NewBaseHandler("custom", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Classify(tt.err, Context{}))
		})
	}

	assert.Equal(t, ErrorType(""), h.Classify(nil, Context{}))
}

func TestMatchClassifiedWins(t *testing.T) {
	h := NewGoogleDriveHandler(nil)
	err := New(StorageQuotaExceeded, ProviderGoogleDrive, errors.New("connection reset"))

	assert.Equal(t, StorageQuotaExceeded, h.Classify(err, Context{}))
}

func TestGoogleDriveHandler_Classify(t *testing.T) {
	reason := func(code int, r string) error {
		return &googleapi.Error{Code: code, Errors: []googleapi.ErrorItem{{Reason: r}}}
	}

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"storage quota", reason(http.StatusForbidden, "storageQuotaExceeded"), StorageQuotaExceeded},
		{"user rate limit", reason(http.StatusForbidden, "userRateLimitExceeded"), APIQuotaExceeded},
		{"insufficient permissions", reason(http.StatusForbidden, "insufficientPermissions"), InsufficientPermissions},
		{"folder permissions", reason(http.StatusForbidden, "insufficientFilePermissions"), FolderAccessDenied},
		{"auth error", reason(http.StatusUnauthorized, "authError"), TokenExpired},
		{"bare 401", &googleapi.Error{Code: http.StatusUnauthorized}, TokenExpired},
		{"bare 404", &googleapi.Error{Code: http.StatusNotFound}, FileNotFound},
		{"bare 413", &googleapi.Error{Code: http.StatusRequestEntityTooLarge}, FileTooLarge},
		{"bare 500", &googleapi.Error{Code: http.StatusInternalServerError}, ServiceUnavailable},
		{"wrapped", fmt.Errorf("upload: %w", reason(http.StatusTooManyRequests, "rateLimitExceeded")), APIQuotaExceeded},
		{"falls back to oauth", retrieveError(http.StatusBadRequest, "invalid_grant"), InvalidCredentials},
	}

	h := NewGoogleDriveHandler(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Classify(tt.err, Context{Provider: ProviderGoogleDrive}))
		})
	}
}

func TestGoogleDriveHandler_Messages(t *testing.T) {
	h := NewGoogleDriveHandler(nil)
	ctx := Context{Provider: ProviderGoogleDrive}

	assert.Contains(t, h.UserMessage(StorageQuotaExceeded, ctx), "Google One")
	assert.Contains(t, h.UserMessage(NetworkError, ctx), "Google Drive")
	assert.Contains(t, h.UserMessage(FolderAccessDenied, Context{FileName: "report.pdf"}), "report.pdf")
	assert.Len(t, h.RecommendedActions(StorageQuotaExceeded, ctx), 3)
	assert.Equal(t, DefaultActions(Timeout, ctx), h.RecommendedActions(Timeout, ctx))
}

func TestS3Handler_Classify(t *testing.T) {
	apiErr := func(code string, fault smithy.ErrorFault) error {
		return &smithy.GenericAPIError{Code: code, Message: "failed", Fault: fault}
	}

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"access denied", apiErr("AccessDenied", smithy.FaultClient), InsufficientPermissions},
		{"bad key", apiErr("InvalidAccessKeyId", smithy.FaultClient), InvalidCredentials},
		{"expired", apiErr("ExpiredToken", smithy.FaultClient), TokenExpired},
		{"missing key", apiErr("NoSuchKey", smithy.FaultClient), FileNotFound},
		{"missing bucket", apiErr("NoSuchBucket", smithy.FaultClient), ProviderNotConfigured},
		{"throttled", apiErr("SlowDown", smithy.FaultServer), APIQuotaExceeded},
		{"unknown server fault", apiErr("Weird", smithy.FaultServer), ServiceUnavailable},
		{"unknown client fault", apiErr("Weird", smithy.FaultClient), UnknownError},
	}

	h := NewS3Handler(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Classify(tt.err, Context{}))
		})
	}

	assert.Contains(t, h.UserMessage(ProviderNotConfigured, Context{}), "bucket")
}

func TestDropboxHandler_Classify(t *testing.T) {
	h := NewDropboxHandler(nil)

	assert.Equal(t, FileNotFound, h.Classify(errors.New("files/download: path/not_found/.."), Context{}))
	assert.Equal(t, StorageQuotaExceeded, h.Classify(errors.New("upload: path/insufficient_space/."), Context{}))
	assert.Equal(t, APIQuotaExceeded, h.Classify(errors.New("too_many_write_operations"), Context{}))
	assert.Equal(t, TokenExpired, h.Classify(errors.New("expired_access_token/"), Context{}))
	assert.Equal(t, InvalidCredentials, h.Classify(retrieveError(http.StatusBadRequest, "invalid_grant"), Context{}))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)

	assert.IsType(t, &GoogleDriveHandler{}, r.For(ProviderGoogleDrive))
	assert.Equal(t, ProviderDropbox, r.For(ProviderDropbox).Provider())
	assert.Equal(t, ProviderOneDrive, r.For(ProviderOneDrive).Provider())
	assert.Equal(t, "box", r.For("box").Provider())

	gerr := &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "storageQuotaExceeded"}}}
	assert.Equal(t, StorageQuotaExceeded, r.Classify(gerr, Context{Provider: ProviderGoogleDrive}))
	assert.NotEqual(t, StorageQuotaExceeded, r.Classify(gerr, Context{Provider: ProviderDropbox}))

	assert.Contains(t, r.UserMessage(InvalidCredentials, Context{Provider: ProviderOneDrive}), "OneDrive")
	assert.NotEmpty(t, r.RecommendedActions(UnknownError, Context{Provider: "box"}))
}
