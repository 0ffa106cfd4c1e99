package storageerrors

import (
	"errors"
	"fmt"
	"time"
)

const (
	ProviderGoogleDrive = "google-drive"
	ProviderDropbox     = "dropbox"
	ProviderOneDrive    = "onedrive"
	ProviderAmazonS3    = "amazon-s3"
	ProviderAzureBlob   = "azure-blob"
)

var (
	ErrProviderNotConfigured = errors.New("cloud storage provider is not configured")
	ErrRefreshNotSupported   = errors.New("provider does not support token refresh")
)

// Error carries a classified failure together with its cause.
type Error struct {
	Type     ErrorType
	Provider string
	Err      error
	// Attempts is the number of times the failing operation ran.
	Attempts int
	// RetryAfter is set when a retryable failure stopped early and the
	// caller should try again after this delay.
	RetryAfter time.Duration
}

func New(t ErrorType, provider string, err error) *Error {
	return &Error{Type: t, Provider: provider, Err: err, Attempts: 1}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Type)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TypeOf reports the ErrorType attached to err, if any.
func TypeOf(err error) (ErrorType, bool) {
	var se *Error
	if errors.As(err, &se) && se.Type != "" {
		return se.Type, true
	}
	return "", false
}

// Context describes the operation that failed, for classification and
// user-facing messages.
type Context struct {
	Provider  string
	Operation string
	UserID    string
	FileName  string
	FileSize  int64
}
