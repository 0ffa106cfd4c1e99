package notification

import "github.com/tech-arch1tect/cloudtoken/services/storageerrors"

// Decide reports whether a failure of type t after attemptCount attempts
// warrants telling the user. A non-positive maxAttempts falls back to the
// type's own retry budget.
func Decide(t storageerrors.ErrorType, attemptCount, maxAttempts int) bool {
	if t.ShouldNotifyImmediately() {
		return true
	}
	if maxAttempts <= 0 {
		maxAttempts = t.MaxRetryAttempts()
	}
	return attemptCount >= maxAttempts
}
