package refresh

import (
	"errors"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/locks"
	"github.com/tech-arch1tect/cloudtoken/services/providers"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
)

var (
	ErrNoToken              = errors.New("no token stored for provider")
	ErrRateLimited          = errors.New("token refresh rate limit exceeded")
	ErrInterventionRequired = errors.New("token requires user re-authentication")
)

type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeAlreadyValid
	OutcomeRefreshedByAnotherProcess
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeAlreadyValid:
		return "already_valid"
	case OutcomeRefreshedByAnotherProcess:
		return "refreshed_by_another_process"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason says why a refresh failed.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonLockTimeout
	ReasonRateLimited
	ReasonNoToken
	ReasonInterventionRequired
	ReasonProviderError
	ReasonInternal
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonLockTimeout:
		return "lock_timeout"
	case ReasonRateLimited:
		return "rate_limited"
	case ReasonNoToken:
		return "no_token"
	case ReasonInterventionRequired:
		return "intervention_required"
	case ReasonProviderError:
		return "provider_error"
	default:
		return "internal"
	}
}

// Result is the outcome of one coordinated refresh. Build it with the
// constructors below and switch on Outcome.
type Result struct {
	Outcome   Outcome
	Reason    Reason
	Message   string
	ErrorType storageerrors.ErrorType
	Err       error
	// TokenData is set only for OutcomeSucceeded.
	TokenData *providers.TokenData
	// Attempts is the number of provider calls made.
	Attempts int
	// FailureCount is the token's consecutive failure count after this call.
	FailureCount int
	RetryAfter   time.Duration
	Duration     time.Duration
}

func Succeeded(data *providers.TokenData, attempts int) *Result {
	return &Result{
		Outcome:   OutcomeSucceeded,
		Message:   "token refreshed",
		TokenData: data,
		Attempts:  attempts,
	}
}

func AlreadyValid() *Result {
	return &Result{Outcome: OutcomeAlreadyValid, Message: "token is still valid"}
}

func RefreshedByAnotherProcess() *Result {
	return &Result{Outcome: OutcomeRefreshedByAnotherProcess, Message: "token was refreshed by another process"}
}

// Failed builds a failure. The error type and retry hints are taken from
// err when it is a classified storage error.
func Failed(reason Reason, err error) *Result {
	r := &Result{Outcome: OutcomeFailed, Reason: reason, Err: err}
	if err != nil {
		r.Message = err.Error()
	}

	var se *storageerrors.Error
	if errors.As(err, &se) {
		r.ErrorType = se.Type
		r.Attempts = se.Attempts
		r.RetryAfter = se.RetryAfter
	}
	return r
}

func (r *Result) Success() bool {
	return r.Outcome != OutcomeFailed
}

func (r *Result) WasAlreadyValid() bool {
	return r.Outcome == OutcomeAlreadyValid
}

func (r *Result) WasRefreshedByAnotherProcess() bool {
	return r.Outcome == OutcomeRefreshedByAnotherProcess
}

// Retryable reports whether running the same refresh later may succeed.
func (r *Result) Retryable() bool {
	if r.Outcome != OutcomeFailed {
		return false
	}
	switch r.Reason {
	case ReasonLockTimeout:
		return true
	case ReasonProviderError:
		return r.RetryAfter > 0 || r.ErrorType.IsRetryable()
	default:
		return false
	}
}

// State maps the result onto the coordinator's state vocabulary.
func (r *Result) State() State {
	switch r.Outcome {
	case OutcomeSucceeded:
		return StateRefreshSucceeded
	case OutcomeAlreadyValid:
		return StateValidNotExpiring
	case OutcomeRefreshedByAnotherProcess:
		return StateAlreadyRefreshedConcurrently
	}

	switch {
	case r.Reason == ReasonNoToken:
		return StateNoToken
	case errors.Is(r.Err, locks.ErrLockTimeout):
		return StateRefreshInProgressElsewhere
	case r.Reason == ReasonInterventionRequired:
		return StateRequiresIntervention
	default:
		return StateRefreshFailed
	}
}
