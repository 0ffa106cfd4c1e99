package refresh

import (
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/tokens"
)

type State string

const (
	StateNoToken                      State = "NO_TOKEN"
	StateValidNotExpiring             State = "VALID_NOT_EXPIRING"
	StateExpiringSoonRefreshable      State = "EXPIRING_SOON_REFRESHABLE"
	StateAlreadyRefreshedConcurrently State = "ALREADY_REFRESHED_CONCURRENTLY"
	StateRefreshInProgressElsewhere   State = "REFRESH_IN_PROGRESS_ELSEWHERE"
	StateRefreshSucceeded             State = "REFRESH_SUCCEEDED"
	StateRefreshFailed                State = "REFRESH_FAILED"
	StateRequiresIntervention         State = "REQUIRES_INTERVENTION"
)

// Classify reports the state of a stored token without refreshing it. A nil
// token is StateNoToken.
func Classify(token *tokens.Token, buffer time.Duration, now time.Time) State {
	switch {
	case token == nil:
		return StateNoToken
	case token.RequiresUserIntervention:
		return StateRequiresIntervention
	case token.ExpiresWithin(buffer, now) && !token.CanRefresh():
		return StateRequiresIntervention
	case token.ExpiresWithin(buffer, now):
		return StateExpiringSoonRefreshable
	default:
		return StateValidNotExpiring
	}
}
