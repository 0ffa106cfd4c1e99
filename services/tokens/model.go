package tokens

import "time"

// Token is one user's credentials for one storage provider.
type Token struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	UserID   uint   `gorm:"not null;uniqueIndex:idx_user_provider" json:"user_id"`
	Provider string `gorm:"size:64;not null;uniqueIndex:idx_user_provider" json:"provider"`
	Email    string `gorm:"size:255" json:"email"`

	AccessSecret  string   `gorm:"type:text" json:"-"`
	RefreshSecret string   `gorm:"type:text" json:"-"`
	TokenType     string   `gorm:"size:32" json:"token_type"`
	Scopes        []string `gorm:"serializer:json" json:"scopes"`

	ExpiresAt                *time.Time `gorm:"index" json:"expires_at"`
	RequiresUserIntervention bool       `gorm:"not null;default:false;index" json:"requires_user_intervention"`
	RefreshFailureCount      int        `gorm:"not null;default:0" json:"refresh_failure_count"`
	LastErrorType            string     `gorm:"size:64" json:"last_error_type,omitempty"`

	LastRefreshAttemptAt        *time.Time `json:"last_refresh_attempt_at"`
	LastSuccessfulRefreshAt     *time.Time `json:"last_successful_refresh_at"`
	ProactiveRefreshScheduledAt *time.Time `gorm:"index" json:"proactive_refresh_scheduled_at"`

	// Version increases with every write. Update only applies to the
	// version it was loaded at.
	Version uint `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Token) TableName() string {
	return "cloud_storage_tokens"
}

// ExpiresWithin reports whether the token expires before now+buffer. A token
// without an expiry never does.
func (t *Token) ExpiresWithin(buffer time.Duration, now time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return t.ExpiresAt.Before(now.Add(buffer))
}

func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// CanRefresh reports whether an automatic refresh may be attempted.
func (t *Token) CanRefresh() bool {
	return !t.RequiresUserIntervention && t.RefreshSecret != ""
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	c := *t
	if t.Scopes != nil {
		c.Scopes = append([]string(nil), t.Scopes...)
	}
	c.ExpiresAt = cloneTime(t.ExpiresAt)
	c.LastRefreshAttemptAt = cloneTime(t.LastRefreshAttemptAt)
	c.LastSuccessfulRefreshAt = cloneTime(t.LastSuccessfulRefreshAt)
	c.ProactiveRefreshScheduledAt = cloneTime(t.ProactiveRefreshScheduledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
