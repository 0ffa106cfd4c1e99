package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventTokenRotated      EventType = "TOKEN_ROTATED"
	EventRefreshFailed     EventType = "TOKEN_REFRESH_FAILED"
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventUserIntervention  EventType = "USER_INTERVENTION"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Details stores event-specific fields as JSON.
type Details map[string]any

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *Details) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal audit details value: %v", value)
	}

	result := make(Details)
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*d = result
	return nil
}

// Entry is an append-only security audit record.
type Entry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	EventType EventType `gorm:"type:varchar(50);index;not null" json:"event_type"`
	Severity  Severity  `gorm:"type:varchar(20);not null" json:"severity"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Provider  string    `gorm:"type:varchar(64);index" json:"provider"`
	Action    string    `gorm:"type:varchar(255);not null" json:"action"`
	ErrorType string    `gorm:"type:varchar(64)" json:"error_type,omitempty"`
	Message   string    `gorm:"type:text" json:"message,omitempty"`

	IPAddress string `gorm:"type:varchar(45);index" json:"ip_address,omitempty"`
	UserAgent string `gorm:"type:varchar(500)" json:"user_agent,omitempty"`
	Browser   string `gorm:"type:varchar(100)" json:"browser,omitempty"`
	OS        string `gorm:"type:varchar(100)" json:"os,omitempty"`

	Details   Details   `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

func (Entry) TableName() string {
	return "security_audit_log"
}
