package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/testutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func TestService_Record(t *testing.T) {
	db := testutils.SetupTestDB(t, &Entry{})
	core, logs := observer.New(zapcore.DebugLevel)
	service := NewService(db, logging.FromZap(zap.New(core)))

	fixed := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	err := service.Record(context.Background(), Record{
		EventType: EventRefreshFailed,
		Severity:  SeverityWarning,
		UserID:    12,
		Action:    "refresh_token",
		ErrorType: "NETWORK_ERROR",
		Message:   "connection reset",
		Context: Context{
			IPAddress: "203.0.113.9",
			UserAgent: firefoxUA,
			Provider:  "dropbox",
			Extra: map[string]any{
				"refresh_token": "sl.abcdefghijklmnop",
				"attempts":      3,
			},
		},
	})
	require.NoError(t, err)

	var entry Entry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, EventRefreshFailed, entry.EventType)
	assert.Equal(t, uint(12), entry.UserID)
	assert.Equal(t, "dropbox", entry.Provider)
	assert.Equal(t, "NETWORK_ERROR", entry.ErrorType)
	assert.Equal(t, "203.0.113.9", entry.IPAddress)
	assert.Contains(t, entry.Browser, "Firefox")
	assert.Contains(t, entry.OS, "Linux")
	assert.Equal(t, "sl.abcde...", entry.Details["refresh_token"])
	assert.EqualValues(t, 3, entry.Details["attempts"])
	assert.True(t, fixed.Equal(entry.CreatedAt))

	require.Equal(t, 1, logs.FilterMessage("security audit").Len())
	logged := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, logged.Level)
	assert.Equal(t, "dropbox", logged.ContextMap()["provider"])
}

func TestService_Recent(t *testing.T) {
	db := testutils.SetupTestDB(t, &Entry{})
	service := NewService(db, nil)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, action := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Minute)
		service.now = func() time.Time { return at }
		require.NoError(t, service.Record(ctx, Record{
			EventType: EventTokenRotated, Severity: SeverityInfo, UserID: 1, Action: action,
		}))
	}
	require.NoError(t, service.Record(ctx, Record{
		EventType: EventTokenRotated, Severity: SeverityInfo, UserID: 2, Action: "other",
	}))

	entries, err := service.Recent(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Action)
	assert.Equal(t, "second", entries[1].Action)
}

func TestDescribeAgent(t *testing.T) {
	browser, os := describeAgent("")
	assert.Empty(t, browser)
	assert.Empty(t, os)

	browser, os = describeAgent(firefoxUA)
	assert.True(t, strings.HasPrefix(browser, "Firefox 120"))
	assert.True(t, strings.HasPrefix(os, "Linux"))
}

func TestMaskSensitive(t *testing.T) {
	assert.Nil(t, maskSensitive(nil))

	out := maskSensitive(map[string]any{
		"access_token":  "ya29.a0AfH6SMBx",
		"client_secret": 42,
		"queue":         "high",
	})
	assert.Equal(t, "ya29.a0A...", out["access_token"])
	assert.Equal(t, "***", out["client_secret"])
	assert.Equal(t, "high", out["queue"])
}
