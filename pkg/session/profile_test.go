package session_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiermem/tiermem-go/pkg/session"
	sqliteStore "github.com/tiermem/tiermem-go/pkg/store/sqlite"
)

func setupProfiles(t *testing.T) *session.ProfileService {
	t.Helper()

	records, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "tiermem.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	return session.NewProfileService(records)
}

func TestProfileService_AutoCreate(t *testing.T) {
	svc := setupProfiles(t)
	ctx := context.Background()

	profile, err := svc.GetUserProfile(ctx, "test_user")
	require.NoError(t, err)

	assert.Equal(t, "test_user", profile.UserID)
	assert.Equal(t, "professional", profile.Settings["communication_style"])
	assert.Equal(t, "medium", profile.CommunicationStyle["verbosity"])

	// Second read returns the persisted profile.
	again, err := svc.GetUserProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Equal(t, profile.UserID, again.UserID)
	assert.Equal(t, profile.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestProfileService_Validation(t *testing.T) {
	svc := setupProfiles(t)

	_, err := svc.GetUserProfile(context.Background(), "")
	assert.Error(t, err)
}

func TestProfileService_RecordInteraction(t *testing.T) {
	svc := setupProfiles(t)
	ctx := context.Background()

	err := svc.RecordInteraction(ctx, "test_user", []string{"calendar"}, []string{"calendar"})
	require.NoError(t, err)
	err = svc.RecordInteraction(ctx, "test_user", []string{"calendar", "email"}, nil)
	require.NoError(t, err)

	profile, err := svc.GetUserProfile(ctx, "test_user")
	require.NoError(t, err)

	stats := profile.InteractionStats
	assert.EqualValues(t, 2, toInt(stats["total_interactions"]))

	tools, ok := stats["preferred_tools"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, toInt(tools["calendar"]))
	assert.EqualValues(t, 1, toInt(tools["email"]))
}

func TestProfileService_RecordSessionEnd(t *testing.T) {
	svc := setupProfiles(t)
	ctx := context.Background()

	err := svc.RecordSessionEnd(ctx, "test_user", 60*time.Second)
	require.NoError(t, err)
	err = svc.RecordSessionEnd(ctx, "test_user", 120*time.Second)
	require.NoError(t, err)

	profile, err := svc.GetUserProfile(ctx, "test_user")
	require.NoError(t, err)

	stats := profile.InteractionStats
	assert.EqualValues(t, 2, toInt(stats["total_sessions"]))
	assert.InDelta(t, 90.0, toFloat(stats["avg_session_length"]), 0.001)
}

func TestProfileService_UpdateCommunicationStyle(t *testing.T) {
	svc := setupProfiles(t)
	ctx := context.Background()

	err := svc.UpdateCommunicationStyle(ctx, "test_user",
		map[string]interface{}{"verbosity": "detailed"})
	require.NoError(t, err)

	profile, err := svc.GetUserProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Equal(t, "detailed", profile.CommunicationStyle["verbosity"])

	// The default was "medium", so the change is recorded in history.
	history, ok := profile.Settings["communication_style_history"].(map[string]interface{})
	require.True(t, ok)
	changes, ok := history["verbosity"].([]interface{})
	require.True(t, ok)
	require.Len(t, changes, 1)

	change, ok := changes[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "medium", change["old_value"])
	assert.Equal(t, "detailed", change["new_value"])
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func TestProfileService_LifeEvents(t *testing.T) {
	svc := setupProfiles(t)
	ctx := context.Background()

	err := svc.AddLifeEvent(ctx, "test_user", "milestone",
		map[string]interface{}{"description": "Started a new job"},
		time.Time{}, 0.9, []string{"work"})
	require.NoError(t, err)

	err = svc.AddLifeEvent(ctx, "test_user", "recurring",
		map[string]interface{}{"description": "Weekly piano lesson"},
		time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC), 0.4, nil)
	require.NoError(t, err)

	err = svc.AddLifeEvent(ctx, "test_user", "significant",
		map[string]interface{}{"description": "Moved to Lisbon"},
		time.Time{}, 0.7, []string{"relocation"})
	require.NoError(t, err)

	events, err := svc.GetLifeEvents(ctx, "test_user", "", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Most important first.
	assert.Equal(t, "milestone", events[0].EventType)
	assert.Equal(t, "Started a new job", events[0].EventData["description"])
	assert.Equal(t, []string{"work"}, events[0].Tags)
	assert.Equal(t, "significant", events[1].EventType)
	assert.Equal(t, "recurring", events[2].EventType)

	recurring, err := svc.GetLifeEvents(ctx, "test_user", "recurring", 0)
	require.NoError(t, err)
	require.Len(t, recurring, 1)
	assert.Equal(t, 2026, recurring[0].EventDate.Year())

	err = svc.AddLifeEvent(ctx, "test_user", "", nil, time.Time{}, 0.5, nil)
	assert.Error(t, err)
}

func TestProfileService_LifeEventsOnProfile(t *testing.T) {
	svc := setupProfiles(t)
	ctx := context.Background()

	err := svc.AddLifeEvent(ctx, "test_user", "milestone",
		map[string]interface{}{"description": "Started a new job"},
		time.Time{}, 0.9, []string{"work"})
	require.NoError(t, err)

	profile, err := svc.GetUserProfile(ctx, "test_user")
	require.NoError(t, err)

	require.Len(t, profile.RecentEvents, 1)
	assert.Equal(t, "milestone", profile.RecentEvents[0].EventType)

	// The event is mirrored into the persisted profile settings.
	mirrored, ok := profile.Settings["significant_events"].([]interface{})
	require.True(t, ok)
	require.Len(t, mirrored, 1)
	entry, ok := mirrored[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "milestone", entry["type"])
}
