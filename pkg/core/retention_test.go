package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tiermem "github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/store"
)

// seedEntry writes an entry row directly so tests can control CreatedAt.
func seedEntry(t *testing.T, records store.RecordStore, id, userID string, age time.Duration, importance float64, accessCount int) {
	t.Helper()
	created := time.Now().UTC().Add(-age)
	err := records.InsertEntry(context.Background(), &store.Entry{
		ID:              id,
		UserID:          userID,
		Content:         "entry " + id,
		ContentSummary:  "entry " + id,
		MemoryType:      string(tiermem.TypeConversation),
		ImportanceScore: importance,
		CreatedAt:       created,
		LastAccessedAt:  created,
		AccessCount:     accessCount,
	})
	require.NoError(t, err)
}

func TestRetention_SweepRemovesExpiredLowValue(t *testing.T) {
	mem := setupMemoryStore(t)
	records := mem.Records()
	ctx := context.Background()
	userID := "test_user"
	day := 24 * time.Hour

	// Old, unimportant, rarely accessed: swept.
	seedEntry(t, records, "expired", userID, 120*day, 0.2, 0)

	// Old but important: kept.
	seedEntry(t, records, "important", userID, 120*day, 0.8, 0)

	// Old but frequently accessed: kept.
	seedEntry(t, records, "accessed", userID, 120*day, 0.2, 5)

	// Recent and unimportant: kept.
	seedEntry(t, records, "recent", userID, 1*day, 0.2, 0)

	err := mem.Retention().Sweep(ctx, userID)
	require.NoError(t, err)

	gone, err := records.GetEntry(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, gone)

	for _, id := range []string{"important", "accessed", "recent"} {
		entry, err := records.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, entry, "entry %s should survive the sweep", id)
	}
}

func TestRetention_SweepScopedToUser(t *testing.T) {
	mem := setupMemoryStore(t)
	records := mem.Records()
	ctx := context.Background()
	day := 24 * time.Hour

	seedEntry(t, records, "other_user_expired", "user_b", 120*day, 0.1, 0)

	err := mem.Retention().Sweep(ctx, "user_a")
	require.NoError(t, err)

	entry, err := records.GetEntry(ctx, "other_user_expired")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestRetention_BoundariesKept(t *testing.T) {
	mem := setupMemoryStore(t)
	records := mem.Records()
	ctx := context.Background()
	userID := "test_user"
	day := 24 * time.Hour

	// Exactly at the importance threshold: kept (removal requires strictly
	// below).
	seedEntry(t, records, "at_importance", userID, 120*day, 0.3, 0)

	// Exactly at the access threshold: kept.
	seedEntry(t, records, "at_access", userID, 120*day, 0.1, 2)

	err := mem.Retention().Sweep(ctx, userID)
	require.NoError(t, err)

	for _, id := range []string{"at_importance", "at_access"} {
		entry, err := records.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, entry, "entry %s should survive the sweep", id)
	}
}
