package session_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/embedder/mock"
	chromemIndex "github.com/tiermem/tiermem-go/pkg/index/chromem"
	"github.com/tiermem/tiermem-go/pkg/session"
	sqliteStore "github.com/tiermem/tiermem-go/pkg/store/sqlite"
)

func setupManager(t *testing.T) *session.Manager {
	t.Helper()

	records, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "tiermem.db"),
	})
	require.NoError(t, err)

	idx, err := chromemIndex.New(&chromemIndex.Config{})
	require.NoError(t, err)

	cfg := &core.Config{
		Embedder: core.EmbedderConfig{Provider: "mock"},
		Index:    core.IndexConfig{Provider: "chromem"},
	}
	mem, err := core.NewMemoryStoreWithProviders(cfg, mock.New(0), idx, records)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	return session.NewManager(mem)
}

func TestManager_CreateSession(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, sess.Record.SessionID)
	assert.Equal(t, "test_user", sess.Record.UserID)
	assert.True(t, sess.Record.IsActive)
	assert.Equal(t, core.SessionActive, sess.Record.State())

	// Context enrichment auto-creates the profile.
	require.NotNil(t, sess.Context.Profile)
	assert.Equal(t, "test_user", sess.Context.Profile.UserID)
}

func TestManager_CreateSession_DuplicateActive(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "test_user", "sess-1", nil)
	require.NoError(t, err)

	_, err = mgr.CreateSession(ctx, "test_user", "sess-1", nil)
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestManager_CreateSession_Validation(t *testing.T) {
	mgr := setupManager(t)

	_, err := mgr.CreateSession(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestManager_RecordInteraction(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	err = mgr.RecordInteraction(ctx, id,
		"What meetings do I have tomorrow?",
		"I have found 3 meetings on your calendar.",
		[]string{"calendar"})
	require.NoError(t, err)

	record, err := mgr.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)

	require.Len(t, record.Interactions, 1)
	assert.Contains(t, record.ToolsUsed, "calendar")
	assert.Contains(t, record.TopicsDiscussed, "calendar")
	assert.Greater(t, record.Interactions[0].ImportanceScore, 0.3)
}

func TestManager_RecordInteraction_PartialTurnMerged(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	// User half first, agent half later: one interaction, not two.
	err = mgr.RecordInteraction(ctx, id, "What is on my calendar?", "", nil)
	require.NoError(t, err)
	err = mgr.RecordInteraction(ctx, id, "", "You have 2 meetings today.", []string{"calendar"})
	require.NoError(t, err)

	record, err := mgr.GetSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, record.Interactions, 1)
	assert.Equal(t, "What is on my calendar?", record.Interactions[0].UserInput)
	assert.Equal(t, "You have 2 meetings today.", record.Interactions[0].AgentResponse)
}

func TestManager_RecordInteraction_UnknownSessionDropped(t *testing.T) {
	mgr := setupManager(t)

	err := mgr.RecordInteraction(context.Background(), "no-such-session", "hello", "hi", nil)
	assert.NoError(t, err)
}

func TestManager_RecordInteraction_EmptyRejected(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)

	err = mgr.RecordInteraction(ctx, sess.Record.SessionID, "", "", nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestManager_RecordInteraction_CapturesFactsAndPreferences(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)

	err = mgr.RecordInteraction(ctx, sess.Record.SessionID,
		"My name is Jordan. I prefer concise replies",
		"Nice to meet you, Jordan.",
		nil)
	require.NoError(t, err)

	facts, err := mgr.Search(ctx, "test_user", "user name",
		core.WithType(core.TypeFact))
	require.NoError(t, err)
	require.NotEmpty(t, facts)
	assert.Equal(t, "My name is Jordan", facts[0].Content)

	prefs, err := mgr.Search(ctx, "test_user", "concise replies",
		core.WithType(core.TypePreference))
	require.NoError(t, err)
	require.NotEmpty(t, prefs)
	assert.Equal(t, "I prefer concise replies", prefs[0].Content)
}

func TestManager_EndSession(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	err = mgr.RecordInteraction(ctx, id,
		"What meetings do I have tomorrow?",
		"I have found 3 meetings on your calendar.",
		[]string{"calendar"})
	require.NoError(t, err)

	record, err := mgr.EndSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.False(t, record.IsActive)
	assert.NotNil(t, record.EndTime)
	assert.Equal(t, core.SessionEnded, record.State())
	assert.Contains(t, record.Summary, "Session with 1 interactions")
	assert.Contains(t, record.Summary, "calendar")
	assert.Contains(t, record.Outcomes, "Calendar management")
}

func TestManager_EndSession_EmptySession(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)

	record, err := mgr.EndSession(ctx, sess.Record.SessionID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Brief session", record.Summary)
}

func TestManager_EndSession_TwiceIsNoop(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	first, err := mgr.EndSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := mgr.EndSession(ctx, id)
	assert.NoError(t, err)
	assert.Nil(t, second)
}

func TestManager_EndSession_UnknownIsNoop(t *testing.T) {
	mgr := setupManager(t)

	record, err := mgr.EndSession(context.Background(), "no-such-session")
	assert.NoError(t, err)
	assert.Nil(t, record)
}

func TestManager_InteractionAfterEndDropped(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	_, err = mgr.EndSession(ctx, id)
	require.NoError(t, err)

	// The session is gone; the late interaction is dropped silently.
	err = mgr.RecordInteraction(ctx, id, "hello", "hi", nil)
	assert.NoError(t, err)

	record, err := mgr.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Empty(t, record.Interactions)
}

func TestManager_EndSession_LearnsResponseLength(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	long := strings.Repeat("detail ", 50)
	for i := 0; i < 5; i++ {
		err = mgr.RecordInteraction(ctx, id, "tell me more", long, nil)
		require.NoError(t, err)
	}

	_, err = mgr.EndSession(ctx, id)
	require.NoError(t, err)

	profile, err := mgr.GetUserProfile(ctx, "test_user")
	require.NoError(t, err)
	assert.Equal(t, "detailed", profile.CommunicationStyle["preferred_response_length"])
}

func TestManager_EndSession_SessionArchived(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	err = mgr.RecordInteraction(ctx, id, "Send the report please", "Done, I have sent it.", []string{"email"})
	require.NoError(t, err)

	_, err = mgr.EndSession(ctx, id)
	require.NoError(t, err)

	// The archived record is still readable after the session is gone from
	// the active set.
	record, err := mgr.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.IsActive)
	require.Len(t, record.Interactions, 1)
	assert.Equal(t, "Send the report please", record.Interactions[0].UserInput)
}

func TestManager_GetSession_Unknown(t *testing.T) {
	mgr := setupManager(t)

	record, err := mgr.GetSession(context.Background(), "no-such-session")
	assert.NoError(t, err)
	assert.Nil(t, record)
}

func TestManager_RecordInteraction_RepeatedFactCapturedOnce(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	// The same fact and preference stated across two turns.
	for i := 0; i < 2; i++ {
		err = mgr.RecordInteraction(ctx, id,
			"My name is Jordan. I prefer concise replies",
			"Nice to meet you, Jordan.",
			nil)
		require.NoError(t, err)
	}

	facts, err := mgr.Search(ctx, "test_user", "user name",
		core.WithType(core.TypeFact), core.WithLimit(10))
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "My name is Jordan", facts[0].Content)

	prefs, err := mgr.Search(ctx, "test_user", "concise replies",
		core.WithType(core.TypePreference), core.WithLimit(10))
	require.NoError(t, err)
	var matching int
	for _, p := range prefs {
		if p.Content == "I prefer concise replies" {
			matching++
		}
	}
	assert.Equal(t, 1, matching)
}

func TestManager_GetSession_ActiveSnapshotDetached(t *testing.T) {
	mgr := setupManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "test_user", "", nil)
	require.NoError(t, err)
	id := sess.Record.SessionID

	before, err := mgr.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Empty(t, before.Interactions)

	err = mgr.RecordInteraction(ctx, id, "Schedule the standup please", "Done, I have scheduled it.", []string{"calendar"})
	require.NoError(t, err)

	// The earlier snapshot is unaffected by the later interaction.
	assert.Empty(t, before.Interactions)
	assert.Empty(t, before.ToolsUsed)

	after, err := mgr.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Len(t, after.Interactions, 1)
}
