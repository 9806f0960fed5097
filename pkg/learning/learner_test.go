package learning_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/learning"
	"github.com/tiermem/tiermem-go/pkg/store"
	sqliteStore "github.com/tiermem/tiermem-go/pkg/store/sqlite"
)

func setupLearner(t *testing.T) (*learning.Learner, store.RecordStore) {
	t.Helper()

	records, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "tiermem.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	return learning.NewLearner(records), records
}

func TestLearner_UpdatePreference_Create(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	pref, err := learner.UpdatePreference(ctx, "test_user", "response_style", "concise",
		core.PreferenceExplicit, 0.9, core.CategoryCommunication)
	require.NoError(t, err)

	assert.Equal(t, "concise", pref.Value)
	assert.Equal(t, 0.9, pref.ConfidenceScore)
	assert.Equal(t, core.CategoryCommunication, pref.Category)
	assert.Len(t, pref.History, 1)
}

func TestLearner_UpdatePreference_ReinforcementNeverDecreases(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	pref, err := learner.UpdatePreference(ctx, "test_user", "response_style", "concise",
		core.PreferenceExplicit, 0.6, core.CategoryCommunication)
	require.NoError(t, err)
	last := pref.ConfidenceScore

	// Immediate reinforcement adds nearly nothing (time factor ~0) but the
	// confidence must never drop.
	for i := 0; i < 5; i++ {
		pref, err = learner.UpdatePreference(ctx, "test_user", "response_style", "concise",
			core.PreferenceExplicit, 0.6, core.CategoryCommunication)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pref.ConfidenceScore, last)
		assert.LessOrEqual(t, pref.ConfidenceScore, 1.0)
		last = pref.ConfidenceScore
	}
}

func TestLearner_UpdatePreference_EstablishedNotDisplaced(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	_, err := learner.UpdatePreference(ctx, "test_user", "response_style", "concise",
		core.PreferenceExplicit, 0.95, core.CategoryCommunication)
	require.NoError(t, err)

	// A conflicting observation cannot land above 0.7 while the stored
	// confidence is high.
	pref, err := learner.UpdatePreference(ctx, "test_user", "response_style", "detailed",
		core.PreferenceImplicit, 0.9, core.CategoryCommunication)
	require.NoError(t, err)

	assert.Equal(t, "detailed", pref.Value)
	assert.LessOrEqual(t, pref.ConfidenceScore, 0.7)
}

func TestLearner_UpdatePreference_HistoryBounded(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	var pref *core.UserPreference
	var err error
	for i := 0; i < 15; i++ {
		value := "concise"
		if i%2 == 1 {
			value = "detailed"
		}
		pref, err = learner.UpdatePreference(ctx, "test_user", "response_style", value,
			core.PreferenceImplicit, 0.5, core.CategoryCommunication)
		require.NoError(t, err)
	}
	assert.Len(t, pref.History, 10)
}

func TestLearner_UpdatePreference_Validation(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	_, err := learner.UpdatePreference(ctx, "", "key", "value",
		core.PreferenceExplicit, 0.5, core.CategoryGeneral)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = learner.UpdatePreference(ctx, "test_user", "", "value",
		core.PreferenceExplicit, 0.5, core.CategoryGeneral)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestLearner_GetUserPreferences_SortedByConfidence(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	_, err := learner.UpdatePreference(ctx, "test_user", "weak", "v",
		core.PreferenceImplicit, 0.4, core.CategoryGeneral)
	require.NoError(t, err)
	_, err = learner.UpdatePreference(ctx, "test_user", "strong", "v",
		core.PreferenceExplicit, 0.9, core.CategoryCommunication)
	require.NoError(t, err)

	prefs, err := learner.GetUserPreferences(ctx, "test_user", "")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "strong", prefs[0].Key)

	comms, err := learner.GetUserPreferences(ctx, "test_user", core.CategoryCommunication)
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, "strong", comms[0].Key)
}

func TestLearner_LearnFromInteraction(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	learner.LearnFromInteraction(ctx, "test_user",
		"I always want email summaries", "Noted.", nil)

	prefs, err := learner.GetUserPreferences(ctx, "test_user", "")
	require.NoError(t, err)
	require.NotEmpty(t, prefs)

	var found *core.UserPreference
	for _, p := range prefs {
		if p.Key == "preference_communication" {
			found = p
			break
		}
	}
	require.NotNil(t, found, "expected a communication preference")
	assert.GreaterOrEqual(t, found.ConfidenceScore, 0.85)
	assert.Equal(t, core.PreferenceExplicit, found.PreferenceType)
}

func TestLearner_LearnFromInteraction_ToolUsage(t *testing.T) {
	learner, _ := setupLearner(t)
	ctx := context.Background()

	learner.LearnFromInteraction(ctx, "test_user",
		"Schedule a meeting for tomorrow", "Done, meeting scheduled.",
		[]string{"calendar"})

	prefs, err := learner.GetUserPreferences(ctx, "test_user", core.CategoryFunctionality)
	require.NoError(t, err)

	var found bool
	for _, p := range prefs {
		if p.Key == "tool_usage_calendar" {
			found = true
			assert.Equal(t, core.PreferenceImplicit, p.PreferenceType)
			assert.InDelta(t, 0.7, p.ConfidenceScore, 0.001)
		}
	}
	assert.True(t, found, "expected a tool_usage_calendar preference")
}
