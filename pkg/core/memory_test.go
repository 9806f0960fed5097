package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tiermem "github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/embedder"
	"github.com/tiermem/tiermem-go/pkg/embedder/mock"
	chromemIndex "github.com/tiermem/tiermem-go/pkg/index/chromem"
	sqliteStore "github.com/tiermem/tiermem-go/pkg/store/sqlite"
)

func setupMemoryStore(t *testing.T) *tiermem.MemoryStore {
	t.Helper()
	return setupMemoryStoreWithEmbedder(t, mock.New(0))
}

func setupMemoryStoreWithEmbedder(t *testing.T, emb embedder.Provider) *tiermem.MemoryStore {
	t.Helper()

	dir := t.TempDir()

	records, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(dir, "tiermem.db"),
	})
	require.NoError(t, err)

	idx, err := chromemIndex.New(&chromemIndex.Config{})
	require.NoError(t, err)

	cfg := &tiermem.Config{
		Embedder: tiermem.EmbedderConfig{Provider: "mock"},
		Index:    tiermem.IndexConfig{Provider: "chromem"},
	}

	mem, err := tiermem.NewMemoryStoreWithProviders(cfg, emb, idx, records)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = mem.Close()
	})
	return mem
}

// errEmbedderDown is what the broken embedder reports.
var errEmbedderDown = errors.New("embedder offline")

// brokenEmbedder fails every embedding call.
type brokenEmbedder struct{}

func (brokenEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errEmbedderDown
}

func (brokenEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errEmbedderDown
}

func (brokenEmbedder) Dimensions() int { return 8 }

func (brokenEmbedder) Close() error { return nil }

func TestMemoryStore_StoreAndSearch(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	id, err := mem.Store(ctx, userID, "I prefer concise replies",
		tiermem.WithMemoryType(tiermem.TypePreference),
		tiermem.WithImportance(0.7),
		tiermem.WithTags("preference"),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	results, err := mem.Search(ctx, userID, "response length preferences",
		tiermem.WithLimit(5),
	)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "I prefer concise replies", results[0].Content)
	assert.Equal(t, tiermem.TypePreference, results[0].MemoryType)
	assert.Greater(t, results[0].RelevanceScore, 0.3)
}

func TestMemoryStore_SearchRanksRelevantFirst(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	contents := []string{
		"I prefer concise replies",
		"Booked a flight to Lisbon for next month",
		"The weather forecast said rain on Tuesday",
	}
	for _, c := range contents {
		_, err := mem.Store(ctx, userID, c)
		require.NoError(t, err)
	}

	results, err := mem.Search(ctx, userID, "response length preferences",
		tiermem.WithLimit(5),
	)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "I prefer concise replies", results[0].Content)
}

func TestMemoryStore_SearchTypeFilter(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	_, err := mem.Store(ctx, userID, "My name is Jordan",
		tiermem.WithMemoryType(tiermem.TypeFact),
		tiermem.WithImportance(0.8),
	)
	require.NoError(t, err)

	_, err = mem.Store(ctx, userID, "User asked about their name",
		tiermem.WithMemoryType(tiermem.TypeConversation),
	)
	require.NoError(t, err)

	results, err := mem.Search(ctx, userID, "what is my name",
		tiermem.WithLimit(5),
		tiermem.WithType(tiermem.TypeFact),
	)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, tiermem.TypeFact, r.MemoryType)
	}
}

func TestMemoryStore_SearchFallsBackWhenTypeEmpty(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	_, err := mem.Store(ctx, userID, "I prefer morning meetings",
		tiermem.WithMemoryType(tiermem.TypePreference),
	)
	require.NoError(t, err)

	// No session_summary memories exist; the typed search retries
	// unfiltered and still finds the preference.
	results, err := mem.Search(ctx, userID, "meeting time preferences",
		tiermem.WithLimit(5),
		tiermem.WithType(tiermem.TypeSessionSummary),
	)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "I prefer morning meetings", results[0].Content)
}

func TestMemoryStore_SearchBumpsAccessCount(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	id, err := mem.Store(ctx, userID, "I prefer concise replies")
	require.NoError(t, err)

	_, err = mem.Search(ctx, userID, "concise replies")
	require.NoError(t, err)

	entry, err := mem.Records().GetEntry(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.GreaterOrEqual(t, entry.AccessCount, 1)
}

func TestMemoryStore_StoreUsersIsolated(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()

	_, err := mem.Store(ctx, "user_a", "I prefer concise replies")
	require.NoError(t, err)

	results, err := mem.Search(ctx, "user_b", "concise replies")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_LongContentSummarized(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	long := strings.Repeat("This sentence pads the memory content well past the cap. ", 10)
	id, err := mem.Store(ctx, userID, long)
	require.NoError(t, err)

	entry, err := mem.Records().GetEntry(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, long, entry.Content)
	assert.LessOrEqual(t, len(entry.ContentSummary), 200)
	assert.NotEqual(t, long, entry.ContentSummary)
}

func TestMemoryStore_Validation(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()

	_, err := mem.Store(ctx, "", "content")
	assert.ErrorIs(t, err, tiermem.ErrValidation)

	_, err = mem.Search(ctx, "", "query")
	assert.ErrorIs(t, err, tiermem.ErrValidation)

	_, err = mem.Search(ctx, "test_user", "")
	assert.ErrorIs(t, err, tiermem.ErrValidation)
}

func TestMemoryStore_EmptyContentStored(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()

	// Empty content embeds a placeholder rather than failing.
	id, err := mem.Store(ctx, "test_user", "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestMemoryStore_StoreBumpsNeighborAccess(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	first, err := mem.Store(ctx, userID, "I prefer concise replies")
	require.NoError(t, err)

	second, err := mem.Store(ctx, userID, "I prefer concise replies always")
	require.NoError(t, err)

	// Storing a close neighbor touches the existing memory, not itself.
	entry, err := mem.Records().GetEntry(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.AccessCount)

	entry, err = mem.Records().GetEntry(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.AccessCount)
}

func TestMemoryStore_LongContentSearchableByTail(t *testing.T) {
	mem := setupMemoryStore(t)
	ctx := context.Background()
	userID := "test_user"

	middle := "I keep my insulin prescription at the Riverside pharmacy on Elm Street"
	long := strings.Join([]string{
		"Quarterly planning notes from the offsite retreat covering roadmap priorities",
		"Budget approvals remain pending until finance signs off next month",
		middle,
		"Catering vendors were shortlisted after the tasting event",
		"Final decisions arrive before the next offsite.",
	}, ". ")

	id, err := mem.Store(ctx, userID, long)
	require.NoError(t, err)

	entry, err := mem.Records().GetEntry(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.NotContains(t, entry.ContentSummary, "insulin")

	// The middle sentence fell out of the summary but stays searchable.
	results, err := mem.Search(ctx, userID, middle, tiermem.WithLimit(5))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, long, results[0].Content)
}

func TestMemoryStore_EmbedFailureStoresZeroVector(t *testing.T) {
	mem := setupMemoryStoreWithEmbedder(t, brokenEmbedder{})
	ctx := context.Background()
	userID := "test_user"

	// The store still lands in the durable record store.
	id, err := mem.Store(ctx, userID, "I prefer concise replies")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entry, err := mem.Records().GetEntry(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "I prefer concise replies", entry.Content)

	// Search cannot embed the query and reports the provider failure,
	// with the cause still on the unwrap chain.
	_, err = mem.Search(ctx, userID, "concise replies")
	require.Error(t, err)
	assert.ErrorIs(t, err, tiermem.ErrProvider)
	assert.ErrorIs(t, err, errEmbedderDown)
}
