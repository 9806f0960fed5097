package retrieval_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/embedder/mock"
	chromemIndex "github.com/tiermem/tiermem-go/pkg/index/chromem"
	"github.com/tiermem/tiermem-go/pkg/retrieval"
	sqliteStore "github.com/tiermem/tiermem-go/pkg/store/sqlite"
)

func setupRetriever(t *testing.T) (*retrieval.Retriever, *core.MemoryStore) {
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

	return retrieval.New(mem), mem
}

func TestRetriever_GetContextualMemories(t *testing.T) {
	r, mem := setupRetriever(t)
	ctx := context.Background()
	userID := "test_user"

	_, err := mem.Store(ctx, userID, "I prefer concise replies",
		core.WithMemoryType(core.TypePreference),
		core.WithImportance(0.7),
		core.WithTags("preference"),
	)
	require.NoError(t, err)

	_, err = mem.Store(ctx, userID, "My preference is replies in bullet points",
		core.WithMemoryType(core.TypeFact),
		core.WithImportance(0.8),
		core.WithTags("fact"),
	)
	require.NoError(t, err)

	bundle, err := r.GetContextualMemories(ctx, userID,
		retrieval.Context{Query: "reply preferences"}, 10)
	require.NoError(t, err)

	assert.NotEmpty(t, bundle.Memories)
	assert.NotEmpty(t, bundle.Summary)
	for _, entry := range bundle.Memories {
		assert.Contains(t, bundle.ByType[entry.MemoryType], entry)
	}
}

func TestRetriever_NoDuplicateContent(t *testing.T) {
	r, mem := setupRetriever(t)
	ctx := context.Background()
	userID := "test_user"

	// Same content under two types; the bundle keeps one.
	_, err := mem.Store(ctx, userID, "I prefer concise replies",
		core.WithMemoryType(core.TypePreference),
	)
	require.NoError(t, err)
	_, err = mem.Store(ctx, userID, "I prefer concise replies",
		core.WithMemoryType(core.TypeConversation),
	)
	require.NoError(t, err)

	bundle, err := r.GetContextualMemories(ctx, userID,
		retrieval.Context{Query: "reply preferences"}, 10)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, entry := range bundle.Memories {
		assert.False(t, seen[entry.Content], "duplicate content %q", entry.Content)
		seen[entry.Content] = true
	}
}

func TestRetriever_EmptyContext(t *testing.T) {
	r, _ := setupRetriever(t)
	ctx := context.Background()

	// No memories stored; the bundle is empty with the no-context summary.
	bundle, err := r.GetContextualMemories(ctx, "test_user", retrieval.Context{}, 10)
	require.NoError(t, err)

	assert.Empty(t, bundle.Memories)
	assert.Equal(t, "No relevant context from previous interactions.", bundle.Summary)
}

func TestRetriever_MaxMemoriesHonored(t *testing.T) {
	r, mem := setupRetriever(t)
	ctx := context.Background()
	userID := "test_user"

	contents := []string{
		"I prefer concise replies",
		"I prefer replies with examples",
		"I prefer replies in plain text",
		"I prefer short replies on mobile",
	}
	for _, c := range contents {
		_, err := mem.Store(ctx, userID, c,
			core.WithMemoryType(core.TypePreference),
		)
		require.NoError(t, err)
	}

	bundle, err := r.GetContextualMemories(ctx, userID,
		retrieval.Context{Query: "reply preferences"}, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(bundle.Memories), 2)
}

func TestRetriever_InferredPreferences(t *testing.T) {
	r, mem := setupRetriever(t)
	ctx := context.Background()
	userID := "test_user"

	_, err := mem.Store(ctx, userID, "I prefer concise replies",
		core.WithMemoryType(core.TypePreference),
		core.WithImportance(0.7),
	)
	require.NoError(t, err)

	bundle, err := r.GetContextualMemories(ctx, userID,
		retrieval.Context{Query: "reply preferences"}, 10)
	require.NoError(t, err)

	require.NotEmpty(t, bundle.InferredPreferences)
	assert.Contains(t, bundle.InferredPreferences, "I prefer concise replies")
}

func TestRetriever_Validation(t *testing.T) {
	r, _ := setupRetriever(t)

	_, err := r.GetContextualMemories(context.Background(), "", retrieval.Context{}, 10)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRetriever_InferredPreferences_AllSentencesCollected(t *testing.T) {
	r, mem := setupRetriever(t)
	ctx := context.Background()
	userID := "test_user"

	_, err := mem.Store(ctx, userID, "I prefer concise replies. I always want shorter summaries.",
		core.WithMemoryType(core.TypePreference),
		core.WithImportance(0.7),
	)
	require.NoError(t, err)

	bundle, err := r.GetContextualMemories(ctx, userID,
		retrieval.Context{Query: "concise replies"}, 10)
	require.NoError(t, err)

	// One memory can carry several preference statements.
	assert.Contains(t, bundle.InferredPreferences, "I prefer concise replies")
	assert.Contains(t, bundle.InferredPreferences, "I always want shorter summaries")
}
