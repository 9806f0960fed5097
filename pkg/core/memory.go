package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/tiermem/tiermem-go/pkg/embedder"
	mockEmbedder "github.com/tiermem/tiermem-go/pkg/embedder/mock"
	openaiEmbedder "github.com/tiermem/tiermem-go/pkg/embedder/openai"
	"github.com/tiermem/tiermem-go/pkg/index"
	chromemIndex "github.com/tiermem/tiermem-go/pkg/index/chromem"
	"github.com/tiermem/tiermem-go/pkg/store"
	mysqlStore "github.com/tiermem/tiermem-go/pkg/store/mysql"
	postgresStore "github.com/tiermem/tiermem-go/pkg/store/postgres"
	sqliteStore "github.com/tiermem/tiermem-go/pkg/store/sqlite"
)

// minRelevance is the similarity floor for search results. Candidates at or
// below this score are noise for short conversational texts.
const minRelevance = 0.3

// summaryMaxLen is the length above which content is condensed for
// display.
const summaryMaxLen = 200

// MemoryStore stores and retrieves memories for users.
//
// Every memory is written to two places: the vector index (for semantic
// search) and the record store (for durable fields like access counts).
// The index write happens first and is rolled back if the record write
// fails.
//
// The store is safe for concurrent use. Writes for the same user are
// serialized; different users proceed in parallel.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	mem, _ := core.NewMemoryStore(config)
//	defer mem.Close()
//
//	id, _ := mem.Store(ctx, "user_001", "I prefer concise replies",
//	    core.WithMemoryType(core.TypePreference),
//	    core.WithImportance(0.8),
//	)
type MemoryStore struct {
	// config contains the store configuration.
	config *Config

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// index is the vector index for semantic search.
	index index.VectorIndex

	// records is the durable record store.
	records store.RecordStore

	// retention sweeps stale low-value memories after each store.
	retention *RetentionPolicy

	// node generates unique memory IDs.
	node *snowflake.Node

	// logger records non-fatal provider failures.
	logger *slog.Logger

	// userMu holds one mutex per user.
	userMu sync.Map
}

// NewMemoryStore creates a memory store from the config, initializing the
// embedding provider, vector index, and record store it names.
//
// Parameters:
//   - cfg: Configuration containing embedder, index, and record store settings
//
// Returns a new MemoryStore instance, or an error if initialization fails.
func NewMemoryStore(cfg *Config) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	records, err := initRecordStore(cfg.RecordStore)
	if err != nil {
		return nil, err
	}

	idx, err := initIndex(cfg.Index)
	if err != nil {
		return nil, err
	}

	emb, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	return NewMemoryStoreWithProviders(cfg, emb, idx, records)
}

// NewMemoryStoreWithProviders creates a memory store from already
// constructed providers. Useful for tests and for callers that manage
// provider lifecycles themselves.
func NewMemoryStoreWithProviders(cfg *Config, emb embedder.Provider, idx index.VectorIndex, records store.RecordStore) (*MemoryStore, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if emb == nil || idx == nil || records == nil {
		return nil, NewError("NewMemoryStore", ErrInvalidConfig)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewError("NewMemoryStore", err)
	}

	m := &MemoryStore{
		config:   cfg,
		embedder: emb,
		index:    idx,
		records:  records,
		node:     node,
		logger:   slog.Default().With("component", "memory_store"),
	}
	m.retention = newRetentionPolicy(cfg, idx, records, m.logger)
	return m, nil
}

// initRecordStore initializes the record store backend named by the config.
func initRecordStore(cfg RecordStoreConfig) (store.RecordStore, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewRecordStore(cfg.Config)
	case "postgres":
		return postgresStore.NewRecordStore(cfg.Config)
	case "mysql":
		return mysqlStore.NewRecordStore(cfg.Config)
	default:
		return nil, NewError("NewMemoryStore", fmt.Errorf("%w: unsupported record store provider: %s", ErrInvalidConfig, cfg.Provider))
	}
}

// initIndex initializes the vector index named by the config.
func initIndex(cfg IndexConfig) (index.VectorIndex, error) {
	switch cfg.Provider {
	case "chromem":
		return chromemIndex.New(&chromemIndex.Config{
			Path:     cfg.Path,
			Compress: cfg.Compress,
		})
	default:
		return nil, NewError("NewMemoryStore", fmt.Errorf("%w: unsupported index provider: %s", ErrInvalidConfig, cfg.Provider))
	}
}

// initEmbedder initializes the embedding provider named by the config.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "mock":
		return mockEmbedder.New(cfg.Dimensions), nil
	default:
		return nil, NewError("NewMemoryStore", fmt.Errorf("%w: unsupported embedder provider: %s", ErrInvalidConfig, cfg.Provider))
	}
}

// Records returns the underlying record store, shared with the session
// manager and preference learner.
func (m *MemoryStore) Records() store.RecordStore {
	return m.records
}

// Retention returns the store's retention policy.
func (m *MemoryStore) Retention() *RetentionPolicy {
	return m.retention
}

// Store persists a new memory for a user and returns its id.
//
// The flow is:
//  1. Condense long content into a display summary
//  2. Embed the full content (a zero vector is substituted when the
//     embedding provider fails, so the memory is never lost)
//  3. Write to the vector index, then the record store; the index write is
//     rolled back if the record write fails
//  4. Bump access counts on the closest existing memories
//  5. Run a retention sweep for the user
//
// Steps 4 and 5 are best effort; their failures are logged, not returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - userID: Owner of the memory (required)
//   - content: Memory text (may be empty; a placeholder is embedded)
//   - opts: Optional settings (session, type, importance, tags, metadata)
//
// Returns the new memory id, or an error if the write fails.
func (m *MemoryStore) Store(ctx context.Context, userID, content string, opts ...StoreOption) (string, error) {
	if userID == "" {
		return "", validationError("Store", "userID is required")
	}
	options := applyStoreOptions(opts)

	unlock := m.lockUser(userID)
	defer unlock()

	now := time.Now().UTC()
	entry := &MemoryEntry{
		ID:              m.node.Generate().String(),
		UserID:          userID,
		SessionID:       options.SessionID,
		Content:         content,
		ContentSummary:  summarize(content),
		MemoryType:      options.MemoryType,
		ImportanceScore: options.Importance,
		Tags:            options.Tags,
		Metadata:        options.Metadata,
		CreatedAt:       now,
		LastAccessedAt:  now,
	}

	vector := m.embed(ctx, embeddingText(entry.Content))

	if err := m.index.Add(ctx, userID, []index.Document{indexDocument(entry, vector)}); err != nil {
		return "", providerError("Store", err)
	}
	if err := m.records.InsertEntry(ctx, entryToRecord(entry)); err != nil {
		if delErr := m.index.Delete(ctx, userID, []string{entry.ID}); delErr != nil {
			m.logger.Warn("failed to roll back index write",
				"memory_id", entry.ID, "error", delErr)
		}
		return "", providerError("Store", err)
	}

	m.bumpNeighbors(ctx, userID, entry.ID, vector)

	if err := m.retention.Sweep(ctx, userID); err != nil {
		m.logger.Warn("retention sweep failed", "user_id", userID, "error", err)
	}

	return entry.ID, nil
}

// Search returns the user's memories most relevant to the query, ranked by
// similarity.
//
// The index is asked for more candidates than the requested limit, weak
// matches are dropped, and access counts are bumped on everything returned.
// When a type filter produces no hits, the search is retried once without
// the filter.
//
// Parameters:
//   - ctx: Context for cancellation
//   - userID: Owner of the memories (required)
//   - query: Search text (required)
//   - opts: Optional settings (limit, type, minimum importance)
//
// Returns matching entries with RelevanceScore set, best first.
func (m *MemoryStore) Search(ctx context.Context, userID, query string, opts ...SearchOption) ([]*MemoryEntry, error) {
	if userID == "" {
		return nil, validationError("Search", "userID is required")
	}
	if query == "" {
		return nil, validationError("Search", "query is required")
	}
	options := applySearchOptions(opts)

	vector, err := m.embedOrError(ctx, query)
	if err != nil {
		return nil, providerError("Search", err)
	}

	results, err := m.searchIndex(ctx, userID, vector, options, options.MemoryType)
	if err != nil {
		return nil, providerError("Search", err)
	}

	// A type filter that matches nothing falls back to an unfiltered pass.
	if len(results) == 0 && options.MemoryType != "" {
		results, err = m.searchIndex(ctx, userID, vector, options, "")
		if err != nil {
			return nil, providerError("Search", err)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > options.Limit {
		results = results[:options.Limit]
	}

	m.touch(ctx, results, time.Now().UTC())

	return results, nil
}

// searchIndex runs one pass against the vector index and hydrates results
// from the record store.
func (m *MemoryStore) searchIndex(ctx context.Context, userID string, vector []float32, options *SearchOptions, memoryType MemoryType) ([]*MemoryEntry, error) {
	n := options.Limit * 2
	if n > 20 {
		n = 20
	}

	var where map[string]string
	if memoryType != "" {
		where = map[string]string{"memory_type": string(memoryType)}
	}

	qctx, cancel := m.providerContext(ctx)
	defer cancel()
	res, err := m.index.Query(qctx, userID, vector, n, where)
	if err != nil {
		return nil, err
	}

	var results []*MemoryEntry
	for i, id := range res.IDs {
		relevance := 1 - float64(res.Distances[i])
		if relevance <= minRelevance {
			continue
		}

		entry, err := m.records.GetEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		var hit *MemoryEntry
		if entry != nil {
			hit = entryFromRecord(entry)
		} else {
			// The row is gone but the index still has the document.
			// Serve it from index metadata rather than dropping the hit.
			hit = entryFromDocument(id, res.Documents[i], res.Metadatas[i])
			hit.UserID = userID
		}
		if options.MinImportance > 0 && hit.ImportanceScore < options.MinImportance {
			continue
		}
		hit.RelevanceScore = relevance
		results = append(results, hit)
	}
	return results, nil
}

// bumpNeighbors increments access counts on the memories closest to a newly
// stored one. Failures are logged, never surfaced.
func (m *MemoryStore) bumpNeighbors(ctx context.Context, userID, selfID string, vector []float32) {
	qctx, cancel := m.providerContext(ctx)
	defer cancel()
	res, err := m.index.Query(qctx, userID, vector, 6, nil)
	if err != nil {
		m.logger.Warn("neighbor lookup failed", "user_id", userID, "error", err)
		return
	}

	var ids []string
	for i, id := range res.IDs {
		if id == selfID || 1-float64(res.Distances[i]) <= minRelevance {
			continue
		}
		ids = append(ids, id)
		if len(ids) == 5 {
			break
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := m.records.TouchEntries(ctx, ids, time.Now().UTC()); err != nil {
		m.logger.Warn("neighbor bump failed", "user_id", userID, "error", err)
	}
}

// touch bumps access counts for returned search results, reflecting the
// bump in the in-memory entries as well.
func (m *MemoryStore) touch(ctx context.Context, results []*MemoryEntry, accessedAt time.Time) {
	if len(results) == 0 {
		return
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	if err := m.records.TouchEntries(ctx, ids, accessedAt); err != nil {
		m.logger.Warn("access count update failed", "error", err)
		return
	}
	for _, r := range results {
		r.AccessCount++
		r.LastAccessedAt = accessedAt
	}
}

// embed generates the vector for stored content. A provider failure yields
// a zero vector so the memory still lands in the durable store.
func (m *MemoryStore) embed(ctx context.Context, text string) []float32 {
	vector, err := m.embedOrError(ctx, text)
	if err != nil {
		m.logger.Warn("embedding failed, storing zero vector", "error", err)
		return make([]float32, m.embedder.Dimensions())
	}
	return vector
}

func (m *MemoryStore) embedOrError(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := m.providerContext(ctx)
	defer cancel()
	return m.embedder.Embed(ectx, text)
}

// providerContext bounds a single provider call.
func (m *MemoryStore) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.config.providerTimeout())
}

// lockUser serializes writes per user.
func (m *MemoryStore) lockUser(userID string) func() {
	v, _ := m.userMu.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Close closes the embedding provider, vector index, and record store.
func (m *MemoryStore) Close() error {
	var firstErr error
	if err := m.embedder.Close(); err != nil {
		firstErr = err
	}
	if err := m.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.records.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return NewError("Close", firstErr)
}

// indexDocument builds the vector index document for an entry. The metadata
// carries enough fields to filter searches and to reconstruct a result when
// the durable row is missing.
func indexDocument(entry *MemoryEntry, vector []float32) index.Document {
	return index.Document{
		ID:        entry.ID,
		Content:   entry.ContentSummary,
		Embedding: vector,
		Metadata: map[string]string{
			"memory_type": string(entry.MemoryType),
			"importance":  strconv.FormatFloat(entry.ImportanceScore, 'f', -1, 64),
			"session_id":  entry.SessionID,
			"created_at":  entry.CreatedAt.Format(time.RFC3339),
		},
	}
}

// entryFromDocument rebuilds a search hit from index metadata.
func entryFromDocument(id, content string, metadata map[string]string) *MemoryEntry {
	importance, _ := strconv.ParseFloat(metadata["importance"], 64)
	return &MemoryEntry{
		ID:              id,
		SessionID:       metadata["session_id"],
		Content:         content,
		ContentSummary:  content,
		MemoryType:      MemoryType(metadata["memory_type"]),
		ImportanceScore: importance,
		CreatedAt:       parseTime(metadata["created_at"]),
	}
}

// embeddingText substitutes a placeholder for content too short to embed
// meaningfully.
func embeddingText(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "empty content"
	}
	if len(trimmed) < 3 {
		return "short content: " + trimmed
	}
	return trimmed
}

// summarize condenses long content to its first and second-to-last
// sentences, capped at summaryMaxLen characters. Short content is kept
// verbatim.
func summarize(content string) string {
	if len(content) <= summaryMaxLen {
		return content
	}
	sentences := strings.Split(content, ". ")
	summary := content
	if len(sentences) > 2 {
		summary = sentences[0] + ". ... " + sentences[len(sentences)-2] + "."
	}
	if len(summary) > summaryMaxLen {
		summary = summary[:summaryMaxLen-3] + "..."
	}
	return summary
}
