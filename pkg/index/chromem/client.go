// Package chromem implements the vector index on top of chromem-go, an
// embeddable vector database. Each user gets their own collection so
// queries never cross user boundaries.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/tiermem/tiermem-go/pkg/index"
)

// Config holds the chromem index settings.
type Config struct {
	// Path enables on-disk persistence when non-empty. An empty path keeps
	// the index in memory only.
	Path string

	// Compress gob-compresses persisted collections.
	Compress bool
}

// Index is a per-user collection index backed by chromem-go.
type Index struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// New creates a chromem index from the config.
func New(cfg *Config) (*Index, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db at %s: %w", cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &Index{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the user's collection, creating it on first use. The
// embedding func is nil because all vectors are computed upstream.
func (i *Index) collection(userID string) (*chromem.Collection, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if col, ok := i.collections[userID]; ok {
		return col, nil
	}
	col, err := i.db.GetOrCreateCollection("mem-"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection for user %s: %w", userID, err)
	}
	i.collections[userID] = col
	return col, nil
}

// Add indexes documents for a user with their precomputed embeddings.
func (i *Index) Add(ctx context.Context, userID string, docs []index.Document) error {
	col, err := i.collection(userID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		err := col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("failed to add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Query returns the nearest documents for the vector. Distances are
// 1 - cosine similarity, so smaller means closer.
func (i *Index) Query(ctx context.Context, userID string, vector []float32, n int, where map[string]string) (*index.QueryResult, error) {
	col, err := i.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	count := col.Count()
	if count == 0 || n <= 0 {
		return &index.QueryResult{}, nil
	}
	if n > count {
		n = count
	}

	// A metadata filter can shrink the candidate set below n, which chromem
	// also rejects. Retry with smaller limits until the query fits.
	var results []chromem.Result
	for ; n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, vector, n, where, nil)
		if err == nil {
			break
		}
		if !insufficientDocs(err) {
			return nil, fmt.Errorf("failed to query collection for user %s: %w", userID, err)
		}
		if n == 1 {
			return &index.QueryResult{}, nil
		}
	}

	out := &index.QueryResult{
		IDs:       make([]string, len(results)),
		Documents: make([]string, len(results)),
		Metadatas: make([]map[string]string, len(results)),
		Distances: make([]float32, len(results)),
	}
	for j, res := range results {
		out.IDs[j] = res.ID
		out.Documents[j] = res.Content
		out.Metadatas[j] = res.Metadata
		out.Distances[j] = 1 - res.Similarity
	}
	return out, nil
}

// Delete removes documents by ID from the user's collection.
func (i *Index) Delete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := i.collection(userID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents for user %s: %w", userID, err)
	}
	return nil
}

// insufficientDocs reports whether the query failed because nResults
// exceeded the number of matching documents.
func insufficientDocs(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// Close drops the in-memory collection handles. Persisted data stays on
// disk.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.collections = make(map[string]*chromem.Collection)
	return nil
}
