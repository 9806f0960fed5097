// Package index defines the vector index abstraction used for semantic
// memory search. Implementations hold embeddings plus enough document
// metadata to reconstruct search results; durable records live in the
// store package.
package index

import "context"

// Document is a single indexed item.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// QueryResult holds the nearest documents for a query vector, ordered by
// ascending distance.
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]string
	Distances []float32
}

// VectorIndex stores and searches embeddings scoped per user.
type VectorIndex interface {
	// Add indexes documents for a user. Existing IDs are overwritten.
	Add(ctx context.Context, userID string, docs []Document) error

	// Query returns up to n documents nearest to the vector, optionally
	// filtered by exact metadata matches. An empty index yields an empty
	// result, not an error.
	Query(ctx context.Context, userID string, vector []float32, n int, where map[string]string) (*QueryResult, error)

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, userID string, ids []string) error

	// Close releases any resources held by the index.
	Close() error
}
