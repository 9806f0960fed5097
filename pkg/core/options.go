package core

// StoreOption is a function type for configuring Store operations.
//
// Options are applied using the functional options pattern, allowing
// callers to set only the fields they care about.
type StoreOption func(*StoreOptions)

// StoreOptions contains configuration options for Store operations.
type StoreOptions struct {
	// SessionID associates the memory with a session (optional).
	SessionID string

	// MemoryType classifies the memory. Defaults to TypeConversation.
	MemoryType MemoryType

	// Importance is the memory's importance score in [0, 1].
	// Defaults to 0.5.
	Importance float64

	// Tags are free-form labels attached to the memory.
	Tags []string

	// Metadata contains additional caller-defined fields.
	Metadata map[string]interface{}
}

// WithSessionID associates the stored memory with a session.
//
// Example:
//
//	id, err := mem.Store(ctx, "alice", "Booked a flight",
//	    core.WithSessionID(sessionID))
func WithSessionID(sessionID string) StoreOption {
	return func(opts *StoreOptions) {
		opts.SessionID = sessionID
	}
}

// WithMemoryType sets the memory type for the stored memory.
func WithMemoryType(memoryType MemoryType) StoreOption {
	return func(opts *StoreOptions) {
		opts.MemoryType = memoryType
	}
}

// WithImportance sets the importance score for the stored memory.
// Values outside [0, 1] are clamped.
func WithImportance(importance float64) StoreOption {
	return func(opts *StoreOptions) {
		opts.Importance = importance
	}
}

// WithTags attaches tags to the stored memory.
func WithTags(tags ...string) StoreOption {
	return func(opts *StoreOptions) {
		opts.Tags = tags
	}
}

// WithMetadata attaches caller-defined metadata to the stored memory.
func WithMetadata(metadata map[string]interface{}) StoreOption {
	return func(opts *StoreOptions) {
		opts.Metadata = metadata
	}
}

// applyStoreOptions applies the options and fills in defaults.
func applyStoreOptions(opts []StoreOption) *StoreOptions {
	options := &StoreOptions{
		MemoryType: TypeConversation,
		Importance: 0.5,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Importance < 0 {
		options.Importance = 0
	}
	if options.Importance > 1 {
		options.Importance = 1
	}
	return options
}

// SearchOption is a function type for configuring Search operations.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for Search operations.
type SearchOptions struct {
	// Limit is the maximum number of results. Defaults to 10.
	Limit int

	// MemoryType restricts results to a single type when non-empty.
	MemoryType MemoryType

	// MinImportance drops results below this importance score.
	MinImportance float64
}

// WithLimit sets the maximum number of search results.
//
// Example:
//
//	results, err := mem.Search(ctx, "alice", "travel plans",
//	    core.WithLimit(5))
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// WithType restricts search results to a single memory type.
func WithType(memoryType MemoryType) SearchOption {
	return func(opts *SearchOptions) {
		opts.MemoryType = memoryType
	}
}

// WithMinImportance drops search results below the given importance.
func WithMinImportance(minImportance float64) SearchOption {
	return func(opts *SearchOptions) {
		opts.MinImportance = minImportance
	}
}

// applySearchOptions applies the options and fills in defaults.
func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		Limit: 10,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Limit <= 0 {
		options.Limit = 10
	}
	return options
}
