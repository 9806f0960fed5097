// Package store provides interfaces and types for durable record storage.
//
// It defines the RecordStore interface that all storage implementations must
// satisfy, along with the row-level record types for memory entries, user
// preferences, sessions, and user profiles.
package store

import (
	"context"
	"time"
)

// Entry is the durable-store row for a memory entry.
//
// This type is defined in the store package to avoid circular dependencies
// with the core package. It mirrors the core.MemoryEntry structure.
type Entry struct {
	// ID is the unique identifier of the entry. It doubles as the document
	// id in the vector index.
	ID string

	// UserID identifies the user who owns this entry.
	UserID string

	// SessionID identifies the session this entry was captured in (optional).
	SessionID string

	// Content is the full text content of the entry.
	Content string

	// ContentSummary is the condensed form kept for long content.
	ContentSummary string

	// MemoryType is the entry's type (conversation, preference, fact,
	// session_summary, experience).
	MemoryType string

	// ImportanceScore is the entry's importance in [0,1].
	ImportanceScore float64

	// Tags are free-form labels attached to the entry.
	Tags []string

	// Metadata contains provider-specific extension fields.
	Metadata map[string]interface{}

	// CreatedAt is when the entry was created.
	CreatedAt time.Time

	// LastAccessedAt is when the entry was last returned by a search or
	// bumped as a store-time neighbor.
	LastAccessedAt time.Time

	// AccessCount is the number of times the entry was accessed.
	AccessCount int
}

// Preference is the durable-store row for a learned user preference.
type Preference struct {
	// ID is the row id.
	ID int64

	// UserID identifies the user who owns this preference.
	UserID string

	// Key is the preference key, unique per user.
	Key string

	// Value is the preference value, opaque to the store. Structured values
	// are JSON-encoded by the caller.
	Value string

	// PreferenceType is explicit, implicit, or inferred.
	PreferenceType string

	// Category is communication, functionality, interface, task, or general.
	Category string

	// ConfidenceScore is the preference confidence in [0,1].
	ConfidenceScore float64

	// LastReinforced is when the preference was last updated or reinforced.
	LastReinforced time.Time

	// History is the bounded change history (newest last), stored as JSON.
	History string
}

// Session is the durable-store row for a session record.
type Session struct {
	// SessionID is the unique session identifier.
	SessionID string

	// UserID identifies the user who owns this session.
	UserID string

	// StartTime is when the session was created.
	StartTime time.Time

	// EndTime is when the session ended (nil while active).
	EndTime *time.Time

	// Summary is the session summary sentence, set at session end.
	Summary string

	// Topics is the set of topics discussed, stored as JSON.
	Topics string

	// Tools is the set of tools used, stored as JSON.
	Tools string

	// Outcomes is the list of session outcomes, stored as JSON.
	Outcomes string

	// Interactions is the ordered interaction list, stored as JSON.
	Interactions string

	// IsActive reports whether the session is still active.
	IsActive bool
}

// Profile is the durable-store row for a user profile.
type Profile struct {
	// UserID is the unique user identifier.
	UserID string

	// Settings contains profile-level settings, stored as JSON.
	Settings string

	// InteractionStats contains aggregate interaction statistics, stored as JSON.
	InteractionStats string

	// CommunicationStyle contains learned communication-style aspects, stored as JSON.
	CommunicationStyle string

	// CreatedAt is when the profile was created.
	CreatedAt time.Time

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time
}

// LifeEvent is the durable-store row for a significant user life event.
type LifeEvent struct {
	// ID is the row id.
	ID int64

	// UserID identifies the user the event belongs to.
	UserID string

	// EventType classifies the event (recurring, significant, milestone).
	EventType string

	// EventData carries the event details, stored as JSON.
	EventData string

	// EventDate is when the event happened or happens.
	EventDate time.Time

	// ImportanceScore is the event's importance in [0,1].
	ImportanceScore float64

	// Tags are free-form labels attached to the event, stored as JSON.
	Tags string

	// CreatedAt is when the row was created.
	CreatedAt time.Time
}

// EntryFilter contains filters for QueryEntries.
//
// Zero values disable the corresponding filter.
type EntryFilter struct {
	// UserID filters entries to a specific user.
	UserID string

	// SessionID filters entries to a specific session.
	SessionID string

	// CreatedBefore keeps entries created strictly before this time.
	CreatedBefore time.Time

	// ImportanceBelow keeps entries with importance strictly below this value.
	ImportanceBelow float64

	// AccessCountBelow keeps entries with access count strictly below this value.
	// Use a negative value to disable; zero means "below zero" is impossible,
	// so zero also disables.
	AccessCountBelow int

	// Limit caps the number of returned entries (0 = no cap).
	Limit int
}

// RecordStore defines the interface for durable record storage backends.
//
// All backends (SQLite, PostgreSQL, MySQL) must implement this interface.
// Implementations are safe for concurrent use across users; callers serialize
// per-user and per-session writes as described by the session manager.
type RecordStore interface {
	// InsertEntry inserts a memory entry row.
	InsertEntry(ctx context.Context, entry *Entry) error

	// GetEntry retrieves a memory entry by id. Returns (nil, nil) when the
	// entry does not exist.
	GetEntry(ctx context.Context, id string) (*Entry, error)

	// DeleteEntry deletes a memory entry by id.
	DeleteEntry(ctx context.Context, id string) error

	// TouchEntries increments access counts and sets last-accessed time for
	// the given entry ids.
	TouchEntries(ctx context.Context, ids []string, accessedAt time.Time) error

	// QueryEntries returns entries matching the filter.
	QueryEntries(ctx context.Context, filter *EntryFilter) ([]*Entry, error)

	// GetPreference retrieves a preference by user and key. Returns
	// (nil, nil) when no preference exists.
	GetPreference(ctx context.Context, userID, key string) (*Preference, error)

	// SavePreference inserts or updates a preference, keyed by (user, key).
	SavePreference(ctx context.Context, pref *Preference) error

	// ListPreferences returns a user's preferences sorted by confidence
	// descending, optionally filtered by category.
	ListPreferences(ctx context.Context, userID, category string) ([]*Preference, error)

	// SaveSession inserts or updates a session row.
	SaveSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by id. Returns (nil, nil) when the
	// session does not exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// InsertLifeEvent inserts a life event row.
	InsertLifeEvent(ctx context.Context, event *LifeEvent) error

	// ListLifeEvents returns a user's life events sorted by importance
	// descending, optionally filtered by event type, capped at limit.
	ListLifeEvents(ctx context.Context, userID, eventType string, limit int) ([]*LifeEvent, error)

	// GetProfile retrieves a user profile. Returns (nil, nil) when the
	// profile does not exist.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// SaveProfile inserts or updates a user profile.
	SaveProfile(ctx context.Context, profile *Profile) error

	// Close closes the store and releases resources.
	Close() error
}
