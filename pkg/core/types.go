// Package core provides the tiermem memory store and retention policy.
package core

import "time"

// MemoryType classifies a memory entry.
type MemoryType string

const (
	// TypeConversation is general captured dialogue.
	TypeConversation MemoryType = "conversation"

	// TypePreference is a captured user preference sentence.
	TypePreference MemoryType = "preference"

	// TypeFact is a captured statement the user made about themselves.
	TypeFact MemoryType = "fact"

	// TypeSessionSummary is an end-of-session summary.
	TypeSessionSummary MemoryType = "session_summary"

	// TypeExperience is a captured experience or outcome.
	TypeExperience MemoryType = "experience"
)

// MemoryEntry is a durable, retrievable unit of remembered content.
//
// Entries are created by MemoryStore.Store, mutated (access count, last
// accessed) on every retrieval hit and on the neighbor bump during a new
// store, and destroyed only by the retention sweep.
type MemoryEntry struct {
	// ID is the unique identifier of the entry. It is also the document id
	// in the vector index.
	ID string `json:"id"`

	// UserID identifies the user who owns this entry.
	UserID string `json:"user_id"`

	// SessionID identifies the session this entry was captured in (optional).
	SessionID string `json:"session_id,omitempty"`

	// Content is the full text content of the entry.
	Content string `json:"content"`

	// ContentSummary is the condensed form kept for long content. Content
	// shorter than 200 characters is kept verbatim.
	ContentSummary string `json:"content_summary"`

	// MemoryType is the entry's type.
	MemoryType MemoryType `json:"memory_type"`

	// ImportanceScore is the entry's importance in [0,1].
	ImportanceScore float64 `json:"importance_score"`

	// Tags are free-form labels attached to the entry.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains provider-specific extension fields.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the entry was created.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is when the entry was last accessed.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// AccessCount is the number of times the entry was accessed.
	AccessCount int `json:"access_count"`

	// RelevanceScore is the similarity score from search operations.
	// Only set on entries returned by Search.
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// PreferenceType describes how a preference was learned.
type PreferenceType string

const (
	// PreferenceExplicit was stated directly by the user.
	PreferenceExplicit PreferenceType = "explicit"

	// PreferenceImplicit was derived from user behavior.
	PreferenceImplicit PreferenceType = "implicit"

	// PreferenceInferred was inferred from stored memories.
	PreferenceInferred PreferenceType = "inferred"
)

// PreferenceCategory groups preferences by the aspect of the assistant
// they affect.
type PreferenceCategory string

const (
	// CategoryCommunication covers how the assistant talks to the user.
	CategoryCommunication PreferenceCategory = "communication"

	// CategoryFunctionality covers tool usage.
	CategoryFunctionality PreferenceCategory = "functionality"

	// CategoryInterface covers display and formatting.
	CategoryInterface PreferenceCategory = "interface"

	// CategoryTask covers workflows and processes.
	CategoryTask PreferenceCategory = "task"

	// CategoryGeneral is the fallback category.
	CategoryGeneral PreferenceCategory = "general"
)

// PreferenceChange is one entry in a preference's bounded history.
type PreferenceChange struct {
	// Value is the value recorded by this change.
	Value string `json:"value"`

	// Confidence is the confidence recorded by this change.
	Confidence float64 `json:"confidence"`

	// PreferenceType is the type recorded by this change.
	PreferenceType PreferenceType `json:"type"`

	// Timestamp is when the change happened.
	Timestamp time.Time `json:"timestamp"`
}

// UserPreference is a learned user preference with confidence tracking.
//
// Created on first update, mutated on every subsequent update, never deleted.
type UserPreference struct {
	// UserID identifies the user who owns this preference.
	UserID string `json:"user_id"`

	// Key is the preference key, unique per user.
	Key string `json:"key"`

	// Value is the preference value (opaque to the engine).
	Value string `json:"value"`

	// PreferenceType describes how the preference was learned.
	PreferenceType PreferenceType `json:"type"`

	// Category groups the preference.
	Category PreferenceCategory `json:"category"`

	// ConfidenceScore is the confidence in [0,1].
	ConfidenceScore float64 `json:"confidence_score"`

	// LastReinforced is when the preference was last updated or reinforced.
	LastReinforced time.Time `json:"last_reinforced"`

	// History is the bounded change history, newest last, at most 10 entries.
	History []PreferenceChange `json:"history,omitempty"`
}

// SessionState is the lifecycle state of a session record.
//
// Sessions transition CREATED -> ACTIVE -> ENDED and never backward.
type SessionState string

const (
	// SessionActive means the session accepts interactions.
	SessionActive SessionState = "active"

	// SessionEnded is the terminal state.
	SessionEnded SessionState = "ended"
)

// Interaction is a single user/agent turn inside a session.
//
// Interactions are append-only; an interaction is only modified when the
// second half of a partial turn arrives.
type Interaction struct {
	// UserInput is the user's message.
	UserInput string `json:"user_input"`

	// AgentResponse is the agent's reply.
	AgentResponse string `json:"agent_response"`

	// Timestamp is when the interaction was recorded.
	Timestamp time.Time `json:"timestamp"`

	// ToolsUsed lists the tools invoked during the turn.
	ToolsUsed []string `json:"tools_used,omitempty"`

	// ImportanceScore is the computed turn importance in [0,1].
	ImportanceScore float64 `json:"importance_score"`
}

// SessionRecord tracks one conversational session.
type SessionRecord struct {
	// SessionID is the unique session identifier.
	SessionID string `json:"session_id"`

	// UserID identifies the user who owns this session.
	UserID string `json:"user_id"`

	// StartTime is when the session was created.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the session ended (nil while active).
	EndTime *time.Time `json:"end_time,omitempty"`

	// Interactions is the ordered list of turns.
	Interactions []Interaction `json:"interactions"`

	// TopicsDiscussed is the set of topics seen so far.
	TopicsDiscussed []string `json:"topics_discussed"`

	// ToolsUsed is the set of tools seen so far.
	ToolsUsed []string `json:"tools_used"`

	// Summary is the summary sentence, set at session end.
	Summary string `json:"summary,omitempty"`

	// Outcomes lists session outcomes, set at session end.
	Outcomes []string `json:"outcomes,omitempty"`

	// IsActive reports whether the session still accepts interactions.
	IsActive bool `json:"is_active"`
}

// State returns the session's lifecycle state.
func (r *SessionRecord) State() SessionState {
	if r.IsActive {
		return SessionActive
	}
	return SessionEnded
}

// ContextBundle is the result of a contextual retrieval: the merged, ranked,
// deduplicated memories relevant to the current conversational turn.
type ContextBundle struct {
	// Memories is the ranked, deduplicated result list.
	Memories []*MemoryEntry `json:"memories"`

	// ByType buckets Memories by memory type.
	ByType map[MemoryType][]*MemoryEntry `json:"by_type"`

	// Summary is a natural-language description of the retrieved context.
	Summary string `json:"summary"`

	// InferredPreferences holds up to 5 preference sentences re-extracted
	// from the retrieved memory content.
	InferredPreferences []string `json:"inferred_preferences,omitempty"`
}

// Count returns the number of retrieved memories.
func (b *ContextBundle) Count() int {
	return len(b.Memories)
}
