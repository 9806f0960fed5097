package core

import (
	"time"

	"github.com/tiermem/tiermem-go/pkg/store"
)

// Conversions between the public MemoryEntry type and its row in the store
// package.

// entryToRecord converts a MemoryEntry to its store row.
func entryToRecord(entry *MemoryEntry) *store.Entry {
	return &store.Entry{
		ID:              entry.ID,
		UserID:          entry.UserID,
		SessionID:       entry.SessionID,
		Content:         entry.Content,
		ContentSummary:  entry.ContentSummary,
		MemoryType:      string(entry.MemoryType),
		ImportanceScore: entry.ImportanceScore,
		Tags:            entry.Tags,
		Metadata:        entry.Metadata,
		CreatedAt:       entry.CreatedAt,
		LastAccessedAt:  entry.LastAccessedAt,
		AccessCount:     entry.AccessCount,
	}
}

// entryFromRecord converts a store row back to a MemoryEntry.
func entryFromRecord(rec *store.Entry) *MemoryEntry {
	return &MemoryEntry{
		ID:              rec.ID,
		UserID:          rec.UserID,
		SessionID:       rec.SessionID,
		Content:         rec.Content,
		ContentSummary:  rec.ContentSummary,
		MemoryType:      MemoryType(rec.MemoryType),
		ImportanceScore: rec.ImportanceScore,
		Tags:            rec.Tags,
		Metadata:        rec.Metadata,
		CreatedAt:       rec.CreatedAt,
		LastAccessedAt:  rec.LastAccessedAt,
		AccessCount:     rec.AccessCount,
	}
}

// parseTime parses metadata timestamps that travel through the vector index
// as RFC 3339 strings. A malformed value yields the zero time.
func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
