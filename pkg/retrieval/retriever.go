// Package retrieval assembles the memory context for a conversational
// turn: it expands the turn's context into a search query, gathers
// memories across types, and produces a ranked, deduplicated bundle with
// a natural-language summary.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/learning"
)

// typePriority is the order memory types are searched in. Facts anchor the
// context, preferences shape it, conversations fill it out.
var typePriority = []core.MemoryType{core.TypeFact, core.TypePreference, core.TypeConversation}

// Context carries the conversational signals a retrieval expands into its
// search query. All fields are optional.
type Context struct {
	// Query is the current user request or question.
	Query string

	// SessionTopics are the topics seen in the session so far.
	SessionTopics []string

	// RecentTools are the tools invoked recently in the session.
	RecentTools []string
}

// Retriever performs contextual memory retrieval over a MemoryStore.
type Retriever struct {
	memories *core.MemoryStore
	logger   *slog.Logger
}

// New creates a retriever over the memory store.
func New(memories *core.MemoryStore) *Retriever {
	return &Retriever{
		memories: memories,
		logger:   slog.Default().With("component", "retriever"),
	}
}

// GetContextualMemories returns up to maxMemories memories relevant to the
// context, ranked by relevance, with duplicates removed.
//
// Each memory type in the priority order is searched with the full
// maxMemories limit;
// the merged result is then deduplicated by exact content and truncated. A
// search failure for one type is logged and the remaining types still run.
func (r *Retriever) GetContextualMemories(ctx context.Context, userID string, c Context, maxMemories int) (*core.ContextBundle, error) {
	if userID == "" {
		return nil, core.NewError("GetContextualMemories", fmt.Errorf("%w: userID is required", core.ErrValidation))
	}
	if maxMemories <= 0 {
		maxMemories = 10
	}

	query := buildQuery(c)

	var all []*core.MemoryEntry
	for _, memoryType := range typePriority {
		results, err := r.memories.Search(ctx, userID, query,
			core.WithLimit(maxMemories),
			core.WithType(memoryType),
		)
		if err != nil {
			r.logger.Warn("contextual search failed for type",
				"user_id", userID, "memory_type", memoryType, "error", err)
			continue
		}
		all = append(all, results...)
	}

	seen := make(map[string]bool)
	unique := make([]*core.MemoryEntry, 0, len(all))
	for _, entry := range all {
		if seen[entry.Content] {
			continue
		}
		seen[entry.Content] = true
		unique = append(unique, entry)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].RelevanceScore > unique[j].RelevanceScore
	})
	if len(unique) > maxMemories {
		unique = unique[:maxMemories]
	}

	byType := make(map[core.MemoryType][]*core.MemoryEntry)
	for _, entry := range unique {
		byType[entry.MemoryType] = append(byType[entry.MemoryType], entry)
	}

	return &core.ContextBundle{
		Memories:            unique,
		ByType:              byType,
		Summary:             summarizeContext(unique),
		InferredPreferences: inferPreferences(unique),
	}, nil
}

// buildQuery expands each context element into paraphrase variants and
// joins them into one search string.
func buildQuery(c Context) string {
	var elements []string

	if c.Query != "" {
		elements = append(elements,
			c.Query,
			"user asked about "+c.Query,
			"information about "+c.Query,
		)
	}
	for _, topic := range c.SessionTopics {
		elements = append(elements, "topic: "+topic, "discussed "+topic)
	}
	for _, tool := range c.RecentTools {
		elements = append(elements, "using "+tool, "tool: "+tool)
	}

	if len(elements) == 0 {
		return "general conversation"
	}
	return strings.Join(elements, " ")
}

// summarizeContext describes the retrieved memories in one sentence chain:
// how many are highly important, how many are conversational, and the
// three most frequent tags.
func summarizeContext(memories []*core.MemoryEntry) string {
	if len(memories) == 0 {
		return "No relevant context from previous interactions."
	}

	var highImportance, conversations int
	tagCounts := make(map[string]int)
	var tagOrder []string
	for _, entry := range memories {
		if entry.ImportanceScore > 0.7 {
			highImportance++
		}
		if entry.MemoryType == core.TypeConversation {
			conversations++
		}
		for _, tag := range entry.Tags {
			if tagCounts[tag] == 0 {
				tagOrder = append(tagOrder, tag)
			}
			tagCounts[tag]++
		}
	}

	var parts []string
	if highImportance > 0 {
		parts = append(parts, fmt.Sprintf("Important context: %d significant past interactions", highImportance))
	}
	if conversations > 0 {
		parts = append(parts, fmt.Sprintf("Recent conversations covered: %d related topics", conversations))
	}
	if top := topTags(tagCounts, tagOrder, 3); len(top) > 0 {
		parts = append(parts, "Common themes: "+strings.Join(top, ", "))
	}

	if len(parts) == 0 {
		return "Limited relevant context available."
	}
	return strings.Join(parts, ". ")
}

// topTags returns the n most frequent tags, breaking ties by first
// appearance.
func topTags(counts map[string]int, order []string, n int) []string {
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// inferPreferences re-scans retrieved memory content with the preference
// phrase table and returns up to 5 preference sentences.
func inferPreferences(memories []*core.MemoryEntry) []string {
	var prefs []string
	for _, entry := range memories {
		for _, match := range learning.DetectPreferences(entry.Content) {
			prefs = append(prefs, match.Sentence)
			if len(prefs) == 5 {
				return prefs
			}
		}
	}
	return prefs
}
