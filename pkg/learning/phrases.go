// Package learning implements preference detection and reinforcement from
// conversational text. Detection is fixed phrase-table matching, not NLP;
// the tables are the contract, and a real classifier could replace them
// behind the same functions.
package learning

import (
	"strings"

	"github.com/tiermem/tiermem-go/pkg/core"
)

// PhraseMatch is one preference phrase hit inside a text.
type PhraseMatch struct {
	// Sentence is the full sentence containing the phrase.
	Sentence string

	// Phrase is the matched table entry.
	Phrase string

	// Confidence is the phrase's base confidence.
	Confidence float64
}

// preferencePhrases is the ordered phrase table. Order matters: earlier,
// stronger phrases win when a sentence matches several.
var preferencePhrases = []struct {
	Phrase     string
	Confidence float64
}{
	{"i prefer", 0.9},
	{"i like", 0.8},
	{"i want", 0.8},
	{"i need", 0.8},
	{"i always", 0.85},
	{"i usually", 0.75},
	{"i don't like", 0.85},
	{"i hate", 0.9},
	{"please", 0.6},
	{"could you", 0.6},
}

// factIndicators mark sentences where the user states something about
// themselves.
var factIndicators = []string{"i am", "i'm", "my name is", "i work", "i live"}

// DetectPreferences scans text against the phrase table and returns the
// sentence containing each match. A sentence that matches several phrases
// is reported once, under its first (strongest) match.
func DetectPreferences(text string) []PhraseMatch {
	lower := strings.ToLower(text)

	var matches []PhraseMatch
	seen := make(map[string]bool)
	for _, entry := range preferencePhrases {
		if !strings.Contains(lower, entry.Phrase) {
			continue
		}
		for _, sentence := range splitSentences(text) {
			if !strings.Contains(strings.ToLower(sentence), entry.Phrase) || seen[sentence] {
				continue
			}
			seen[sentence] = true
			matches = append(matches, PhraseMatch{
				Sentence:   sentence,
				Phrase:     entry.Phrase,
				Confidence: entry.Confidence,
			})
		}
	}
	return matches
}

// DetectFacts returns the sentences where the user states a fact about
// themselves.
func DetectFacts(text string) []string {
	lower := strings.ToLower(text)

	var facts []string
	seen := make(map[string]bool)
	for _, indicator := range factIndicators {
		if !strings.Contains(lower, indicator) {
			continue
		}
		for _, sentence := range splitSentences(text) {
			if !strings.Contains(strings.ToLower(sentence), indicator) || seen[sentence] {
				continue
			}
			seen[sentence] = true
			facts = append(facts, sentence)
		}
	}
	return facts
}

// communicationKeywords drive category classification. The list includes
// response-shape words (summary, reply) so phrases like "email summaries"
// land in communication rather than general.
var communicationKeywords = []string{"say", "tell", "explain", "show", "respond", "response", "reply", "replies", "summary", "summaries"}

var interfaceKeywords = []string{"display", "format", "layout", "style"}

var taskKeywords = []string{"when", "how", "what", "workflow", "process"}

// ClassifyCategory assigns a preference category to a sentence. Matching is
// first-hit in priority order: communication, then tools the turn used,
// then interface, then task, else general.
func ClassifyCategory(text string, toolsUsed []string) core.PreferenceCategory {
	lower := strings.ToLower(text)

	for _, word := range communicationKeywords {
		if strings.Contains(lower, word) {
			return core.CategoryCommunication
		}
	}
	for _, tool := range toolsUsed {
		if tool != "" && strings.Contains(lower, strings.ToLower(tool)) {
			return core.CategoryFunctionality
		}
	}
	for _, word := range interfaceKeywords {
		if strings.Contains(lower, word) {
			return core.CategoryInterface
		}
	}
	for _, word := range taskKeywords {
		if strings.Contains(lower, word) {
			return core.CategoryTask
		}
	}
	return core.CategoryGeneral
}

// splitSentences splits on periods and trims whitespace, dropping empty
// pieces.
func splitSentences(text string) []string {
	parts := strings.Split(text, ".")
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
