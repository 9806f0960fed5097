package learning

import "strings"

// topicKeywords maps topic buckets to the keywords that evoke them.
var topicKeywords = map[string][]string{
	"calendar":      {"schedule", "appointment", "meeting", "event", "calendar"},
	"email":         {"email", "mail", "message", "send", "inbox"},
	"travel":        {"directions", "drive", "location", "address", "map"},
	"entertainment": {"video", "youtube", "watch", "music"},
	"social":        {"tweet", "twitter", "post", "social"},
	"productivity":  {"reminder", "task", "todo", "organize"},
	"weather":       {"weather", "temperature", "forecast", "rain"},
	"shopping":      {"buy", "purchase", "order", "shopping"},
}

// topicOrder keeps ExtractTopics deterministic.
var topicOrder = []string{"calendar", "email", "travel", "entertainment", "social", "productivity", "weather", "shopping"}

// importantTopics raise interaction importance when mentioned.
var importantTopics = []string{"schedule", "reminder", "preference", "profile", "remember", "forget", "always", "never"}

// ExtractTopics returns the topic buckets evoked by a turn's combined text.
func ExtractTopics(userInput, agentResponse string) []string {
	combined := strings.ToLower(userInput + " " + agentResponse)

	var topics []string
	for _, topic := range topicOrder {
		for _, keyword := range topicKeywords[topic] {
			if strings.Contains(combined, keyword) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// mentionsImportantTopic reports whether either half of a turn touches a
// topic that raises interaction importance.
func mentionsImportantTopic(userInput, agentResponse string) bool {
	userLower := strings.ToLower(userInput)
	agentLower := strings.ToLower(agentResponse)
	for _, topic := range importantTopics {
		if strings.Contains(userLower, topic) || strings.Contains(agentLower, topic) {
			return true
		}
	}
	return false
}
