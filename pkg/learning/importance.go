package learning

import "strings"

// importanceIndicators are the phrases that mark a turn as
// preference-bearing for importance scoring. The list extends the
// preference phrase table with naming statements.
var importanceIndicators = []string{
	"i prefer", "i like", "i want", "i need",
	"i always", "i usually", "i don't like", "i hate",
	"my name is", "call me",
}

// InteractionImportance scores a single turn in [0.3, 1.0].
//
// The score starts at a 0.3 base and accrues: 0.3 for a preference phrase
// in the user input, 0.2 for tool use, 0.1 for a long turn (user input over
// 50 chars or response over 100), and 0.1 for an important topic mention.
func InteractionImportance(userInput, agentResponse string, toolsUsed []string) float64 {
	importance := 0.3

	userLower := strings.ToLower(userInput)
	for _, indicator := range importanceIndicators {
		if strings.Contains(userLower, indicator) {
			importance += 0.3
			break
		}
	}

	if len(toolsUsed) > 0 {
		importance += 0.2
	}

	if len(userInput) > 50 || len(agentResponse) > 100 {
		importance += 0.1
	}

	if mentionsImportantTopic(userInput, agentResponse) {
		importance += 0.1
	}

	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}
