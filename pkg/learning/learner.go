package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/store"
)

// Learner maintains learned user preferences in the record store.
//
// Preferences are never deleted; confidence moves up on reinforcement and
// is capped when a well-established value is overwritten.
type Learner struct {
	records store.RecordStore
	logger  *slog.Logger
}

// NewLearner creates a preference learner backed by the record store.
func NewLearner(records store.RecordStore) *Learner {
	return &Learner{
		records: records,
		logger:  slog.Default().With("component", "preference_learner"),
	}
}

// CommunicationStyle is the structured value of the communication_style
// preference.
type CommunicationStyle struct {
	Formality   string    `json:"formality"`
	Verbosity   string    `json:"verbosity"`
	LastUpdated time.Time `json:"last_updated"`
}

// UpdatePreference creates or updates a preference for a user.
//
// Update semantics:
//   - Same value as stored: reinforcement. Confidence rises by up to 0.1,
//     scaled by how long ago the preference was last reinforced (full boost
//     after 30 days).
//   - Different value while the stored confidence is above 0.8: the incoming
//     confidence is capped at 0.7, so an established preference is not
//     displaced by a single weak observation.
//
// Every update stamps lastReinforced and appends to the bounded history
// (last 10 changes kept). Returns the preference as stored.
func (l *Learner) UpdatePreference(ctx context.Context, userID, key, value string, prefType core.PreferenceType, confidence float64, category core.PreferenceCategory) (*core.UserPreference, error) {
	if userID == "" {
		return nil, core.NewError("UpdatePreference", fmt.Errorf("%w: userID is required", core.ErrValidation))
	}
	if key == "" {
		return nil, core.NewError("UpdatePreference", fmt.Errorf("%w: key is required", core.ErrValidation))
	}
	confidence = clampScore(confidence)
	now := time.Now().UTC()

	existing, err := l.records.GetPreference(ctx, userID, key)
	if err != nil {
		return nil, core.NewError("UpdatePreference", err)
	}

	var pref *core.UserPreference
	if existing == nil {
		pref = &core.UserPreference{
			UserID:          userID,
			Key:             key,
			Value:           value,
			PreferenceType:  prefType,
			Category:        category,
			ConfidenceScore: confidence,
			LastReinforced:  now,
		}
	} else {
		pref = preferenceFromRecord(existing)
		if pref.Value == value {
			timeFactor := daysSince(pref.LastReinforced, now) / 30
			if timeFactor > 1 {
				timeFactor = 1
			}
			pref.ConfidenceScore = clampScore(pref.ConfidenceScore + 0.1*timeFactor)
		} else {
			if pref.ConfidenceScore > 0.8 && confidence > 0.7 {
				confidence = 0.7
			}
			pref.Value = value
			pref.ConfidenceScore = confidence
		}
		pref.PreferenceType = prefType
		pref.Category = category
		pref.LastReinforced = now
	}

	pref.History = append(pref.History, core.PreferenceChange{
		Value:          value,
		Confidence:     pref.ConfidenceScore,
		PreferenceType: prefType,
		Timestamp:      now,
	})
	if len(pref.History) > 10 {
		pref.History = pref.History[len(pref.History)-10:]
	}

	rec, err := preferenceToRecord(pref)
	if err != nil {
		return nil, core.NewError("UpdatePreference", err)
	}
	if err := l.records.SavePreference(ctx, rec); err != nil {
		return nil, core.NewError("UpdatePreference", err)
	}

	l.logger.Debug("updated preference",
		"user_id", userID, "key", key, "confidence", pref.ConfidenceScore)
	return pref, nil
}

// GetUserPreferences returns a user's preferences sorted by confidence
// descending, optionally filtered by category.
func (l *Learner) GetUserPreferences(ctx context.Context, userID string, category core.PreferenceCategory) ([]*core.UserPreference, error) {
	if userID == "" {
		return nil, core.NewError("GetUserPreferences", fmt.Errorf("%w: userID is required", core.ErrValidation))
	}
	recs, err := l.records.ListPreferences(ctx, userID, string(category))
	if err != nil {
		return nil, core.NewError("GetUserPreferences", err)
	}
	prefs := make([]*core.UserPreference, len(recs))
	for i, rec := range recs {
		prefs[i] = preferenceFromRecord(rec)
	}
	return prefs, nil
}

// LearnFromInteraction extracts preference signals from one complete turn:
// explicit preference sentences from the user input, communication style,
// and per-tool usage preferences.
//
// Individual update failures are logged and skipped so one bad preference
// never blocks the rest of the turn's learning.
func (l *Learner) LearnFromInteraction(ctx context.Context, userID, userInput, agentResponse string, toolsUsed []string) {
	for _, match := range DetectPreferences(userInput) {
		category := ClassifyCategory(match.Sentence, toolsUsed)
		key := "preference_" + string(category)
		if _, err := l.UpdatePreference(ctx, userID, key, match.Sentence, core.PreferenceExplicit, match.Confidence, category); err != nil {
			l.logger.Warn("failed to store detected preference",
				"user_id", userID, "key", key, "error", err)
		}
	}

	l.LearnCommunicationStyle(ctx, userID, userInput)

	for _, tool := range toolsUsed {
		value, err := json.Marshal(map[string]interface{}{
			"frequency":         1,
			"context":           truncate(userInput, 200),
			"last_used":         time.Now().UTC().Format(time.RFC3339),
			"success_indicator": successIndicator(userInput),
		})
		if err != nil {
			continue
		}
		key := "tool_usage_" + tool
		if _, err := l.UpdatePreference(ctx, userID, key, string(value), core.PreferenceImplicit, 0.7, core.CategoryFunctionality); err != nil {
			l.logger.Warn("failed to store tool usage preference",
				"user_id", userID, "key", key, "error", err)
		}
	}
}

// LearnCommunicationStyle derives formality and verbosity from the user's
// phrasing and stores them as the implicit communication_style preference
// at confidence 0.65.
func (l *Learner) LearnCommunicationStyle(ctx context.Context, userID, userInput string) {
	style := AnalyzeCommunicationStyle(userInput)

	value, err := json.Marshal(style)
	if err != nil {
		return
	}
	if _, err := l.UpdatePreference(ctx, userID, "communication_style", string(value), core.PreferenceImplicit, 0.65, core.CategoryCommunication); err != nil {
		l.logger.Warn("failed to store communication style",
			"user_id", userID, "error", err)
	}
}

// formal and informal markers for formality scoring.
var (
	formalMarkers   = []string{"please", "would you", "could you", "kindly"}
	informalMarkers = []string{"hey", "hi", "thanks", "cool"}
)

// AnalyzeCommunicationStyle scores one user message for formality (marker
// counts) and verbosity (word count: over 30 detailed, under 10 concise).
func AnalyzeCommunicationStyle(userInput string) CommunicationStyle {
	lower := strings.ToLower(userInput)

	var formal, informal int
	for _, marker := range formalMarkers {
		if strings.Contains(lower, marker) {
			formal++
		}
	}
	for _, marker := range informalMarkers {
		if strings.Contains(lower, marker) {
			informal++
		}
	}

	formality := "balanced"
	if formal > informal {
		formality = "formal"
	} else if informal > formal {
		formality = "informal"
	}

	verbosity := "balanced"
	words := len(strings.Fields(userInput))
	if words > 30 {
		verbosity = "detailed"
	} else if words < 10 {
		verbosity = "concise"
	}

	return CommunicationStyle{
		Formality:   formality,
		Verbosity:   verbosity,
		LastUpdated: time.Now().UTC(),
	}
}

// preferenceToRecord converts a preference to its store row, JSON-encoding
// the history.
func preferenceToRecord(pref *core.UserPreference) (*store.Preference, error) {
	history := "[]"
	if len(pref.History) > 0 {
		data, err := json.Marshal(pref.History)
		if err != nil {
			return nil, err
		}
		history = string(data)
	}
	return &store.Preference{
		UserID:          pref.UserID,
		Key:             pref.Key,
		Value:           pref.Value,
		PreferenceType:  string(pref.PreferenceType),
		Category:        string(pref.Category),
		ConfidenceScore: pref.ConfidenceScore,
		LastReinforced:  pref.LastReinforced,
		History:         history,
	}, nil
}

// preferenceFromRecord converts a store row back to a preference. A
// malformed history is dropped rather than failing the read.
func preferenceFromRecord(rec *store.Preference) *core.UserPreference {
	var history []core.PreferenceChange
	if rec.History != "" {
		_ = json.Unmarshal([]byte(rec.History), &history)
	}
	return &core.UserPreference{
		UserID:          rec.UserID,
		Key:             rec.Key,
		Value:           rec.Value,
		PreferenceType:  core.PreferenceType(rec.PreferenceType),
		Category:        core.PreferenceCategory(rec.Category),
		ConfidenceScore: rec.ConfidenceScore,
		LastReinforced:  rec.LastReinforced,
		History:         history,
	}
}

func successIndicator(userInput string) string {
	if strings.Contains(strings.ToLower(userInput), "thank") {
		return "positive"
	}
	return "neutral"
}

func daysSince(t, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
