package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/store"
)

// Profile is a user's profile: settings, aggregate interaction statistics,
// and the learned communication style. The maps are open-ended; well-known
// keys are seeded by defaultProfile.
type Profile struct {
	UserID             string                 `json:"user_id"`
	Settings           map[string]interface{} `json:"settings"`
	InteractionStats   map[string]interface{} `json:"interaction_stats"`
	CommunicationStyle map[string]interface{} `json:"communication_style"`

	// RecentEvents are the user's most important life events, filled on
	// read and never persisted with the profile row.
	RecentEvents []*LifeEvent `json:"recent_events,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LifeEvent is a significant event in the user's life: a milestone, a
// recurring commitment, or anything worth surfacing alongside the profile.
type LifeEvent struct {
	ID              int64                  `json:"id"`
	UserID          string                 `json:"user_id"`
	EventType       string                 `json:"event_type"`
	EventData       map[string]interface{} `json:"event_data,omitempty"`
	EventDate       time.Time              `json:"event_date"`
	ImportanceScore float64                `json:"importance_score"`
	Tags            []string               `json:"tags,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// ProfileService maintains user profiles in the record store.
type ProfileService struct {
	records store.RecordStore
	logger  *slog.Logger
}

// NewProfileService creates a profile service backed by the record store.
func NewProfileService(records store.RecordStore) *ProfileService {
	return &ProfileService{
		records: records,
		logger:  slog.Default().With("component", "profile_service"),
	}
}

// GetUserProfile returns the user's profile, creating one with default
// settings on first access. The profile carries the user's 5 most
// important life events; loading them is best effort.
func (s *ProfileService) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, core.NewError("GetUserProfile", fmt.Errorf("%w: userID is required", core.ErrValidation))
	}

	rec, err := s.records.GetProfile(ctx, userID)
	if err != nil {
		return nil, core.NewError("GetUserProfile", err)
	}

	var profile *Profile
	if rec == nil {
		profile = defaultProfile(userID)
		if err := s.save(ctx, profile); err != nil {
			return nil, core.NewError("GetUserProfile", err)
		}
		s.logger.Info("created user profile", "user_id", userID)
	} else {
		profile = profileFromRecord(rec)
	}

	events, err := s.GetLifeEvents(ctx, userID, "", 5)
	if err != nil {
		s.logger.Warn("failed to load life events", "user_id", userID, "error", err)
	} else {
		profile.RecentEvents = events
	}
	return profile, nil
}

// AddLifeEvent records a significant life event for the user and keeps
// the 10 most important ones mirrored in the profile settings.
//
// A zero eventDate means now.
func (s *ProfileService) AddLifeEvent(ctx context.Context, userID, eventType string, eventData map[string]interface{}, eventDate time.Time, importance float64, tags []string) error {
	if userID == "" {
		return core.NewError("AddLifeEvent", fmt.Errorf("%w: userID is required", core.ErrValidation))
	}
	if eventType == "" {
		return core.NewError("AddLifeEvent", fmt.Errorf("%w: eventType is required", core.ErrValidation))
	}
	if eventDate.IsZero() {
		eventDate = time.Now().UTC()
	}

	rec, err := lifeEventToRecord(&LifeEvent{
		UserID:          userID,
		EventType:       eventType,
		EventData:       eventData,
		EventDate:       eventDate,
		ImportanceScore: importance,
		Tags:            tags,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return core.NewError("AddLifeEvent", err)
	}
	if err := s.records.InsertLifeEvent(ctx, rec); err != nil {
		return core.NewError("AddLifeEvent", err)
	}

	profile, err := s.GetUserProfile(ctx, userID)
	if err != nil {
		return err
	}
	events, _ := profile.Settings["significant_events"].([]interface{})
	events = append(events, map[string]interface{}{
		"type":       eventType,
		"date":       eventDate.Format(time.RFC3339),
		"importance": importance,
		"tags":       tags,
	})
	sort.SliceStable(events, func(i, j int) bool {
		return settingEventImportance(events[i]) > settingEventImportance(events[j])
	})
	if len(events) > 10 {
		events = events[:10]
	}
	profile.Settings["significant_events"] = events

	profile.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, profile); err != nil {
		return core.NewError("AddLifeEvent", err)
	}
	s.logger.Info("added life event", "user_id", userID, "event_type", eventType)
	return nil
}

// GetLifeEvents returns the user's life events, most important first,
// optionally filtered by event type. A non-positive limit means 10.
func (s *ProfileService) GetLifeEvents(ctx context.Context, userID, eventType string, limit int) ([]*LifeEvent, error) {
	if userID == "" {
		return nil, core.NewError("GetLifeEvents", fmt.Errorf("%w: userID is required", core.ErrValidation))
	}
	if limit <= 0 {
		limit = 10
	}

	recs, err := s.records.ListLifeEvents(ctx, userID, eventType, limit)
	if err != nil {
		return nil, core.NewError("GetLifeEvents", err)
	}
	events := make([]*LifeEvent, 0, len(recs))
	for _, rec := range recs {
		events = append(events, lifeEventFromRecord(rec))
	}
	return events, nil
}

// RecordInteraction folds one turn into the profile's aggregate stats:
// total interaction count, per-tool usage counts, and the top 20 topics.
func (s *ProfileService) RecordInteraction(ctx context.Context, userID string, toolsUsed, topics []string) error {
	profile, err := s.GetUserProfile(ctx, userID)
	if err != nil {
		return err
	}

	stats := profile.InteractionStats
	stats["total_interactions"] = statInt(stats["total_interactions"]) + 1

	if len(toolsUsed) > 0 {
		tools := statCounts(stats["preferred_tools"])
		for _, tool := range toolsUsed {
			tools[tool]++
		}
		stats["preferred_tools"] = tools
	}

	if len(topics) > 0 {
		counts := statCounts(stats["common_topics"])
		for _, topic := range topics {
			counts[topic]++
		}
		stats["common_topics"] = topCounts(counts, 20)
	}

	profile.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, profile); err != nil {
		return core.NewError("RecordInteraction", err)
	}
	return nil
}

// RecordSessionEnd folds a finished session into the profile: session
// count and running average session length in seconds.
func (s *ProfileService) RecordSessionEnd(ctx context.Context, userID string, duration time.Duration) error {
	profile, err := s.GetUserProfile(ctx, userID)
	if err != nil {
		return err
	}

	stats := profile.InteractionStats
	sessions := statInt(stats["total_sessions"])
	avg := statFloat(stats["avg_session_length"])
	stats["avg_session_length"] = (avg*float64(sessions) + duration.Seconds()) / float64(sessions+1)
	stats["total_sessions"] = sessions + 1

	profile.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, profile); err != nil {
		return core.NewError("RecordSessionEnd", err)
	}
	return nil
}

// UpdateCommunicationStyle applies style aspect updates, keeping the last
// 5 changes per aspect in the profile settings.
func (s *ProfileService) UpdateCommunicationStyle(ctx context.Context, userID string, updates map[string]interface{}) error {
	profile, err := s.GetUserProfile(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for key, newValue := range updates {
		oldValue, known := profile.CommunicationStyle[key]
		if known && oldValue != newValue {
			history, _ := profile.Settings["communication_style_history"].(map[string]interface{})
			if history == nil {
				history = make(map[string]interface{})
			}
			changes, _ := history[key].([]interface{})
			changes = append(changes, map[string]interface{}{
				"old_value": oldValue,
				"new_value": newValue,
				"timestamp": now.Format(time.RFC3339),
			})
			if len(changes) > 5 {
				changes = changes[len(changes)-5:]
			}
			history[key] = changes
			profile.Settings["communication_style_history"] = history
		}
		profile.CommunicationStyle[key] = newValue
	}

	profile.UpdatedAt = now
	if err := s.save(ctx, profile); err != nil {
		return core.NewError("UpdateCommunicationStyle", err)
	}
	return nil
}

func (s *ProfileService) save(ctx context.Context, profile *Profile) error {
	rec, err := profileToRecord(profile)
	if err != nil {
		return err
	}
	return s.records.SaveProfile(ctx, rec)
}

// defaultProfile seeds a new profile.
func defaultProfile(userID string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		UserID: userID,
		Settings: map[string]interface{}{
			"communication_style":   "professional",
			"response_length":       "medium",
			"proactive_suggestions": true,
			"remember_context":      true,
			"memory_retention_days": 90,
			"min_memory_importance": 0.3,
			"auto_learn_preferences": true,
		},
		InteractionStats: map[string]interface{}{
			"total_sessions":     0,
			"total_interactions": 0,
			"avg_session_length": 0.0,
			"preferred_tools":    map[string]int{},
			"common_topics":      map[string]int{},
		},
		CommunicationStyle: map[string]interface{}{
			"verbosity":       "medium",
			"tone":            "professional",
			"formality":       "balanced",
			"emoji_usage":     "minimal",
			"technical_level": "adaptive",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// profileToRecord converts a profile to its store row, JSON-encoding the
// maps.
func profileToRecord(profile *Profile) (*store.Profile, error) {
	settings, err := json.Marshal(profile.Settings)
	if err != nil {
		return nil, err
	}
	stats, err := json.Marshal(profile.InteractionStats)
	if err != nil {
		return nil, err
	}
	style, err := json.Marshal(profile.CommunicationStyle)
	if err != nil {
		return nil, err
	}
	return &store.Profile{
		UserID:             profile.UserID,
		Settings:           string(settings),
		InteractionStats:   string(stats),
		CommunicationStyle: string(style),
		CreatedAt:          profile.CreatedAt,
		UpdatedAt:          profile.UpdatedAt,
	}, nil
}

// profileFromRecord converts a store row back to a profile. Malformed JSON
// fields come back as empty maps.
func profileFromRecord(rec *store.Profile) *Profile {
	profile := &Profile{
		UserID:             rec.UserID,
		Settings:           map[string]interface{}{},
		InteractionStats:   map[string]interface{}{},
		CommunicationStyle: map[string]interface{}{},
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if rec.Settings != "" {
		_ = json.Unmarshal([]byte(rec.Settings), &profile.Settings)
	}
	if rec.InteractionStats != "" {
		_ = json.Unmarshal([]byte(rec.InteractionStats), &profile.InteractionStats)
	}
	if rec.CommunicationStyle != "" {
		_ = json.Unmarshal([]byte(rec.CommunicationStyle), &profile.CommunicationStyle)
	}
	return profile
}

// lifeEventToRecord converts a life event to its store row, JSON-encoding
// the data and tags.
func lifeEventToRecord(event *LifeEvent) (*store.LifeEvent, error) {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(event.Tags)
	if err != nil {
		return nil, err
	}
	return &store.LifeEvent{
		ID:              event.ID,
		UserID:          event.UserID,
		EventType:       event.EventType,
		EventData:       string(data),
		EventDate:       event.EventDate,
		ImportanceScore: event.ImportanceScore,
		Tags:            string(tags),
		CreatedAt:       event.CreatedAt,
	}, nil
}

// lifeEventFromRecord converts a store row back to a life event. Malformed
// JSON fields are skipped.
func lifeEventFromRecord(rec *store.LifeEvent) *LifeEvent {
	event := &LifeEvent{
		ID:              rec.ID,
		UserID:          rec.UserID,
		EventType:       rec.EventType,
		EventDate:       rec.EventDate,
		ImportanceScore: rec.ImportanceScore,
		CreatedAt:       rec.CreatedAt,
	}
	if rec.EventData != "" {
		_ = json.Unmarshal([]byte(rec.EventData), &event.EventData)
	}
	if rec.Tags != "" {
		_ = json.Unmarshal([]byte(rec.Tags), &event.Tags)
	}
	return event
}

// settingEventImportance reads the importance of a significant_events
// entry, which may have round-tripped through JSON.
func settingEventImportance(v interface{}) float64 {
	m, ok := v.(map[string]interface{})
	if !ok {
		return 0
	}
	return statFloat(m["importance"])
}

// statInt reads an integer stat that may have round-tripped through JSON
// as a float64.
func statInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func statFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// statCounts reads a count map that may have round-tripped through JSON.
func statCounts(v interface{}) map[string]int {
	counts := make(map[string]int)
	switch m := v.(type) {
	case map[string]int:
		return m
	case map[string]interface{}:
		for k, raw := range m {
			counts[k] = statInt(raw)
		}
	}
	return counts
}

// topCounts keeps the n highest counts, dropping the rest.
func topCounts(counts map[string]int, n int) map[string]int {
	if len(counts) <= n {
		return counts
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	top := make(map[string]int, n)
	for _, k := range keys[:n] {
		top[k] = counts[k]
	}
	return top
}
