// Package session tracks conversational sessions: it records interactions,
// learns preferences from them, captures durable memories selectively, and
// archives a summarized record when the session ends.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/learning"
	"github.com/tiermem/tiermem-go/pkg/retrieval"
	"github.com/tiermem/tiermem-go/pkg/store"
)

// EnrichedContext is the startup context handed back when a session is
// created: who the user is, what they prefer, and what the engine already
// remembers about them.
type EnrichedContext struct {
	// Profile is the user's profile.
	Profile *Profile `json:"profile"`

	// Preferences are the user's learned preferences, confidence desc.
	Preferences []*core.UserPreference `json:"preferences"`

	// Memories is the contextual memory bundle for session start.
	Memories *core.ContextBundle `json:"memories"`

	// InitialContext echoes the caller-provided context.
	InitialContext map[string]interface{} `json:"initial_context,omitempty"`
}

// Session is a live session handle.
type Session struct {
	// Record is the session's state.
	Record *core.SessionRecord `json:"record"`

	// Context is the enriched startup context.
	Context *EnrichedContext `json:"context"`
}

// activeSession pairs a live record with the mutex that serializes its
// writers.
type activeSession struct {
	mu     sync.Mutex
	record *core.SessionRecord
}

// Manager owns the session lifecycle: CREATED -> ACTIVE -> ENDED, never
// backward. Interactions for the same session are serialized; sessions for
// different users proceed in parallel.
//
// Example usage:
//
//	mgr := session.NewManager(mem)
//	sess, _ := mgr.CreateSession(ctx, "user_001", "", nil)
//	mgr.RecordInteraction(ctx, sess.Record.SessionID,
//	    "I prefer concise replies", "Understood.", nil)
//	record, _ := mgr.EndSession(ctx, sess.Record.SessionID)
type Manager struct {
	memories  *core.MemoryStore
	records   store.RecordStore
	learner   *learning.Learner
	retriever *retrieval.Retriever
	profiles  *ProfileService
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]*activeSession
}

// NewManager creates a session manager over the memory store. The learner,
// retriever, and profile service share the store's record backend.
func NewManager(memories *core.MemoryStore) *Manager {
	records := memories.Records()
	return &Manager{
		memories:  memories,
		records:   records,
		learner:   learning.NewLearner(records),
		retriever: retrieval.New(memories),
		profiles:  NewProfileService(records),
		logger:    slog.Default().With("component", "session_manager"),
		active:    make(map[string]*activeSession),
	}
}

// CreateSession starts a new ACTIVE session for the user and returns the
// handle with enriched context (profile, preferences, and the top 5
// contextual memories).
//
// An empty sessionID gets a generated UUID. Creating a session whose id is
// already active fails with a conflict error. Context enrichment is best
// effort: a failure to load any piece is logged and the session still
// starts.
func (m *Manager) CreateSession(ctx context.Context, userID, sessionID string, initialContext map[string]interface{}) (*Session, error) {
	if userID == "" {
		return nil, core.NewError("CreateSession", fmt.Errorf("%w: userID is required", core.ErrValidation))
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.active[sessionID]; exists {
		m.mu.Unlock()
		return nil, core.NewError("CreateSession", fmt.Errorf("%w: %s", core.ErrConflict, sessionID))
	}
	m.mu.Unlock()

	if existing, err := m.records.GetSession(ctx, sessionID); err != nil {
		return nil, core.NewError("CreateSession", err)
	} else if existing != nil && existing.IsActive {
		return nil, core.NewError("CreateSession", fmt.Errorf("%w: %s", core.ErrConflict, sessionID))
	}

	enriched := &EnrichedContext{InitialContext: initialContext}

	profile, err := m.profiles.GetUserProfile(ctx, userID)
	if err != nil {
		m.logger.Warn("failed to load profile for session", "user_id", userID, "error", err)
	} else {
		enriched.Profile = profile
	}

	prefs, err := m.learner.GetUserPreferences(ctx, userID, "")
	if err != nil {
		m.logger.Warn("failed to load preferences for session", "user_id", userID, "error", err)
	} else {
		enriched.Preferences = prefs
	}

	bundle, err := m.retriever.GetContextualMemories(ctx, userID,
		retrieval.Context{Query: "session initialization"}, 5)
	if err != nil {
		m.logger.Warn("failed to load contextual memories for session", "user_id", userID, "error", err)
	} else {
		enriched.Memories = bundle
	}

	record := &core.SessionRecord{
		SessionID: sessionID,
		UserID:    userID,
		StartTime: time.Now().UTC(),
		IsActive:  true,
	}

	if err := m.saveRecord(ctx, record); err != nil {
		return nil, core.NewError("CreateSession", err)
	}

	m.mu.Lock()
	if _, exists := m.active[sessionID]; exists {
		m.mu.Unlock()
		return nil, core.NewError("CreateSession", fmt.Errorf("%w: %s", core.ErrConflict, sessionID))
	}
	m.active[sessionID] = &activeSession{record: record}
	m.mu.Unlock()

	m.logger.Info("created session", "session_id", sessionID, "user_id", userID)
	return &Session{Record: record, Context: enriched}, nil
}

// RecordInteraction folds one turn into the session.
//
// Partial turns are supported: a user message without a response appends a
// new interaction, and the response arriving later merges into it. An
// unknown or already-ended session is logged and dropped, never an error;
// lifecycle races with EndSession are expected.
//
// A complete turn triggers preference learning and selective memory
// capture. A turn with neither half is rejected.
func (m *Manager) RecordInteraction(ctx context.Context, sessionID, userInput, agentResponse string, toolsUsed []string) error {
	if userInput == "" && agentResponse == "" {
		return core.NewError("RecordInteraction", fmt.Errorf("%w: empty interaction", core.ErrValidation))
	}

	m.mu.Lock()
	sess, ok := m.active[sessionID]
	m.mu.Unlock()
	if !ok {
		m.logger.Warn("interaction for unknown session dropped", "session_id", sessionID)
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	record := sess.record
	if !record.IsActive {
		m.logger.Warn("interaction for ended session dropped", "session_id", sessionID)
		return nil
	}

	interaction := m.appendInteraction(record, userInput, agentResponse, toolsUsed)

	for _, tool := range toolsUsed {
		record.ToolsUsed = appendUnique(record.ToolsUsed, tool)
	}

	complete := interaction.UserInput != "" && interaction.AgentResponse != ""
	var topics []string
	if complete {
		topics = learning.ExtractTopics(interaction.UserInput, interaction.AgentResponse)
		for _, topic := range topics {
			record.TopicsDiscussed = appendUnique(record.TopicsDiscussed, topic)
		}
	}

	if err := m.profiles.RecordInteraction(ctx, record.UserID, toolsUsed, topics); err != nil {
		m.logger.Warn("failed to update profile stats", "user_id", record.UserID, "error", err)
	}

	if complete {
		m.learner.LearnFromInteraction(ctx, record.UserID, interaction.UserInput, interaction.AgentResponse, toolsUsed)
	}

	m.captureMemories(ctx, record, interaction)

	if err := m.saveRecord(ctx, record); err != nil {
		m.logger.Warn("failed to persist session", "session_id", sessionID, "error", err)
	}
	return nil
}

// appendInteraction appends a new interaction, or completes the previous
// one when only the missing half of a partial turn arrived.
func (m *Manager) appendInteraction(record *core.SessionRecord, userInput, agentResponse string, toolsUsed []string) *core.Interaction {
	n := len(record.Interactions)
	if userInput == "" && n > 0 && record.Interactions[n-1].AgentResponse == "" {
		last := &record.Interactions[n-1]
		last.AgentResponse = agentResponse
		if len(toolsUsed) > 0 {
			last.ToolsUsed = toolsUsed
		}
		last.Timestamp = time.Now().UTC()
		last.ImportanceScore = learning.InteractionImportance(last.UserInput, last.AgentResponse, last.ToolsUsed)
		return last
	}

	record.Interactions = append(record.Interactions, core.Interaction{
		UserInput:       userInput,
		AgentResponse:   agentResponse,
		Timestamp:       time.Now().UTC(),
		ToolsUsed:       toolsUsed,
		ImportanceScore: learning.InteractionImportance(userInput, agentResponse, toolsUsed),
	})
	return &record.Interactions[len(record.Interactions)-1]
}

// captureMemories stores the durable pieces of an interaction: fact
// sentences, preference sentences, and significant dialogue. Near
// duplicates already in the store suppress the write. All failures are
// logged, never surfaced.
func (m *Manager) captureMemories(ctx context.Context, record *core.SessionRecord, interaction *core.Interaction) {
	if interaction.ImportanceScore <= 0.3 {
		return
	}
	userID := record.UserID
	sessionID := record.SessionID

	for _, fact := range learning.DetectFacts(interaction.UserInput) {
		if m.isDuplicate(ctx, userID, fact, core.TypeFact) {
			continue
		}
		_, err := m.memories.Store(ctx, userID, fact,
			core.WithSessionID(sessionID),
			core.WithMemoryType(core.TypeFact),
			core.WithImportance(0.8),
			core.WithTags("fact", "user_information"),
			core.WithMetadata(map[string]interface{}{
				"source":           "conversation",
				"interaction_type": "fact",
			}),
		)
		if err != nil {
			m.logger.Warn("failed to store fact memory", "user_id", userID, "error", err)
		}
	}

	for _, match := range learning.DetectPreferences(interaction.UserInput) {
		if m.isDuplicate(ctx, userID, match.Sentence, core.TypePreference) {
			continue
		}
		_, err := m.memories.Store(ctx, userID, match.Sentence,
			core.WithSessionID(sessionID),
			core.WithMemoryType(core.TypePreference),
			core.WithImportance(0.7),
			core.WithTags("preference", "user_preference"),
			core.WithMetadata(map[string]interface{}{
				"source":           "conversation",
				"interaction_type": "preference",
			}),
		)
		if err != nil {
			m.logger.Warn("failed to store preference memory", "user_id", userID, "error", err)
		}
	}

	if interaction.ImportanceScore > 0.5 {
		m.captureDialogue(ctx, record, interaction)
	}
}

// Question and action-confirmation markers for dialogue capture.
var (
	questionWords = []string{"how", "what", "why", "when", "where", "can you", "could you"}
	actionWords   = []string{"i have", "i will", "i've", "done", "completed", "created", "updated", "here's"}
)

// captureDialogue stores a significant turn as a conversation memory when
// it contains a user question or an agent action confirmation.
func (m *Manager) captureDialogue(ctx context.Context, record *core.SessionRecord, interaction *core.Interaction) {
	var lines []string

	userLower := strings.ToLower(interaction.UserInput)
	if strings.Contains(interaction.UserInput, "?") || containsAny(userLower, questionWords) {
		lines = append(lines, "User asked: "+interaction.UserInput)
	}
	if containsAny(strings.ToLower(interaction.AgentResponse), actionWords) {
		lines = append(lines, "Assistant action: "+interaction.AgentResponse)
	}
	if len(lines) == 0 {
		return
	}

	content := strings.Join(lines, "\n")
	if m.isDuplicate(ctx, record.UserID, content, core.TypeConversation) {
		return
	}

	tags := append(append([]string{}, interaction.ToolsUsed...), "conversation")
	_, err := m.memories.Store(ctx, record.UserID, content,
		core.WithSessionID(record.SessionID),
		core.WithMemoryType(core.TypeConversation),
		core.WithImportance(interaction.ImportanceScore),
		core.WithTags(tags...),
		core.WithMetadata(map[string]interface{}{
			"interaction_type": "dialogue",
			"tools_used":       interaction.ToolsUsed,
		}),
	)
	if err != nil {
		m.logger.Warn("failed to store dialogue memory", "user_id", record.UserID, "error", err)
	}
}

// isDuplicate reports whether a near-identical memory already exists: an
// exact content match, or a search hit at relevance 0.8 or higher. A
// search failure counts as no duplicate so the capture still happens.
func (m *Manager) isDuplicate(ctx context.Context, userID, content string, memoryType core.MemoryType) bool {
	hits, err := m.memories.Search(ctx, userID, content,
		core.WithLimit(1),
		core.WithType(memoryType),
	)
	if err != nil || len(hits) == 0 {
		return false
	}
	return hits[0].Content == content || hits[0].RelevanceScore >= 0.8
}

// EndSession ends an active session: it summarizes the session, computes
// outcomes, archives the record, stores a session-summary memory, and
// updates the user's response-length and tool preferences.
//
// Ending an unknown or already-ended session returns (nil, nil); lifecycle
// races are expected and tolerated. EndSession is authoritative over a
// racing RecordInteraction.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (*core.SessionRecord, error) {
	m.mu.Lock()
	sess, ok := m.active[sessionID]
	m.mu.Unlock()
	if !ok {
		m.logger.Warn("end of unknown session ignored", "session_id", sessionID)
		return nil, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	record := sess.record
	if !record.IsActive {
		return nil, nil
	}

	now := time.Now().UTC()
	record.Summary = sessionSummary(record)
	record.Outcomes = sessionOutcomes(record)
	record.EndTime = &now
	record.IsActive = false

	if err := m.saveRecord(ctx, record); err != nil {
		m.logger.Warn("failed to archive session", "session_id", sessionID, "error", err)
	}

	m.storeSessionSummary(ctx, record)
	m.updatePreferencesFromSession(ctx, record)

	if err := m.profiles.RecordSessionEnd(ctx, record.UserID, now.Sub(record.StartTime)); err != nil {
		m.logger.Warn("failed to update session stats", "user_id", record.UserID, "error", err)
	}

	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()

	m.logger.Info("ended session", "session_id", sessionID, "user_id", record.UserID,
		"interactions", len(record.Interactions))
	return record, nil
}

// storeSessionSummary persists the session's summary as a session_summary
// memory, with the usual near-duplicate suppression.
func (m *Manager) storeSessionSummary(ctx context.Context, record *core.SessionRecord) {
	content := sessionContent(record)
	if m.isDuplicate(ctx, record.UserID, content, core.TypeSessionSummary) {
		return
	}

	tags := append(append([]string{}, record.TopicsDiscussed...), record.ToolsUsed...)
	tags = append(tags, "session_summary")
	_, err := m.memories.Store(ctx, record.UserID, content,
		core.WithSessionID(record.SessionID),
		core.WithMemoryType(core.TypeSessionSummary),
		core.WithImportance(0.8),
		core.WithTags(tags...),
		core.WithMetadata(map[string]interface{}{
			"interaction_count":   len(record.Interactions),
			"tools_used":          record.ToolsUsed,
			"outcomes":            record.Outcomes,
			"tools_effectiveness": toolsEffectiveness(record),
		}),
	)
	if err != nil {
		m.logger.Warn("failed to store session summary memory",
			"session_id", record.SessionID, "error", err)
	}
}

// updatePreferencesFromSession derives preferences from whole-session
// patterns: the preferred response length (sessions with more than 3
// interactions) and an implicit preference per tool used.
func (m *Manager) updatePreferencesFromSession(ctx context.Context, record *core.SessionRecord) {
	if len(record.Interactions) > 3 {
		var total int
		for _, i := range record.Interactions {
			total += len(i.AgentResponse)
		}
		avg := float64(total) / float64(len(record.Interactions))

		style := "balanced"
		if avg > 300 {
			style = "detailed"
		} else if avg < 100 {
			style = "concise"
		}
		err := m.profiles.UpdateCommunicationStyle(ctx, record.UserID,
			map[string]interface{}{"preferred_response_length": style})
		if err != nil {
			m.logger.Warn("failed to update response length preference",
				"user_id", record.UserID, "error", err)
		}
	}

	for _, tool := range record.ToolsUsed {
		key := "tool_preference_" + tool
		if _, err := m.learner.UpdatePreference(ctx, record.UserID, key, "true", core.PreferenceImplicit, 0.7, core.CategoryFunctionality); err != nil {
			m.logger.Warn("failed to update tool preference",
				"user_id", record.UserID, "key", key, "error", err)
		}
	}
}

// GetSession returns a session record by id, archived or active. Active
// sessions come back as a snapshot copy, safe to read while interactions
// keep arriving. Returns (nil, nil) when the session is unknown.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*core.SessionRecord, error) {
	m.mu.Lock()
	if sess, ok := m.active[sessionID]; ok {
		m.mu.Unlock()
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return snapshotRecord(sess.record), nil
	}
	m.mu.Unlock()

	rec, err := m.records.GetSession(ctx, sessionID)
	if err != nil {
		return nil, core.NewError("GetSession", err)
	}
	if rec == nil {
		return nil, nil
	}
	return sessionFromRecord(rec), nil
}

// Search is a pass-through to MemoryStore.Search.
func (m *Manager) Search(ctx context.Context, userID, query string, opts ...core.SearchOption) ([]*core.MemoryEntry, error) {
	return m.memories.Search(ctx, userID, query, opts...)
}

// GetContextualMemories is a pass-through to the retriever.
func (m *Manager) GetContextualMemories(ctx context.Context, userID string, c retrieval.Context, maxMemories int) (*core.ContextBundle, error) {
	return m.retriever.GetContextualMemories(ctx, userID, c, maxMemories)
}

// UpdatePreference is a pass-through to the learner.
func (m *Manager) UpdatePreference(ctx context.Context, userID, key, value string, prefType core.PreferenceType, confidence float64, category core.PreferenceCategory) (*core.UserPreference, error) {
	return m.learner.UpdatePreference(ctx, userID, key, value, prefType, confidence, category)
}

// GetUserPreferences is a pass-through to the learner.
func (m *Manager) GetUserPreferences(ctx context.Context, userID string, category core.PreferenceCategory) ([]*core.UserPreference, error) {
	return m.learner.GetUserPreferences(ctx, userID, category)
}

// GetUserProfile is a pass-through to the profile service.
func (m *Manager) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	return m.profiles.GetUserProfile(ctx, userID)
}

// AddLifeEvent is a pass-through to the profile service.
func (m *Manager) AddLifeEvent(ctx context.Context, userID, eventType string, eventData map[string]interface{}, eventDate time.Time, importance float64, tags []string) error {
	return m.profiles.AddLifeEvent(ctx, userID, eventType, eventData, eventDate, importance, tags)
}

// GetLifeEvents is a pass-through to the profile service.
func (m *Manager) GetLifeEvents(ctx context.Context, userID, eventType string, limit int) ([]*LifeEvent, error) {
	return m.profiles.GetLifeEvents(ctx, userID, eventType, limit)
}

// snapshotRecord copies a live record, detaching its slices from the
// writer.
func snapshotRecord(record *core.SessionRecord) *core.SessionRecord {
	cp := *record
	cp.Interactions = append([]core.Interaction(nil), record.Interactions...)
	cp.TopicsDiscussed = append([]string(nil), record.TopicsDiscussed...)
	cp.ToolsUsed = append([]string(nil), record.ToolsUsed...)
	cp.Outcomes = append([]string(nil), record.Outcomes...)
	return &cp
}

// saveRecord persists the session record.
func (m *Manager) saveRecord(ctx context.Context, record *core.SessionRecord) error {
	rec, err := sessionToRecord(record)
	if err != nil {
		return err
	}
	return m.records.SaveSession(ctx, rec)
}

// sessionSummary builds the one-line session summary from interaction
// count, tools, and up to 3 topics.
func sessionSummary(record *core.SessionRecord) string {
	var parts []string
	if len(record.Interactions) > 0 {
		parts = append(parts, fmt.Sprintf("Session with %d interactions", len(record.Interactions)))
	}
	if len(record.ToolsUsed) > 0 {
		parts = append(parts, "Used tools: "+strings.Join(record.ToolsUsed, ", "))
	}
	if len(record.TopicsDiscussed) > 0 {
		topics := record.TopicsDiscussed
		if len(topics) > 3 {
			topics = topics[:3]
		}
		parts = append(parts, "Discussed: "+strings.Join(topics, ", "))
	}
	if len(parts) == 0 {
		return "Brief session"
	}
	return strings.Join(parts, ". ")
}

// sessionOutcomes derives the session's outcome list.
func sessionOutcomes(record *core.SessionRecord) []string {
	var outcomes []string

	var significant int
	for _, i := range record.Interactions {
		if i.ImportanceScore > 0.7 {
			significant++
		}
	}
	if significant > 0 {
		outcomes = append(outcomes, fmt.Sprintf("Completed %d significant tasks", significant))
	}

	tools := strings.ToLower(strings.Join(record.ToolsUsed, " "))
	if strings.Contains(tools, "calendar") {
		outcomes = append(outcomes, "Calendar management")
	}
	if strings.Contains(tools, "email") || strings.Contains(tools, "gmail") {
		outcomes = append(outcomes, "Email management")
	}
	return outcomes
}

// toolsEffectiveness is the average importance of the interactions each
// tool participated in. Tools never seen in an interaction score 0.5.
func toolsEffectiveness(record *core.SessionRecord) map[string]float64 {
	effectiveness := make(map[string]float64, len(record.ToolsUsed))
	for _, tool := range record.ToolsUsed {
		var sum float64
		var count int
		for _, i := range record.Interactions {
			for _, used := range i.ToolsUsed {
				if used == tool {
					sum += i.ImportanceScore
					count++
					break
				}
			}
		}
		if count > 0 {
			effectiveness[tool] = sum / float64(count)
		} else {
			effectiveness[tool] = 0.5
		}
	}
	return effectiveness
}

// sessionContent is the text stored as the session-summary memory.
func sessionContent(record *core.SessionRecord) string {
	var parts []string
	parts = append(parts, "Session Summary: "+record.Summary)
	if len(record.TopicsDiscussed) > 0 {
		parts = append(parts, "Topics Discussed: "+strings.Join(record.TopicsDiscussed, ", "))
	}
	if len(record.Outcomes) > 0 {
		parts = append(parts, "Session Outcomes: "+strings.Join(record.Outcomes, ", "))
	}
	return strings.Join(parts, "\n")
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
