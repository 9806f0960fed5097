// Package postgres provides the PostgreSQL implementation of the record
// store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/tiermem/tiermem-go/pkg/store"
)

// Client is a PostgreSQL record store client.
type Client struct {
	db *sql.DB
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient creates a new PostgreSQL client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// NewRecordStore creates a PostgreSQL record store from a provider config map.
func NewRecordStore(cfg map[string]interface{}) (store.RecordStore, error) {
	host, _ := cfg["host"].(string)
	if host == "" {
		host = "localhost"
	}
	port := configInt(cfg["port"], 5432)
	user, _ := cfg["user"].(string)
	password, _ := cfg["password"].(string)
	dbName, _ := cfg["db_name"].(string)
	sslMode, _ := cfg["ssl_mode"].(string)
	return NewClient(&Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	})
}

// configInt reads an int from a config map value, which arrives as float64
// when the config was decoded from JSON.
func configInt(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

// initTables initializes the database tables.
func (c *Client) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			session_id VARCHAR(255),
			content TEXT NOT NULL,
			content_summary TEXT,
			memory_type VARCHAR(32) NOT NULL,
			importance FLOAT DEFAULT 0.5,
			tags JSONB,
			metadata JSONB,
			created_at TIMESTAMP NOT NULL,
			last_accessed_at TIMESTAMP NOT NULL,
			access_count INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_user ON memory_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_session ON memory_entries(session_id)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			pref_key VARCHAR(255) NOT NULL,
			value TEXT,
			pref_type VARCHAR(32) NOT NULL,
			category VARCHAR(32) NOT NULL,
			confidence FLOAT DEFAULT 0.5,
			last_reinforced TIMESTAMP NOT NULL,
			history JSONB,
			UNIQUE(user_id, pref_key)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			summary TEXT,
			topics JSONB,
			tools JSONB,
			outcomes JSONB,
			interactions JSONB,
			is_active BOOLEAN DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id VARCHAR(255) PRIMARY KEY,
			settings JSONB,
			interaction_stats JSONB,
			communication_style JSONB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS life_events (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			event_data JSONB,
			event_date TIMESTAMP NOT NULL,
			importance FLOAT DEFAULT 0.5,
			tags JSONB,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_life_events_user ON life_events(user_id)`,
	}

	for _, query := range queries {
		if _, err := c.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// InsertEntry inserts a memory entry row.
func (c *Client) InsertEntry(ctx context.Context, entry *store.Entry) error {
	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}

	query := `
		INSERT INTO memory_entries
		(id, user_id, session_id, content, content_summary, memory_type, importance, tags, metadata, created_at, last_accessed_at, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = c.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.SessionID, entry.Content, entry.ContentSummary,
		entry.MemoryType, entry.ImportanceScore, string(tags), string(metadata),
		entry.CreatedAt, entry.LastAccessedAt, entry.AccessCount)
	if err != nil {
		return fmt.Errorf("InsertEntry: %w", err)
	}
	return nil
}

// GetEntry retrieves a memory entry by id. Returns (nil, nil) when missing.
func (c *Client) GetEntry(ctx context.Context, id string) (*store.Entry, error) {
	query := `
		SELECT id, user_id, session_id, content, content_summary, memory_type, importance, tags, metadata, created_at, last_accessed_at, access_count
		FROM memory_entries WHERE id = $1
	`
	entry, err := scanEntry(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEntry: %w", err)
	}
	return entry, nil
}

// DeleteEntry deletes a memory entry by id.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("DeleteEntry: %w", err)
	}
	return nil
}

// TouchEntries increments access counts and sets last-accessed time.
func (c *Client) TouchEntries(ctx context.Context, ids []string, accessedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, accessedAt)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE memory_entries
		SET access_count = access_count + 1, last_accessed_at = $1
		WHERE id IN (%s)
	`, strings.Join(placeholders, ","))
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("TouchEntries: %w", err)
	}
	return nil
}

// QueryEntries returns entries matching the filter, oldest first.
func (c *Client) QueryEntries(ctx context.Context, filter *store.EntryFilter) ([]*store.Entry, error) {
	query := `
		SELECT id, user_id, session_id, content, content_summary, memory_type, importance, tags, metadata, created_at, last_accessed_at, access_count
		FROM memory_entries
	`
	var conditions []string
	var args []interface{}
	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, "user_id = "+fmt.Sprintf("$%d", len(args)))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conditions = append(conditions, "session_id = "+fmt.Sprintf("$%d", len(args)))
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		conditions = append(conditions, "created_at < "+fmt.Sprintf("$%d", len(args)))
	}
	if filter.ImportanceBelow > 0 {
		args = append(args, filter.ImportanceBelow)
		conditions = append(conditions, "importance < "+fmt.Sprintf("$%d", len(args)))
	}
	if filter.AccessCountBelow > 0 {
		args = append(args, filter.AccessCountBelow)
		conditions = append(conditions, "access_count < "+fmt.Sprintf("$%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + next()
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryEntries: %w", err)
	}
	defer rows.Close()

	var entries []*store.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("QueryEntries: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("QueryEntries: %w", err)
	}
	return entries, nil
}

// GetPreference retrieves a preference by user and key. Returns (nil, nil)
// when missing.
func (c *Client) GetPreference(ctx context.Context, userID, key string) (*store.Preference, error) {
	query := `
		SELECT id, user_id, pref_key, value, pref_type, category, confidence, last_reinforced, history
		FROM preferences WHERE user_id = $1 AND pref_key = $2
	`
	pref, err := scanPreference(c.db.QueryRowContext(ctx, query, userID, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPreference: %w", err)
	}
	return pref, nil
}

// SavePreference inserts or updates a preference, keyed by (user, key).
func (c *Client) SavePreference(ctx context.Context, pref *store.Preference) error {
	query := `
		INSERT INTO preferences (user_id, pref_key, value, pref_type, category, confidence, last_reinforced, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, pref_key) DO UPDATE SET
			value = EXCLUDED.value,
			pref_type = EXCLUDED.pref_type,
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			last_reinforced = EXCLUDED.last_reinforced,
			history = EXCLUDED.history
	`
	_, err := c.db.ExecContext(ctx, query,
		pref.UserID, pref.Key, pref.Value, pref.PreferenceType, pref.Category,
		pref.ConfidenceScore, pref.LastReinforced, nullableJSON(pref.History))
	if err != nil {
		return fmt.Errorf("SavePreference: %w", err)
	}
	return nil
}

// ListPreferences returns a user's preferences sorted by confidence
// descending, optionally filtered by category.
func (c *Client) ListPreferences(ctx context.Context, userID, category string) ([]*store.Preference, error) {
	query := `
		SELECT id, user_id, pref_key, value, pref_type, category, confidence, last_reinforced, history
		FROM preferences WHERE user_id = $1
	`
	args := []interface{}{userID}
	if category != "" {
		query += " AND category = $2"
		args = append(args, category)
	}
	query += " ORDER BY confidence DESC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListPreferences: %w", err)
	}
	defer rows.Close()

	var prefs []*store.Preference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPreferences: %w", err)
		}
		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPreferences: %w", err)
	}
	return prefs, nil
}

// SaveSession inserts or updates a session row.
func (c *Client) SaveSession(ctx context.Context, session *store.Session) error {
	query := `
		INSERT INTO sessions (session_id, user_id, started_at, ended_at, summary, topics, tools, outcomes, interactions, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			summary = EXCLUDED.summary,
			topics = EXCLUDED.topics,
			tools = EXCLUDED.tools,
			outcomes = EXCLUDED.outcomes,
			interactions = EXCLUDED.interactions,
			is_active = EXCLUDED.is_active
	`
	_, err := c.db.ExecContext(ctx, query,
		session.SessionID, session.UserID, session.StartTime, session.EndTime,
		session.Summary, nullableJSON(session.Topics), nullableJSON(session.Tools),
		nullableJSON(session.Outcomes), nullableJSON(session.Interactions), session.IsActive)
	if err != nil {
		return fmt.Errorf("SaveSession: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id. Returns (nil, nil) when missing.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	query := `
		SELECT session_id, user_id, started_at, ended_at, summary, topics, tools, outcomes, interactions, is_active
		FROM sessions WHERE session_id = $1
	`
	session, err := scanSession(c.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}
	return session, nil
}

// InsertLifeEvent inserts a life event row.
func (c *Client) InsertLifeEvent(ctx context.Context, event *store.LifeEvent) error {
	query := `
		INSERT INTO life_events (user_id, event_type, event_data, event_date, importance, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := c.db.ExecContext(ctx, query,
		event.UserID, event.EventType, nullableJSON(event.EventData), event.EventDate,
		event.ImportanceScore, nullableJSON(event.Tags), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("InsertLifeEvent: %w", err)
	}
	return nil
}

// ListLifeEvents returns a user's life events sorted by importance
// descending, optionally filtered by event type, capped at limit.
func (c *Client) ListLifeEvents(ctx context.Context, userID, eventType string, limit int) ([]*store.LifeEvent, error) {
	query := `
		SELECT id, user_id, event_type, event_data, event_date, importance, tags, created_at
		FROM life_events WHERE user_id = $1
	`
	args := []interface{}{userID}
	if eventType != "" {
		args = append(args, eventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	query += " ORDER BY importance DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListLifeEvents: %w", err)
	}
	defer rows.Close()

	var events []*store.LifeEvent
	for rows.Next() {
		event, err := scanLifeEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListLifeEvents: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListLifeEvents: %w", err)
	}
	return events, nil
}

// GetProfile retrieves a user profile. Returns (nil, nil) when missing.
func (c *Client) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	query := `
		SELECT user_id, settings, interaction_stats, communication_style, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`
	profile, err := scanProfile(c.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	return profile, nil
}

// SaveProfile inserts or updates a user profile.
func (c *Client) SaveProfile(ctx context.Context, profile *store.Profile) error {
	query := `
		INSERT INTO profiles (user_id, settings, interaction_stats, communication_style, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			settings = EXCLUDED.settings,
			interaction_stats = EXCLUDED.interaction_stats,
			communication_style = EXCLUDED.communication_style,
			updated_at = EXCLUDED.updated_at
	`
	_, err := c.db.ExecContext(ctx, query,
		profile.UserID, nullableJSON(profile.Settings), nullableJSON(profile.InteractionStats),
		nullableJSON(profile.CommunicationStyle), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("SaveProfile: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// nullableJSON maps an empty string to NULL so JSONB columns never receive
// invalid empty input.
func nullableJSON(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanEntry scans a memory entry from a database row or rows.
func scanEntry(scanner interface{}) (*store.Entry, error) {
	var entry store.Entry
	var sessionID, contentSummary, tagsStr, metadataStr sql.NullString

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(&entry.ID, &entry.UserID, &sessionID, &entry.Content, &contentSummary,
			&entry.MemoryType, &entry.ImportanceScore, &tagsStr, &metadataStr,
			&entry.CreatedAt, &entry.LastAccessedAt, &entry.AccessCount)
	case *sql.Rows:
		err = s.Scan(&entry.ID, &entry.UserID, &sessionID, &entry.Content, &contentSummary,
			&entry.MemoryType, &entry.ImportanceScore, &tagsStr, &metadataStr,
			&entry.CreatedAt, &entry.LastAccessedAt, &entry.AccessCount)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	entry.SessionID = sessionID.String
	entry.ContentSummary = contentSummary.String
	if tagsStr.Valid && tagsStr.String != "" {
		if err := json.Unmarshal([]byte(tagsStr.String), &entry.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}
	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &entry, nil
}

// scanPreference scans a preference from a database row or rows.
func scanPreference(scanner interface{}) (*store.Preference, error) {
	var pref store.Preference
	var value, history sql.NullString

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(&pref.ID, &pref.UserID, &pref.Key, &value, &pref.PreferenceType,
			&pref.Category, &pref.ConfidenceScore, &pref.LastReinforced, &history)
	case *sql.Rows:
		err = s.Scan(&pref.ID, &pref.UserID, &pref.Key, &value, &pref.PreferenceType,
			&pref.Category, &pref.ConfidenceScore, &pref.LastReinforced, &history)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	pref.Value = value.String
	pref.History = history.String
	return &pref, nil
}

// scanSession scans a session from a database row or rows.
func scanSession(scanner interface{}) (*store.Session, error) {
	var session store.Session
	var endedAt sql.NullTime
	var summary, topics, tools, outcomes, interactions sql.NullString

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(&session.SessionID, &session.UserID, &session.StartTime, &endedAt,
			&summary, &topics, &tools, &outcomes, &interactions, &session.IsActive)
	case *sql.Rows:
		err = s.Scan(&session.SessionID, &session.UserID, &session.StartTime, &endedAt,
			&summary, &topics, &tools, &outcomes, &interactions, &session.IsActive)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		session.EndTime = &endedAt.Time
	}
	session.Summary = summary.String
	session.Topics = topics.String
	session.Tools = tools.String
	session.Outcomes = outcomes.String
	session.Interactions = interactions.String
	return &session, nil
}

// scanLifeEvent scans a life event from a database rows cursor.
func scanLifeEvent(rows *sql.Rows) (*store.LifeEvent, error) {
	var event store.LifeEvent
	var data, tags sql.NullString

	err := rows.Scan(&event.ID, &event.UserID, &event.EventType, &data,
		&event.EventDate, &event.ImportanceScore, &tags, &event.CreatedAt)
	if err != nil {
		return nil, err
	}

	event.EventData = data.String
	event.Tags = tags.String
	return &event, nil
}

// scanProfile scans a profile from a database row or rows.
func scanProfile(scanner interface{}) (*store.Profile, error) {
	var profile store.Profile
	var settings, stats, style sql.NullString

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(&profile.UserID, &settings, &stats, &style, &profile.CreatedAt, &profile.UpdatedAt)
	case *sql.Rows:
		err = s.Scan(&profile.UserID, &settings, &stats, &style, &profile.CreatedAt, &profile.UpdatedAt)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	profile.Settings = settings.String
	profile.InteractionStats = stats.String
	profile.CommunicationStyle = style.String
	return &profile, nil
}
