// Package mysql provides the MySQL implementation of the record store.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tiermem/tiermem-go/pkg/store"
)

// Client is a MySQL record store client.
type Client struct {
	db *sql.DB
}

// Config contains MySQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient creates a new MySQL client.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	client := &Client{db: db}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// NewRecordStore creates a MySQL record store from a provider config map.
func NewRecordStore(cfg map[string]interface{}) (store.RecordStore, error) {
	host, _ := cfg["host"].(string)
	if host == "" {
		host = "127.0.0.1"
	}
	port := configInt(cfg["port"], 3306)
	user, _ := cfg["user"].(string)
	password, _ := cfg["password"].(string)
	dbName, _ := cfg["db_name"].(string)
	return NewClient(&Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		DBName:   dbName,
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
			importance DOUBLE DEFAULT 0.5,
			tags TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			last_accessed_at DATETIME NOT NULL,
			access_count INT DEFAULT 0,
			INDEX idx_memory_entries_user (user_id),
			INDEX idx_memory_entries_session (session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			pref_key VARCHAR(255) NOT NULL,
			value TEXT,
			pref_type VARCHAR(32) NOT NULL,
			category VARCHAR(32) NOT NULL,
			confidence DOUBLE DEFAULT 0.5,
			last_reinforced DATETIME NOT NULL,
			history TEXT,
			UNIQUE KEY uq_preferences_user_key (user_id, pref_key)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			summary TEXT,
			topics TEXT,
			tools TEXT,
			outcomes TEXT,
			interactions MEDIUMTEXT,
			is_active TINYINT(1) DEFAULT 1,
			INDEX idx_sessions_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id VARCHAR(255) PRIMARY KEY,
			settings TEXT,
			interaction_stats TEXT,
			communication_style TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS life_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			event_data TEXT,
			event_date DATETIME NOT NULL,
			importance DOUBLE DEFAULT 0.5,
			tags TEXT,
			created_at DATETIME NOT NULL,
			INDEX idx_life_events_user (user_id)
		)`,
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		FROM memory_entries WHERE id = ?
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
	if _, err := c.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("DeleteEntry: %w", err)
	}
	return nil
}

// TouchEntries increments access counts and sets last-accessed time.
func (c *Client) TouchEntries(ctx context.Context, ids []string, accessedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, accessedAt)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE memory_entries
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id IN (%s)
	`, placeholders)
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

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if !filter.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.CreatedBefore)
	}
	if filter.ImportanceBelow > 0 {
		conditions = append(conditions, "importance < ?")
		args = append(args, filter.ImportanceBelow)
	}
	if filter.AccessCountBelow > 0 {
		conditions = append(conditions, "access_count < ?")
		args = append(args, filter.AccessCountBelow)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
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
		FROM preferences WHERE user_id = ? AND pref_key = ?
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			value = VALUES(value),
			pref_type = VALUES(pref_type),
			category = VALUES(category),
			confidence = VALUES(confidence),
			last_reinforced = VALUES(last_reinforced),
			history = VALUES(history)
	`
	_, err := c.db.ExecContext(ctx, query,
		pref.UserID, pref.Key, pref.Value, pref.PreferenceType, pref.Category,
		pref.ConfidenceScore, pref.LastReinforced, pref.History)
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
		FROM preferences WHERE user_id = ?
	`
	args := []interface{}{userID}
	if category != "" {
		query += " AND category = ?"
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			ended_at = VALUES(ended_at),
			summary = VALUES(summary),
			topics = VALUES(topics),
			tools = VALUES(tools),
			outcomes = VALUES(outcomes),
			interactions = VALUES(interactions),
			is_active = VALUES(is_active)
	`
	_, err := c.db.ExecContext(ctx, query,
		session.SessionID, session.UserID, session.StartTime, session.EndTime,
		session.Summary, session.Topics, session.Tools, session.Outcomes,
		session.Interactions, session.IsActive)
	if err != nil {
		return fmt.Errorf("SaveSession: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id. Returns (nil, nil) when missing.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	query := `
		SELECT session_id, user_id, started_at, ended_at, summary, topics, tools, outcomes, interactions, is_active
		FROM sessions WHERE session_id = ?
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		event.UserID, event.EventType, event.EventData, event.EventDate,
		event.ImportanceScore, event.Tags, event.CreatedAt)
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
		FROM life_events WHERE user_id = ?
	`
	args := []interface{}{userID}
	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY importance DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
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
		FROM profiles WHERE user_id = ?
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			settings = VALUES(settings),
			interaction_stats = VALUES(interaction_stats),
			communication_style = VALUES(communication_style),
			updated_at = VALUES(updated_at)
	`
	_, err := c.db.ExecContext(ctx, query,
		profile.UserID, profile.Settings, profile.InteractionStats,
		profile.CommunicationStyle, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("SaveProfile: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
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
