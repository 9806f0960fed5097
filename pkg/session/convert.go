package session

import (
	"encoding/json"
	"fmt"

	"github.com/tiermem/tiermem-go/pkg/core"
	"github.com/tiermem/tiermem-go/pkg/store"
)

// sessionToRecord converts a session record to its storage row. List
// fields are JSON encoded.
func sessionToRecord(s *core.SessionRecord) (*store.Session, error) {
	topics, err := marshalJSON(s.TopicsDiscussed)
	if err != nil {
		return nil, fmt.Errorf("encode topics: %w", err)
	}
	tools, err := marshalJSON(s.ToolsUsed)
	if err != nil {
		return nil, fmt.Errorf("encode tools: %w", err)
	}
	outcomes, err := marshalJSON(s.Outcomes)
	if err != nil {
		return nil, fmt.Errorf("encode outcomes: %w", err)
	}
	interactions, err := marshalJSON(s.Interactions)
	if err != nil {
		return nil, fmt.Errorf("encode interactions: %w", err)
	}

	return &store.Session{
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Summary:      s.Summary,
		Topics:       topics,
		Tools:        tools,
		Outcomes:     outcomes,
		Interactions: interactions,
		IsActive:     s.IsActive,
	}, nil
}

// sessionFromRecord converts a storage row back to a session record.
// Undecodable list fields come back empty rather than failing the read.
func sessionFromRecord(rec *store.Session) *core.SessionRecord {
	s := &core.SessionRecord{
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		Summary:   rec.Summary,
		IsActive:  rec.IsActive,
	}
	unmarshalJSON(rec.Topics, &s.TopicsDiscussed)
	unmarshalJSON(rec.Tools, &s.ToolsUsed)
	unmarshalJSON(rec.Outcomes, &s.Outcomes)
	unmarshalJSON(rec.Interactions, &s.Interactions)
	return s
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalJSON(data string, v interface{}) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), v)
}
