package domain

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	EventTypeAuthzDecision = "authz_decision"
	EventTypeHTTPRequest   = "http_request"
)

// Event is an org-scoped telemetry event. It is the Kafka message value and the Loki log line.
type Event struct {
	OrgID     string          `json:"org_id"`
	UserID    string          `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent returns an event stamped with the current UTC time. Metadata that fails to encode is dropped.
func NewEvent(orgID, userID, sessionID, eventType, source string, metadata any) *Event {
	e := &Event{
		OrgID:     orgID,
		UserID:    userID,
		SessionID: sessionID,
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			e.Metadata = b
		}
	}
	return e
}
