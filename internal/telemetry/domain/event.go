// Package domain defines the telemetry event shape shared by the HTTP server
// (producer side) and the event worker (consumer side).
package domain

import (
	"encoding/json"
	"time"
)

// Event is one telemetry record. Serialized as JSON on the wire (Kafka message
// value); the worker parses only the fields it needs for Loki labels.
type Event struct {
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
