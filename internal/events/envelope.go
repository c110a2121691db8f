// ABOUTME: Wire envelope and payload schemas for assignment-related events
// ABOUTME: JSON Envelope{Meta, Data} with id/correlation/type/time metadata

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type identifiers carried in Meta.Type and used as routing keys.
const (
	TypeConversationStarted = "conversation.started.v1"
	TypeAssignmentChanged   = "assignment.changed.v1"
)

// Meta carries envelope metadata common to every event on the wire.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	Producer      string    `json:"producer,omitempty"`
}

// Envelope wraps a typed payload with its metadata.
type Envelope struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope around payload, generating ID and Time.
func NewEnvelope(eventType, producer string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling payload: %w", err)
	}
	id := uuid.New().String()
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: id,
			Type:          eventType,
			Time:          time.Now().UTC(),
			Producer:      producer,
		},
		Data: data,
	}, nil
}

// ConversationStartedV1 announces a new inbound conversation that needs
// routing. Consuming it triggers auto-assignment.
type ConversationStartedV1 struct {
	InboxID        string    `json:"inbox_id"`
	ConversationID string    `json:"conversation_id"`
	Channel        string    `json:"channel,omitempty"` // e.g. "email", "chat"
	StartedAt      time.Time `json:"started_at"`
}

// AssignmentChangedV1 announces a committed ownership change.
type AssignmentChangedV1 struct {
	InboxID        string    `json:"inbox_id"`
	ConversationID string    `json:"conversation_id"`
	FromAgentID    *string   `json:"from_agent_id,omitempty"`
	ToAgentID      *string   `json:"to_agent_id,omitempty"`
	Kind           string    `json:"kind"`
	ChangedAt      time.Time `json:"changed_at"`
}
