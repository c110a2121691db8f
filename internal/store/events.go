// ABOUTME: Append-only assignment event ledger for auditing ownership changes
// ABOUTME: Provides AssignmentEvent struct with append and query operations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind categorizes an assignment event
type EventKind string

const (
	EventAutoAssign EventKind = "auto_assign"
	EventSkipped    EventKind = "skipped"
	EventPickup     EventKind = "pickup"
	EventTransfer   EventKind = "transfer"
	EventRelease    EventKind = "release"
)

// AssignmentEvent records a single ownership change (or an explicitly skipped
// auto-assignment) for a conversation. Events are written exactly once, in
// the same transaction as the change they describe, and never mutated.
type AssignmentEvent struct {
	ID             string
	ConversationID string
	FromAgentID    *string
	ToAgentID      *string
	Kind           EventKind
	Timestamp      time.Time
}

// appendAssignmentEventTx inserts an event inside an existing transaction.
// Generates ID and Timestamp if not set.
func appendAssignmentEventTx(ctx context.Context, tx *sql.Tx, e *AssignmentEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO assignment_events (event_id, conversation_id, from_agent_id, to_agent_id, kind, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, query,
		e.ID,
		e.ConversationID,
		e.FromAgentID,
		e.ToAgentID,
		string(e.Kind),
		rfc3339(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting assignment event: %w", err)
	}
	return nil
}

// AppendAssignmentEvent appends an event outside of an assignment
// transaction. Used for events that record a decision without a state change,
// like skipped auto-assignments on an empty eligible pool.
func (s *SQLiteStore) AppendAssignmentEvent(ctx context.Context, e *AssignmentEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendAssignmentEventTx(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing assignment event: %w", err)
	}

	s.logger.Debug("appended assignment event",
		"event_id", e.ID,
		"conversation_id", e.ConversationID,
		"kind", e.Kind,
	)
	return nil
}

// ListAssignmentEvents retrieves events for a conversation in chronological
// order. If limit is 0 or negative, a default of 100 is used.
func (s *SQLiteStore) ListAssignmentEvents(ctx context.Context, conversationID string, limit int) ([]*AssignmentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT event_id, conversation_id, from_agent_id, to_agent_id, kind, ts
		FROM assignment_events
		WHERE conversation_id = ?
		ORDER BY ts ASC, event_id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying assignment events: %w", err)
	}
	defer rows.Close()

	var events []*AssignmentEvent
	for rows.Next() {
		var e AssignmentEvent
		var kind, tsStr string

		if err := rows.Scan(&e.ID, &e.ConversationID, &e.FromAgentID, &e.ToAgentID, &kind, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		e.Kind = EventKind(kind)
		e.Timestamp, err = time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing ts: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}
