// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides agent/inbox/conversation persistence with CAS assignment updates

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Concurrent writers wait for the lock instead of failing with SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			availability TEXT NOT NULL DEFAULT 'offline',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			CHECK (availability IN ('online', 'busy', 'away', 'offline'))
		);

		CREATE TABLE IF NOT EXISTS inboxes (
			id                          TEXT PRIMARY KEY,
			name                        TEXT NOT NULL,
			auto_assignment_enabled     INTEGER NOT NULL DEFAULT 1,
			max_conversations_per_agent INTEGER,
			rotation_cursor             TEXT REFERENCES agents(id),
			created_at                  TEXT NOT NULL,
			updated_at                  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS inbox_members (
			inbox_id   TEXT NOT NULL REFERENCES inboxes(id),
			agent_id   TEXT NOT NULL REFERENCES agents(id),
			created_at TEXT NOT NULL,

			PRIMARY KEY (inbox_id, agent_id)
		);

		CREATE INDEX IF NOT EXISTS idx_inbox_members_agent ON inbox_members(agent_id);

		CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT PRIMARY KEY,
			inbox_id          TEXT NOT NULL REFERENCES inboxes(id),
			assigned_agent_id TEXT REFERENCES agents(id),
			status            TEXT NOT NULL DEFAULT 'open',
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,

			CHECK (status IN ('open', 'resolved'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_inbox ON conversations(inbox_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_assignee ON conversations(assigned_agent_id);

		CREATE TABLE IF NOT EXISTS assignment_events (
			event_id        TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			from_agent_id   TEXT,
			to_agent_id     TEXT,
			kind            TEXT NOT NULL,
			ts              TEXT NOT NULL,

			CHECK (kind IN ('auto_assign', 'skipped', 'pickup', 'transfer', 'release'))
		);

		CREATE INDEX IF NOT EXISTS idx_assignment_events_conversation
			ON assignment_events(conversation_id, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// CreateAgent creates a new agent.
// Returns ErrDuplicate if an agent with the same ID already exists.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.Availability == "" {
		agent.Availability = AvailabilityOffline
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	if agent.UpdatedAt.IsZero() {
		agent.UpdatedAt = now
	}

	query := `
		INSERT INTO agents (id, display_name, availability, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.DisplayName,
		string(agent.Availability),
		rfc3339(agent.CreatedAt),
		rfc3339(agent.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "availability", agent.Availability)
	return nil
}

// GetAgent retrieves an agent by ID.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, display_name, availability, created_at, updated_at
		FROM agents
		WHERE id = ?
	`
	return scanAgent(s.db.QueryRowContext(ctx, query, id))
}

func scanAgent(scanner interface{ Scan(dest ...any) error }) (*Agent, error) {
	var agent Agent
	var availability, createdAtStr, updatedAtStr string

	err := scanner.Scan(
		&agent.ID,
		&agent.DisplayName,
		&availability,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}

	agent.Availability = Availability(availability)
	agent.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	agent.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &agent, nil
}

// ListAgents returns all agents ordered by ID.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	query := `
		SELECT id, display_name, availability, created_at, updated_at
		FROM agents
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// SetAgentAvailability updates an agent's availability state. It has no side
// effect on the agent's existing assignments.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) SetAgentAvailability(ctx context.Context, id string, availability Availability) error {
	query := `
		UPDATE agents
		SET availability = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(availability),
		rfc3339(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating availability: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("set availability", "agent_id", id, "availability", availability)
	return nil
}

// CreateInbox creates a new inbox.
// Returns ErrDuplicate if an inbox with the same ID already exists.
func (s *SQLiteStore) CreateInbox(ctx context.Context, inbox *Inbox) error {
	now := time.Now().UTC()
	if inbox.CreatedAt.IsZero() {
		inbox.CreatedAt = now
	}
	if inbox.UpdatedAt.IsZero() {
		inbox.UpdatedAt = now
	}

	query := `
		INSERT INTO inboxes (id, name, auto_assignment_enabled, max_conversations_per_agent, rotation_cursor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		inbox.ID,
		inbox.Name,
		inbox.AutoAssignmentEnabled,
		inbox.MaxConversationsPerAgent,
		inbox.RotationCursor,
		rfc3339(inbox.CreatedAt),
		rfc3339(inbox.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting inbox: %w", err)
	}

	s.logger.Debug("created inbox", "id", inbox.ID, "name", inbox.Name)
	return nil
}

// GetInbox retrieves an inbox by ID.
// Returns ErrNotFound if the inbox doesn't exist.
func (s *SQLiteStore) GetInbox(ctx context.Context, id string) (*Inbox, error) {
	query := `
		SELECT id, name, auto_assignment_enabled, max_conversations_per_agent, rotation_cursor, created_at, updated_at
		FROM inboxes
		WHERE id = ?
	`

	var inbox Inbox
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inbox.ID,
		&inbox.Name,
		&inbox.AutoAssignmentEnabled,
		&inbox.MaxConversationsPerAgent,
		&inbox.RotationCursor,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying inbox: %w", err)
	}

	inbox.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	inbox.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &inbox, nil
}

// SetAutoAssignmentEnabled toggles auto-assignment for an inbox.
// Returns ErrNotFound if the inbox doesn't exist.
func (s *SQLiteStore) SetAutoAssignmentEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE inboxes SET auto_assignment_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, rfc3339(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating auto_assignment_enabled: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAgentCapacity sets the per-agent conversation limit for an inbox.
// A nil limit removes the cap.
// Returns ErrNotFound if the inbox doesn't exist.
func (s *SQLiteStore) SetAgentCapacity(ctx context.Context, id string, limit *int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE inboxes SET max_conversations_per_agent = ?, updated_at = ? WHERE id = ?`,
		limit, rfc3339(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating max_conversations_per_agent: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMember adds an agent to an inbox.
// Returns ErrDuplicate if the agent is already a member.
func (s *SQLiteStore) AddMember(ctx context.Context, inboxID, agentID string) error {
	query := `
		INSERT INTO inbox_members (inbox_id, agent_id, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, inboxID, agentID, rfc3339(time.Now()))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting member: %w", err)
	}

	s.logger.Debug("added member", "inbox_id", inboxID, "agent_id", agentID)
	return nil
}

// RemoveMember removes an agent from an inbox. It does not touch the agent's
// current assignments; membership is validated at assignment time only.
// Returns ErrNotFound if the membership doesn't exist.
func (s *SQLiteStore) RemoveMember(ctx context.Context, inboxID, agentID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM inbox_members WHERE inbox_id = ? AND agent_id = ?`,
		inboxID, agentID,
	)
	if err != nil {
		return fmt.Errorf("deleting member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("removed member", "inbox_id", inboxID, "agent_id", agentID)
	return nil
}

// ListMembers returns inbox members joined with their availability, ordered
// ascending by agent ID so rotation order is deterministic.
func (s *SQLiteStore) ListMembers(ctx context.Context, inboxID string) ([]*Member, error) {
	query := `
		SELECT m.inbox_id, m.agent_id, a.availability, m.created_at
		FROM inbox_members m
		JOIN agents a ON a.id = m.agent_id
		WHERE m.inbox_id = ?
		ORDER BY m.agent_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, inboxID)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		var availability, createdAtStr string

		if err := rows.Scan(&m.InboxID, &m.AgentID, &availability, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}

		m.Availability = Availability(availability)
		m.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		members = append(members, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}
	return members, nil
}

// IsMember reports whether the agent is a current member of the inbox.
func (s *SQLiteStore) IsMember(ctx context.Context, inboxID, agentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM inbox_members WHERE inbox_id = ? AND agent_id = ?`,
		inboxID, agentID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying membership: %w", err)
	}
	return true, nil
}

// CreateConversation creates a new conversation. New conversations start
// unassigned and open unless the caller says otherwise.
// Returns ErrDuplicate if the ID is already taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.Status == "" {
		conv.Status = ConversationOpen
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}

	query := `
		INSERT INTO conversations (id, inbox_id, assigned_agent_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.InboxID,
		conv.AssignedAgentID,
		conv.Status,
		rfc3339(conv.CreatedAt),
		rfc3339(conv.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "inbox_id", conv.InboxID)
	return nil
}

const conversationColumns = `id, inbox_id, assigned_agent_id, status, created_at, updated_at`

func scanConversation(scanner interface{ Scan(dest ...any) error }) (*Conversation, error) {
	var conv Conversation
	var createdAtStr, updatedAtStr string

	err := scanner.Scan(
		&conv.ID,
		&conv.InboxID,
		&conv.AssignedAgentID,
		&conv.Status,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// ListConversationsByInbox retrieves conversations for an inbox ordered by
// most recent activity. If limit is 0 or negative, a default of 100 is used.
func (s *SQLiteStore) ListConversationsByInbox(ctx context.Context, inboxID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE inbox_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, inboxID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// CountOpenConversations returns the number of open conversations currently
// assigned to the agent, across all inboxes.
func (s *SQLiteStore) CountOpenConversations(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE assigned_agent_id = ? AND status = 'open'`,
		agentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return count, nil
}

// PickupConversation assigns the conversation to the agent only if it is
// currently unassigned. The conditional update and the pickup event commit in
// one transaction; if another writer won the race, ErrConflict is returned
// and nothing is written.
func (s *SQLiteStore) PickupConversation(ctx context.Context, conversationID, agentID string) (*Conversation, error) {
	return s.assignTx(ctx, conversationID, func(tx *sql.Tx) (int64, error) {
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET assigned_agent_id = ?, updated_at = ?
			WHERE id = ? AND assigned_agent_id IS NULL
		`, agentID, rfc3339(time.Now()), conversationID)
		if err != nil {
			return 0, fmt.Errorf("picking up conversation: %w", err)
		}
		return result.RowsAffected()
	}, &AssignmentEvent{
		ConversationID: conversationID,
		ToAgentID:      &agentID,
		Kind:           EventPickup,
	})
}

// TransferConversation reassigns the conversation from one agent to another.
// The update succeeds only if the current assignee is exactly fromAgentID;
// otherwise ErrConflict is returned.
func (s *SQLiteStore) TransferConversation(ctx context.Context, conversationID, fromAgentID, toAgentID string) (*Conversation, error) {
	return s.assignTx(ctx, conversationID, func(tx *sql.Tx) (int64, error) {
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET assigned_agent_id = ?, updated_at = ?
			WHERE id = ? AND assigned_agent_id = ?
		`, toAgentID, rfc3339(time.Now()), conversationID, fromAgentID)
		if err != nil {
			return 0, fmt.Errorf("transferring conversation: %w", err)
		}
		return result.RowsAffected()
	}, &AssignmentEvent{
		ConversationID: conversationID,
		FromAgentID:    &fromAgentID,
		ToAgentID:      &toAgentID,
		Kind:           EventTransfer,
	})
}

// ReleaseConversation unassigns the conversation only if the current assignee
// is exactly agentID; any other current owner (including none) returns
// ErrConflict. The idempotent already-released case is resolved by the
// scheduler, which re-reads the conversation on conflict.
func (s *SQLiteStore) ReleaseConversation(ctx context.Context, conversationID, agentID string) (*Conversation, error) {
	return s.assignTx(ctx, conversationID, func(tx *sql.Tx) (int64, error) {
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET assigned_agent_id = NULL, updated_at = ?
			WHERE id = ? AND assigned_agent_id = ?
		`, rfc3339(time.Now()), conversationID, agentID)
		if err != nil {
			return 0, fmt.Errorf("releasing conversation: %w", err)
		}
		return result.RowsAffected()
	}, &AssignmentEvent{
		ConversationID: conversationID,
		FromAgentID:    &agentID,
		Kind:           EventRelease,
	})
}

// assignTx runs a conditional assignment update and its event append in a
// single transaction. A zero affected-row count means the CAS lost:
// ErrNotFound if the conversation doesn't exist, ErrConflict otherwise.
func (s *SQLiteStore) assignTx(ctx context.Context, conversationID string, update func(*sql.Tx) (int64, error), event *AssignmentEvent) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rowsAffected, err := update(tx)
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&one)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("checking conversation: %w", err)
		}
		return nil, ErrConflict
	}

	if err := appendAssignmentEventTx(ctx, tx, event); err != nil {
		return nil, err
	}

	conv, err := scanConversation(tx.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, conversationID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment: %w", err)
	}

	s.logger.Debug("assignment committed",
		"conversation_id", conversationID,
		"kind", event.Kind,
		"event_id", event.ID,
	)
	return conv, nil
}

// AutoAssignConversation commits a scheduler decision: it assigns the
// conversation (CAS on NULL owner), advances the inbox rotation cursor (CAS
// on the cursor value the scheduler read), and appends the auto_assign event.
// All three writes commit together or not at all.
//
// A conversation CAS loss returns ErrConflict (someone picked it up). A
// cursor CAS loss returns ErrRotationConflict so the scheduler can re-read
// the rotation state and retry.
func (s *SQLiteStore) AutoAssignConversation(ctx context.Context, inboxID, conversationID, agentID string, prevCursor *string) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := rfc3339(time.Now())

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET assigned_agent_id = ?, updated_at = ?
		WHERE id = ? AND inbox_id = ? AND assigned_agent_id IS NULL
	`, agentID, now, conversationID, inboxID)
	if err != nil {
		return nil, fmt.Errorf("assigning conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM conversations WHERE id = ? AND inbox_id = ?`,
			conversationID, inboxID).Scan(&one)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("checking conversation: %w", err)
		}
		return nil, ErrConflict
	}

	// The cursor CAS uses IS so an unset cursor matches a NULL expectation.
	result, err = tx.ExecContext(ctx, `
		UPDATE inboxes
		SET rotation_cursor = ?, updated_at = ?
		WHERE id = ? AND rotation_cursor IS ?
	`, agentID, now, inboxID, prevCursor)
	if err != nil {
		return nil, fmt.Errorf("advancing rotation cursor: %w", err)
	}
	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrRotationConflict
	}

	event := &AssignmentEvent{
		ConversationID: conversationID,
		ToAgentID:      &agentID,
		Kind:           EventAutoAssign,
	}
	if err := appendAssignmentEventTx(ctx, tx, event); err != nil {
		return nil, err
	}

	conv, err := scanConversation(tx.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, conversationID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing auto-assignment: %w", err)
	}

	s.logger.Debug("auto-assignment committed",
		"conversation_id", conversationID,
		"inbox_id", inboxID,
		"agent_id", agentID,
	)
	return conv, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
