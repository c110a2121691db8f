// ABOUTME: Store interface and data types for shiftdesk-router persistence
// ABOUTME: Defines Agent, Inbox, Conversation structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update lost the race against a
// concurrent writer (the conversation is no longer in the expected state)
var ErrConflict = errors.New("assignment conflict")

// ErrRotationConflict is returned when the inbox rotation cursor moved between
// read and commit. Callers re-read the cursor and retry; this error never
// reaches API consumers.
var ErrRotationConflict = errors.New("rotation cursor moved")

// ErrDuplicate is returned when creating an entity that already exists
var ErrDuplicate = errors.New("already exists")

// Availability is an agent's availability state. Only online agents enter the
// assignment rotation.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityBusy    Availability = "busy"
	AvailabilityAway    Availability = "away"
	AvailabilityOffline Availability = "offline"
)

// Valid reports whether a is a known availability state.
func (a Availability) Valid() bool {
	switch a {
	case AvailabilityOnline, AvailabilityBusy, AvailabilityAway, AvailabilityOffline:
		return true
	}
	return false
}

// Agent represents a human operator eligible to own conversations
type Agent struct {
	ID           string
	DisplayName  string
	Availability Availability
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Inbox represents a shared work queue of conversations.
// RotationCursor remembers the last agent that received an auto-assignment;
// it is written only inside the same transaction that commits an assignment.
type Inbox struct {
	ID                       string
	Name                     string
	AutoAssignmentEnabled    bool
	MaxConversationsPerAgent *int
	RotationCursor           *string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Member is an inbox membership row joined with the agent's availability
type Member struct {
	InboxID      string
	AgentID      string
	Availability Availability
	CreatedAt    time.Time
}

// ConversationStatus constants for conversation states
const (
	ConversationOpen     = "open"
	ConversationResolved = "resolved"
)

// Conversation represents a single support conversation within an inbox.
// AssignedAgentID is nil while unassigned; assignment, transfer and release
// mutate it exclusively through conditional updates.
type Conversation struct {
	ID              string
	InboxID         string
	AssignedAgentID *string
	Status          string // "open" or "resolved"
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Assigned reports whether the conversation currently has an owner.
func (c *Conversation) Assigned() bool {
	return c.AssignedAgentID != nil
}

// Store defines the interface for agent, inbox and conversation persistence
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	SetAgentAvailability(ctx context.Context, id string, availability Availability) error

	// Inboxes
	CreateInbox(ctx context.Context, inbox *Inbox) error
	GetInbox(ctx context.Context, id string) (*Inbox, error)
	SetAutoAssignmentEnabled(ctx context.Context, id string, enabled bool) error
	SetAgentCapacity(ctx context.Context, id string, limit *int) error

	// Membership
	AddMember(ctx context.Context, inboxID, agentID string) error
	RemoveMember(ctx context.Context, inboxID, agentID string) error
	ListMembers(ctx context.Context, inboxID string) ([]*Member, error)
	IsMember(ctx context.Context, inboxID, agentID string) (bool, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsByInbox(ctx context.Context, inboxID string, limit int) ([]*Conversation, error)
	CountOpenConversations(ctx context.Context, agentID string) (int, error)

	// Conditional assignment mutations. Each runs in a single transaction
	// that also appends the matching assignment event.
	PickupConversation(ctx context.Context, conversationID, agentID string) (*Conversation, error)
	TransferConversation(ctx context.Context, conversationID, fromAgentID, toAgentID string) (*Conversation, error)
	ReleaseConversation(ctx context.Context, conversationID, agentID string) (*Conversation, error)
	AutoAssignConversation(ctx context.Context, inboxID, conversationID, agentID string, prevCursor *string) (*Conversation, error)

	// Assignment events
	AppendAssignmentEvent(ctx context.Context, event *AssignmentEvent) error
	ListAssignmentEvents(ctx context.Context, conversationID string, limit int) ([]*AssignmentEvent, error)

	// Close releases any resources held by the store
	Close() error
}
