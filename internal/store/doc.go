// Package store provides persistent storage for shiftdesk-router using SQLite.
//
// # Architecture
//
// All mutable routing state (conversation ownership, inbox rotation cursors)
// lives in the database and is mutated exclusively through conditional
// updates checked by affected-row counts. There are no in-process locks
// around assignment state, which keeps the engine safe across multiple
// replicas sharing one database.
//
// # Data Models
//
//   - Agent: A human operator with an availability state
//   - Inbox: A shared work queue with auto-assignment config and a rotation cursor
//   - Member: An inbox membership row joined with agent availability
//   - Conversation: A support conversation, optionally owned by one agent
//   - AssignmentEvent: Immutable audit record of every ownership change
//
// # Conditional Mutations
//
// PickupConversation, TransferConversation, ReleaseConversation and
// AutoAssignConversation each run a compare-and-swap UPDATE plus the matching
// assignment event insert in a single transaction. A lost race surfaces as
// ErrConflict (or ErrRotationConflict for the cursor, which callers retry).
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") or a t.TempDir() path for tests.
package store
