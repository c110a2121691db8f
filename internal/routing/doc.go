// Package routing decides which agent owns a conversation at any point in
// time and guarantees that decision is consistent under concurrency.
//
// # Components
//
//   - Registry: agent availability and inbox membership (pure state access)
//   - CapacityFilter: online members under the per-agent conversation limit
//   - Scheduler: round-robin selection plus pickup/transfer/release
//   - TransferCoordinator: handoff orchestration with offline-target warnings
//   - Broadcaster: in-memory fan-out of committed assignment events
//
// # Concurrency Model
//
// The scheduler holds no mutable state. The per-inbox rotation cursor and
// per-conversation owner live in the store and are written only through
// conditional updates, so concurrent operations resolve at the database:
//
//   - Auto-assigns on the same inbox serialize through a CAS-retry loop on
//     the rotation cursor (losers re-read and retry, bounded).
//   - Pickup/transfer/release on the same conversation admit exactly one
//     winner; losers get store.ErrConflict immediately, no blocking.
//   - Operations on different inboxes never contend.
//
// This also makes the engine safe across horizontally scaled replicas that
// share a database — there is nothing to coordinate in process memory.
//
// # Fairness
//
// Auto-assignment is strict round-robin over the eligible set ordered by
// agent ID: the next recipient is the agent strictly after the rotation
// cursor, wrapping. Across N assignments with K eligible agents the maximum
// count difference between any two agents is 1.
//
// # Errors
//
//   - ErrValidation: malformed input, fatal to the request
//   - ErrNotMember: agent is not a member of the inbox
//   - store.ErrConflict: lost a CAS race; the caller decides whether to
//     refresh and retry or surface "already taken"
//   - store.ErrNotFound: unknown agent/inbox/conversation
//
// Conflicts are never silently converted into fallback assignments.
//
// Role and permission checks (who may transfer, who may configure limits)
// are deliberately outside this package; the API layer enforces them before
// calling in.
package routing
