// ABOUTME: Caller-facing error taxonomy for routing operations
// ABOUTME: Validation and permission sentinels; store conflicts pass through unchanged

package routing

import "errors"

// ErrValidation indicates malformed input (unknown availability value, a
// conversation that doesn't belong to the named inbox). Not retryable.
var ErrValidation = errors.New("validation failed")

// ErrNotMember indicates the agent is not a current member of the inbox.
// Enforced at assignment time; who may call these operations at all is the
// API layer's concern.
var ErrNotMember = errors.New("agent is not a member of the inbox")

// Conflicts and missing entities are reported with the store's sentinels
// (store.ErrConflict, store.ErrNotFound) so callers match with errors.Is
// regardless of which layer detected them.
