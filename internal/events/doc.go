// Package events is the AMQP transport around the routing engine.
//
// Inbound: conversation.started.v1 events are consumed from a durable queue
// bound to a topic exchange and dispatched into the scheduler's AutoAssign.
// Handler errors split two ways — poison (undecodable or unroutable, acked
// and dropped) and transient (nacked for redelivery). Redelivery is safe:
// assignment commits are CAS-guarded, so a replay cannot double-assign.
//
// Outbound: committed ownership changes are published as
// assignment.changed.v1 under per-inbox routing keys
// (assignment.changed.<inbox_id>).
//
// The routing core never imports this package; the Dispatcher plugs into it
// through the routing.Notifier interface.
package events
