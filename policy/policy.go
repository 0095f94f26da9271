// Package policy decides what happens when a new flow or request wants a
// network resource an operator has chosen to gate: whether to admit it
// immediately, queue it for later, or reject it outright. The network
// core itself (sim) never makes this decision — it only exposes
// SimTime-stamped events for a policy to react to.
package policy

import "github.com/krfmo/gridsim/sim"

// Request is what a policy decides admission for: a prospective transfer
// from SrcID to DstID of SizeBytes, classified into ServiceClass.
type Request struct {
	ID           int
	SrcID        int
	DstID        int
	SizeBytes    int
	ServiceClass int
	ArrivalTime  sim.SimTime
}

// Decision is an AllocationPolicy's verdict on a Request.
type Decision int

const (
	// Admit means the request should be submitted to the network now.
	Admit Decision = iota
	// Queue means the request should wait; the policy will be asked again
	// (via Reconsider) when capacity may have changed.
	Queue
	// Reject means the request should never be admitted.
	Reject
)

// AllocationPolicy decides whether, and when, a Request is allowed onto
// the network. Implementations must be safe to call only from the single
// goroutine driving the entity that owns them — the same single-threaded
// discipline every sim entity already follows.
type AllocationPolicy interface {
	// Evaluate is called once when a Request first arrives.
	Evaluate(req Request) Decision
	// Reconsider is called for every previously Queue'd request whenever
	// the caller believes capacity may have freed up (e.g. after a
	// SCHEDULER_DEQUE or FLOW_UPDATE event). It returns the requests, in
	// the order they should now be admitted, that have moved from Queue
	// to Admit.
	Reconsider() []Request
}
