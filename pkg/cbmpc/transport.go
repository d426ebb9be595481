package cbmpc

import "context"

// RoleID identifies a party within a job. Values start at 0 and increase
// monotonically for additional parties.
type RoleID uint32

// Role enumerates the fixed two-party positions of a Job2P.
type Role uint8

const (
	RoleP1 Role = iota
	RoleP2
)

func (r Role) roleID() RoleID { return RoleID(r) }

func (r Role) valid() bool { return r == RoleP1 || r == RoleP2 }

func (r Role) peer() RoleID {
	if r == RoleP1 {
		return RoleID(RoleP2)
	}
	return RoleID(RoleP1)
}

func (r Role) String() string {
	switch r {
	case RoleP1:
		return "p1"
	case RoleP2:
		return "p2"
	}
	return "invalid"
}

// Transport is the messaging contract the engine drives through the
// trampolines.
//
// Concurrency: implementations MUST be safe for concurrent use. The engine may
// call Send and Receive for different peers from different goroutines or OS
// threads at the same time.
//
// Ordering: messages between one ordered pair of parties are delivered in the
// order they were sent.
//
// Cancellation: ctx is the context the job was constructed with. Engine calls
// carry no context of their own, so per-receive timeouts belong here.
//
// ReceiveAll returns exactly one message per requested sender, aligned to the
// order of from. A short result or an error fails the whole call and nothing
// received so far is delivered to the engine.
type Transport interface {
	Send(ctx context.Context, to RoleID, msg []byte) error
	Receive(ctx context.Context, from RoleID) ([]byte, error)
	ReceiveAll(ctx context.Context, from []RoleID) ([][]byte, error)
}
