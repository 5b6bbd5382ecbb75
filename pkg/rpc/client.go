// Package rpc implements the client and server RPC tables described in
// spec.md §4.4: ClientRpc/ServerRpc lifecycle, sequence-number allocation,
// and cancellation/abort semantics. It holds no driver or dispatch state of
// its own — pkg/transport drives packet I/O and calls into these tables.
// Grounded on original_source/src/HomaTransport.h's Session, ClientRpc, and
// ServerRpc classes.
package rpc

import (
	"sync"

	"github.com/strand-protocol/strand-transport/pkg/accumulator"
	"github.com/strand-protocol/strand-transport/pkg/driver"
	"github.com/strand-protocol/strand-transport/pkg/outgoing"
	"github.com/strand-protocol/strand-transport/pkg/rpcid"
	"github.com/strand-protocol/strand-transport/pkg/scheduler"
	"github.com/strand-protocol/strand-transport/pkg/timer"
)

// Notifier is called exactly once per ClientRpc, with either a complete
// response and a nil error, or a nil response and a non-nil *Error.
type Notifier func(response []byte, err error)

// ClientRpc is one outstanding request issued by a Session.
type ClientRpc struct {
	ID     rpcid.ID
	Target driver.Address

	Request  *outgoing.Message
	Response *accumulator.Accumulator
	// ResponseSched is non-nil once the response's total length is known
	// to exceed the unscheduled budget and the scheduler has taken it up.
	ResponseSched *scheduler.Message

	Timer  *timer.Entry
	notify Notifier
}

// Notify invokes the caller's callback, if one was registered, and only
// once: subsequent calls are no-ops.
func (c *ClientRpc) Notify(response []byte, err error) {
	if c.notify == nil {
		return
	}
	n := c.notify
	c.notify = nil
	n(response, err)
}

// Session is one client's view of the transport: a target address and the
// table of RPCs it currently has outstanding. Sequence-number allocation is
// NOT a Session concern: spec.md §3/§9 scope
// nextClientSequenceNumber per-Transport (per-client), not per-destination,
// so the owning Transport allocates the id and passes it in. Grounded on
// HomaTransport.h's Session class.
type Session struct {
	mu       sync.Mutex
	clientID uint64
	target   driver.Address
	rpcs     map[rpcid.ID]*ClientRpc
	closed   bool
}

// NewSession returns a Session bound to clientID (assigned by the owning
// Transport, unique for its lifetime) and target.
func NewSession(clientID uint64, target driver.Address) *Session {
	return &Session{
		clientID: clientID,
		target:   target,
		rpcs:     make(map[rpcid.ID]*ClientRpc),
	}
}

// SendRequest constructs a ClientRpc and its outgoing request message under
// the transport-allocated id, and inserts it into the table. The caller
// (pkg/transport) allocates id from its single per-client sequence counter
// and is responsible for actually transmitting the message's bytes and
// registering it with the scheduler/selector/timer.
func (s *Session) SendRequest(id rpcid.ID, payload []byte, unscheduledBytes uint32, notify Notifier) (*ClientRpc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &Error{Kind: KindCanceled}
	}

	rpc := &ClientRpc{
		ID:      id,
		Target:  s.target,
		Request: outgoing.New(id, payload, s.target, unscheduledBytes),
		notify:  notify,
	}
	s.rpcs[id] = rpc
	return rpc, nil
}

// Lookup returns the ClientRpc for id, if still outstanding.
func (s *Session) Lookup(id rpcid.ID) (*ClientRpc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rpc, ok := s.rpcs[id]
	return rpc, ok
}

// Remove drops id from the table without notifying it; the caller is
// responsible for having already notified or intentionally suppressing
// notification (e.g. it already fired).
func (s *Session) Remove(id rpcid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rpcs, id)
}

// CancelRequest removes id from the table and returns it so the caller can
// emit an ABORT packet and notify the caller with CANCELED. Returns
// ok=false if id was not outstanding.
func (s *Session) CancelRequest(id rpcid.ID) (rpc *ClientRpc, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rpc, ok = s.rpcs[id]
	if ok {
		delete(s.rpcs, id)
	}
	return rpc, ok
}

// Abort marks the session unusable and returns every RPC that was still
// outstanding, so the caller can notify each with CANCELED. No further
// SendRequest calls will succeed.
func (s *Session) Abort() []*ClientRpc {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	out := make([]*ClientRpc, 0, len(s.rpcs))
	for id, rpc := range s.rpcs {
		out = append(out, rpc)
		delete(s.rpcs, id)
	}
	return out
}

// Len reports how many RPCs are currently outstanding.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rpcs)
}

// ClientID returns the session's client identifier.
func (s *Session) ClientID() uint64 { return s.clientID }
