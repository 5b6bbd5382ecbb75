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

// ServerRpc is server-side state for one RPC: the request being reassembled
// (or already handed to the service layer) and, once available, the
// response being sent back. Grounded on HomaTransport.h's ServerRpc class.
type ServerRpc struct {
	ID            rpcid.ID
	ClientAddress driver.Address

	Request      *accumulator.Accumulator
	RequestSched *scheduler.Message

	// Response is nil until the service layer calls Table.SendReply.
	Response *outgoing.Message

	Timer *timer.Entry

	// Dispatched is set once the fully reassembled request has been
	// handed to the dispatch layer, so a duplicate ALL_DATA/DATA arrival
	// for an already-dispatched RPC can be recognized and dropped.
	Dispatched bool
}

// Table is the server's map of in-progress RPCs, keyed by RpcId (the full
// id, since the sender's clientId is part of it and many clients talk to
// one server). Grounded on HomaTransport.h's incomingRpcs.
type Table struct {
	mu   sync.Mutex
	rpcs map[rpcid.ID]*ServerRpc
}

// NewTable returns an empty server RPC table.
func NewTable() *Table {
	return &Table{rpcs: make(map[rpcid.ID]*ServerRpc)}
}

// GetOrCreate returns the ServerRpc for id, constructing one bound to
// clientAddr and a fresh Accumulator of totalLength if this is the first
// packet seen for id. created is true iff a new ServerRpc was constructed.
func (t *Table) GetOrCreate(id rpcid.ID, clientAddr driver.Address, totalLength, zeroCopyThreshold uint32, drv driver.Driver) (rpc *ServerRpc, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rpc, ok := t.rpcs[id]; ok {
		return rpc, false
	}
	rpc = &ServerRpc{
		ID:            id,
		ClientAddress: clientAddr,
		Request:       accumulator.New(drv, totalLength, zeroCopyThreshold),
	}
	t.rpcs[id] = rpc
	return rpc, true
}

// Lookup returns the ServerRpc for id, if present.
func (t *Table) Lookup(id rpcid.ID) (*ServerRpc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rpc, ok := t.rpcs[id]
	return rpc, ok
}

// AttachResponse builds and attaches the outgoing response message for id,
// once the service layer has produced a reply. Returns an error if id is
// not a known RPC. If id already has a response, that ServerRpc is returned
// unchanged with a nil error and payload is ignored.
func (t *Table) AttachResponse(id rpcid.ID, payload []byte, unscheduledBytes uint32) (*ServerRpc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rpc, ok := t.rpcs[id]
	if !ok {
		return nil, &Error{RpcID: id, Kind: KindTransportReset}
	}
	if rpc.Response != nil {
		return rpc, nil
	}
	rpc.Response = outgoing.New(id, payload, rpc.ClientAddress, unscheduledBytes)
	return rpc, nil
}

// Remove deletes id from the table, e.g. once its response is fully
// transmitted or an ABORT arrived for it.
func (t *Table) Remove(id rpcid.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rpc, ok := t.rpcs[id]; ok {
		rpc.Request.Close()
		delete(t.rpcs, id)
	}
}

// Len reports how many RPCs the server currently has in progress.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rpcs)
}

// Range calls fn once for every ServerRpc currently in the table. fn must
// not call back into the Table.
func (t *Table) Range(fn func(*ServerRpc)) {
	t.mu.Lock()
	rpcs := make([]*ServerRpc, 0, len(t.rpcs))
	for _, r := range t.rpcs {
		rpcs = append(rpcs, r)
	}
	t.mu.Unlock()
	for _, r := range rpcs {
		fn(r)
	}
}
