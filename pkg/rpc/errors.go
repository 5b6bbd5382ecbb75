package rpc

import (
	"fmt"

	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

// Kind classifies the ways an RPC can fail without ever getting a normal
// response, per spec.md §4.6/§7.
type Kind int

const (
	// KindTimeout means the peer went silent past timeoutIntervals.
	KindTimeout Kind = iota
	// KindCanceled means the session was aborted or the caller cancelled
	// the request explicitly.
	KindCanceled
	// KindTransportReset means a RESTART arrived for an RpcId our own
	// state considers unknown or inconsistent; retriable by the caller.
	// Table.AttachResponse also returns it for an id the server table does
	// not hold.
	KindTransportReset
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "TIMEOUT"
	case KindCanceled:
		return "CANCELED"
	case KindTransportReset:
		return "TRANSPORT_RESET"
	default:
		return "UNKNOWN"
	}
}

// Error is returned to an RPC caller in place of a response when the
// transport cannot deliver one. Malformed headers, impossible offsets, and
// duplicate arrivals are internal faults per spec.md §7 and are never
// surfaced this way; they are logged and the packet is dropped instead.
type Error struct {
	RpcID rpcid.ID
	Kind  Kind
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.RpcID, e.Kind)
}
