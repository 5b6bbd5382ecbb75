// Package rpcid defines the identifier used to name an RPC uniquely across
// the transport's lifetime.
package rpcid

import "fmt"

// ID uniquely identifies one RPC: the client that issued it and a
// per-client, monotonically increasing sequence number. Used as a plain
// comparable map key throughout the transport: the full ID keys both the
// client-side session tables and the server-side table.
type ID struct {
	ClientID uint64
	Sequence uint64
}

// New returns the ID for the given client and sequence number.
func New(clientID, sequence uint64) ID {
	return ID{ClientID: clientID, Sequence: sequence}
}

// Less reports whether id sorts strictly before other under the
// lexicographic order (clientID, then sequence). Used only as a stable
// tiebreak in the scheduler's priority comparison.
func (id ID) Less(other ID) bool {
	if id.ClientID != other.ClientID {
		return id.ClientID < other.ClientID
	}
	return id.Sequence < other.Sequence
}

// String renders the ID for logging.
func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.ClientID, id.Sequence)
}
