// Package outgoing implements the per-direction state for one transmitted
// message (spec.md §4.3's OutgoingMessage) and the SRPT send selector that
// picks which outgoing message gets the next packet.
package outgoing

import (
	"time"

	"github.com/strand-protocol/strand-transport/pkg/driver"
	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

// Message is the unified per-direction state for one message in flight,
// whether it is a ClientRpc's request or a ServerRpc's response.
// Grounded on original_source/src/HomaTransport.h's OutgoingMessage.
//
// Invariant: TransmitOffset <= TransmitLimit <= TotalLength.
type Message struct {
	RpcID     rpcid.ID
	Buffer    []byte
	Recipient driver.Address

	// TransmitOffset is the next byte to send; all preceding bytes have
	// already been sent.
	TransmitOffset uint32
	// TransmitLimit is the largest offset permitted by grants received so
	// far; initially equal to UnscheduledBytes.
	TransmitLimit uint32
	// TransmitPriority is the priority class to use for bytes below
	// TransmitLimit that are still within the unscheduled range; bytes
	// beyond the unscheduled range use SchedPriority instead.
	TransmitPriority uint8
	// UnscheduledBytes is the negotiated round-trip-byte budget the sender
	// may transmit unilaterally, without a grant.
	UnscheduledBytes uint32
	// SchedPriority is the priority most recently carried by a GRANT for
	// this message, used for bytes beyond UnscheduledBytes.
	SchedPriority uint8

	// FromClient is true iff this message is a client's request (travels
	// client to server); false for a server's response.
	FromClient bool

	// OnDone, if set, is invoked once when TransmitOffset reaches
	// TotalLength, so the owning RPC table can retire the RPC.
	OnDone func()

	LastTransmitTime time.Time
	// TopChoice is true iff this message is currently held in the
	// selector's top-K list.
	TopChoice bool

	// topIndex is the selector's private bookkeeping of this message's
	// position in the top-K list; -1 when not present.
	topIndex int
}

// New returns a Message for buffer, to be sent to recipient, with the
// initial transmit limit set to unscheduledBytes (spec.md §3).
func New(id rpcid.ID, buffer []byte, recipient driver.Address, unscheduledBytes uint32) *Message {
	limit := unscheduledBytes
	if total := uint32(len(buffer)); limit > total {
		limit = total
	}
	return &Message{
		RpcID:            id,
		Buffer:           buffer,
		Recipient:        recipient,
		TransmitLimit:    limit,
		UnscheduledBytes: unscheduledBytes,
		topIndex:         -1,
	}
}

// TotalLength is the total number of bytes in the message.
func (m *Message) TotalLength() uint32 { return uint32(len(m.Buffer)) }

// BytesRemaining is the SRPT ranking key: how many bytes are left to
// transmit in total (not just up to the current grant).
func (m *Message) BytesRemaining() uint32 { return m.TotalLength() - m.TransmitOffset }

// Transmittable reports whether this message currently has bytes it is
// permitted to send.
func (m *Message) Transmittable() bool { return m.TransmitOffset < m.TransmitLimit }

// Done reports whether every byte of the message has been transmitted.
func (m *Message) Done() bool { return m.TransmitOffset >= m.TotalLength() }

// ExtendLimit raises TransmitLimit to offset if offset is larger (grants
// are monotonically non-decreasing, spec.md P4).
func (m *Message) ExtendLimit(offset uint32) {
	if offset > m.TransmitLimit {
		m.TransmitLimit = offset
	}
}
