// Package driver defines the packet-driver contract the transport relies on
// for raw datagram I/O. The transport never opens a socket itself; it is
// handed a Driver and only ever sends bounded byte slices to addresses and
// polls for received ones. Two implementations live in this repository:
// pkg/driver/udp (a real UDP socket) and pkg/driver/memdriver (an in-process
// double used by tests to inject seeded, reproducible packet loss).
package driver

// Address identifies a destination the driver can send a datagram to.
// Implementations type-assert to their own concrete address type; the
// transport treats Address as opaque.
type Address interface {
	// String returns the address's canonical string form, matching what
	// ParseAddress would accept to reconstruct it.
	String() string
}

// Received is one datagram pulled off the driver's receive queue.
type Received struct {
	// Source is the address the datagram arrived from.
	Source Address
	// Payload is the datagram body, owned by the caller once returned from
	// Poll: the driver will not reuse or overwrite this slice. This is the
	// Go analogue of "stealing" a hardware receive buffer — ownership
	// transfers to whichever component last holds the slice, and it is
	// simply garbage collected instead of being explicitly released back
	// to a hardware pool. Neither implementation in this repository keeps a
	// bounded buffer pool, so both make Release below a no-op.
	Payload []byte
}

// Driver is the external packet-I/O collaborator described in spec §6. All
// methods are called only from the single dispatch thread; Driver
// implementations need no internal locking against the transport (they may
// still need locking against their own OS-level I/O, e.g. a UDP socket
// read goroutine).
type Driver interface {
	// Send transmits payload to address at the given priority class (0
	// lowest, up to MaxPriority()).
	Send(address Address, priority uint8, payload []byte) error

	// Poll returns up to maxPackets datagrams that have arrived since the
	// last call. It never blocks: with nothing to receive it returns an
	// empty slice immediately.
	Poll(maxPackets int) []Received

	// Release returns a receive buffer obtained from Poll to the driver's
	// pool, if it has one. Implementations without a bounded pool (e.g.
	// pkg/driver/udp) may make this a no-op.
	Release(r Received)

	// MTU returns the largest payload, in bytes, Send can transmit in one
	// datagram.
	MTU() int

	// MaxPriority returns the highest priority class accepted by Send (0
	// is always the lowest and always valid).
	MaxPriority() uint8

	// ParseAddress parses a locator string into an Address usable with
	// Send.
	ParseAddress(locator string) (Address, error)

	// LocalAddress returns the address peers should use to reach this
	// driver, if it is listening.
	LocalAddress() Address

	// Close releases the driver's resources. Send after Close returns an
	// error.
	Close() error
}
