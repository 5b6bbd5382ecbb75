// Package accumulator reassembles a multi-packet message from out-of-order
// fragments. It implements spec.md §4.2: a contiguous-prefix buffer plus a
// map of fragments received ahead of that prefix, grounded on
// original_source/src/HomaTransport.h's MessageAccumulator.
package accumulator

import (
	"github.com/strand-protocol/strand-transport/pkg/driver"
	"github.com/strand-protocol/strand-transport/pkg/wire"
)

// fragment is a fragment received ahead of the contiguous prefix. copied is
// false while it still holds the driver's stolen receive buffer (zero-copy);
// once the accumulator's zero-copy threshold is exceeded, later fragments
// are copied into owned memory and their driver buffer released immediately
// instead, so a message stuck behind one slow/missing packet cannot pin an
// unbounded number of the driver's receive buffers.
type fragment struct {
	received driver.Received // valid only when !copied; held so it can be Release()d
	copied   bool
	data     []byte // this fragment's message bytes (header stripped)
	offset   uint32
}

// Accumulator reassembles one message's bytes as fragments arrive,
// possibly out of order. The zero value is not usable; construct with New.
//
// Invariant: len(buf) always equals the contiguous prefix length, and no
// entry in fragments starts at or before len(buf).
type Accumulator struct {
	drv           driver.Driver
	buf           []byte
	totalLength   uint32
	fragments     map[uint32]fragment
	threshold     uint32 // spec.md §5's messageZeroCopyThreshold
	zeroCopyBytes uint32 // bytes currently held via stolen driver buffers
}

// New returns an Accumulator for a message of totalLength bytes, arriving
// via drv (used only to Release stolen buffers on drain/teardown).
// threshold bounds how many bytes of out-of-order fragments may be held as
// unreleased driver receive buffers before AddPacket switches to copying
// fragments and releasing the driver buffer immediately; zero means
// unbounded (never copy early).
func New(drv driver.Driver, totalLength, threshold uint32) *Accumulator {
	return &Accumulator{
		drv:         drv,
		buf:         make([]byte, 0, totalLength),
		totalLength: totalLength,
		fragments:   make(map[uint32]fragment),
		threshold:   threshold,
	}
}

// Len returns the length of the contiguous prefix received so far.
func (a *Accumulator) Len() uint32 { return uint32(len(a.buf)) }

// Complete reports whether the entire message has been received.
func (a *Accumulator) Complete() bool { return uint32(len(a.buf)) >= a.totalLength }

// Bytes returns the contiguous prefix received so far. The returned slice
// is only safe to read until the next AddPacket call.
func (a *Accumulator) Bytes() []byte { return a.buf }

// AddPacket incorporates one DATA fragment. r.Payload must contain exactly
// the header.length payload bytes for this fragment (the caller has
// already stripped the DataHeader). Returns true iff the message is now
// completely received. Duplicate fragments and fragments that fall
// entirely inside the already-contiguous prefix are dropped silently.
func (a *Accumulator) AddPacket(header wire.DataHeader, r driver.Received, payload []byte) bool {
	offset := header.Offset

	prefixLen := uint32(len(a.buf))
	switch {
	case offset == prefixLen:
		a.buf = append(a.buf, payload...)
		a.drv.Release(r)
		a.drainContiguous()
	case offset > prefixLen:
		if _, dup := a.fragments[offset]; dup {
			a.drv.Release(r)
			break
		}
		if a.threshold > 0 && a.zeroCopyBytes+uint32(len(payload)) > a.threshold {
			owned := append([]byte(nil), payload...)
			a.fragments[offset] = fragment{copied: true, data: owned, offset: offset}
			a.drv.Release(r)
		} else {
			a.fragments[offset] = fragment{received: r, data: payload, offset: offset}
			a.zeroCopyBytes += uint32(len(payload))
		}
	default:
		// offset < prefixLen: entirely-or-partially covered duplicate.
		a.drv.Release(r)
	}
	return a.Complete()
}

// drainContiguous appends any buffered fragments that have become
// contiguous with the prefix now that new bytes were appended.
func (a *Accumulator) drainContiguous() {
	for {
		prefixLen := uint32(len(a.buf))
		f, ok := a.fragments[prefixLen]
		if !ok {
			return
		}
		delete(a.fragments, prefixLen)
		a.buf = append(a.buf, f.data...)
		if !f.copied {
			a.zeroCopyBytes -= uint32(len(f.data))
			a.drv.Release(f.received)
		}
	}
}

// RequestRetransmission computes the RESEND range for the earliest missing
// bytes: [contiguous prefix length, upTo), returned as its offset and length
// (length is zero when upTo does not exceed the prefix). It performs no I/O
// itself; the caller (pkg/transport) sends the RESEND packet.
func (a *Accumulator) RequestRetransmission(upTo uint32) (offset, length uint32) {
	offset = uint32(len(a.buf))
	if upTo < offset {
		upTo = offset
	}
	return offset, upTo - offset
}

// Close releases every stolen driver buffer still held by this
// accumulator, whether the message completed, was cancelled, or the
// transport is shutting down. Safe to call multiple times.
func (a *Accumulator) Close() {
	for k, f := range a.fragments {
		if !f.copied {
			a.drv.Release(f.received)
		}
		delete(a.fragments, k)
	}
}
