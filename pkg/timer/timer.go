// Package timer implements the transport's liveness ladder: silent-interval
// counting per RPC and the TIMEOUT / BUSY-ping / RESEND decision described
// in spec.md §4.6, grounded on
// original_source/src/HomaTransport.h's checkTimeouts and its
// silentIntervals/timeoutIntervals/pingIntervals member documentation.
package timer

import "github.com/strand-protocol/strand-transport/pkg/rpcid"

// Config carries the two tick thresholds; pingIntervals must be strictly
// less than timeoutIntervals (enforced by pkg/config.Validate).
type Config struct {
	TimeoutIntervals uint32
	PingIntervals    uint32
}

// Entry is one RPC's liveness state, owned and mutated by the caller
// (pkg/transport): the caller resets SilentIntervals to zero whenever any packet
// for this RPC arrives, and updates FullyTransmitted/HasPartial/Executing
// as the RPC's send/receive state changes. The Timer only reads these
// fields and increments SilentIntervals.
type Entry struct {
	SilentIntervals uint32

	// FullyTransmitted is true once every byte of this side's outbound
	// message (request for a client, response for a server) has been sent.
	FullyTransmitted bool
	// HasPartial is true when some, but not all, of the counterpart's
	// message (response for a client, request for a server) has arrived.
	HasPartial bool
	// Executing is true on the server side while the handler for a fully
	// received request is still running, so BUSY keepalives should be sent
	// even though there is no partial inbound message to explain them.
	Executing bool

	// OnTimeout fires when SilentIntervals reaches TimeoutIntervals; the
	// entry is unregistered immediately afterward.
	OnTimeout func()
	// OnPing fires for a fully-sent, still-silent RPC with nothing partial
	// to resend, or while Executing is set.
	OnPing func()
	// OnResend fires when a partial inbound message has stalled.
	OnResend func()
}

// Timer ticks every registered Entry once per Tick call and invokes the
// entry's callback for whichever branch of the liveness ladder applies.
type Timer struct {
	cfg     Config
	entries map[rpcid.ID]*Entry
}

// New returns an empty Timer.
func New(cfg Config) *Timer {
	return &Timer{cfg: cfg, entries: make(map[rpcid.ID]*Entry)}
}

// Register starts tracking id against e. Re-registering the same id
// replaces its Entry.
func (t *Timer) Register(id rpcid.ID, e *Entry) {
	t.entries[id] = e
}

// Unregister stops tracking id, e.g. once the RPC has been destroyed.
func (t *Timer) Unregister(id rpcid.ID) {
	delete(t.entries, id)
}

// Reset zeroes id's silent-interval counter; the caller invokes this on
// every packet received for id, whatever its opcode.
func (t *Timer) Reset(id rpcid.ID) {
	if e, ok := t.entries[id]; ok {
		e.SilentIntervals = 0
	}
}

// Tick advances every registered entry's silent-interval counter by one and
// fires the appropriate callback. Entries that time out are unregistered
// as part of this call.
func (t *Timer) Tick() {
	for id, e := range t.entries {
		e.SilentIntervals++
		switch {
		case e.SilentIntervals >= t.cfg.TimeoutIntervals:
			if e.OnTimeout != nil {
				e.OnTimeout()
			}
			delete(t.entries, id)
		case e.SilentIntervals < t.cfg.PingIntervals:
			// Within grace; no action yet.
		case e.Executing || (e.FullyTransmitted && !e.HasPartial):
			if e.OnPing != nil {
				e.OnPing()
			}
		case e.HasPartial:
			if e.OnResend != nil {
				e.OnResend()
			}
		}
	}
}

// Len reports how many RPCs are currently tracked, for diagnostics.
func (t *Timer) Len() int { return len(t.entries) }
