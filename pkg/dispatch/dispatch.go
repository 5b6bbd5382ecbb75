// Package dispatch is the transport's external tick/lock collaborator
// (spec.md §5's "single dispatch thread" concurrency model): a monotonic
// tick counter, a registry of pollers run once per tick, and the mutex
// that serializes API entry points against poll ticks so the SRPT and
// scheduler invariants are never observed mid-update.
package dispatch

import (
	"context"
	"sync"
	"time"
)

// Poller is anything that wants a chance to run once per dispatch tick.
// pkg/transport.Transport implements this to drain packets, run the
// scheduler, and run the send selector.
type Poller interface {
	Poll()
}

// Dispatch owns the single logical thread of execution the transport
// assumes: Run ticks pollers on a fixed interval, and Guard lets any
// external API call (SendRequest, SendReply, CancelRequest, ...) take the
// same lock a tick holds, so it never runs concurrently with one.
type Dispatch struct {
	mu       sync.Mutex
	pollers  []Poller
	ticks    uint64
	interval time.Duration
}

// New returns a Dispatch that ticks every interval once Run is called.
func New(interval time.Duration) *Dispatch {
	return &Dispatch{interval: interval}
}

// Register adds p to the set of pollers run on every tick, in registration
// order.
func (d *Dispatch) Register(p Poller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pollers = append(d.pollers, p)
}

// Guard runs fn while holding the dispatch lock, exactly as a tick does.
// Every externally callable transport operation should be wrapped in
// Guard so it cannot interleave with a Poll.
func (d *Dispatch) Guard(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Tick runs every registered poller once, in order, under the dispatch
// lock, and advances the tick counter. Exported so tests and single-step
// callers can drive the transport without a background goroutine.
func (d *Dispatch) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks++
	for _, p := range d.pollers {
		p.Poll()
	}
}

// Ticks reports how many ticks have run.
func (d *Dispatch) Ticks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}

// Run ticks on a fixed interval until ctx is cancelled.
func (d *Dispatch) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick()
		}
	}
}
