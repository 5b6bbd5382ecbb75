// Package scheduler implements the receiver-side grant scheduler: which
// incoming scheduled messages are actively being granted, at what priority,
// and how far each one's grant window has been extended. Grounded on
// spec.md §4.5 and original_source/src/HomaTransport.h's ScheduledMessage /
// activeMessages / inactiveMessages / tryToSchedule / adjustSchedulingPrecedence.
package scheduler

import (
	"github.com/strand-protocol/strand-transport/pkg/accumulator"
	"github.com/strand-protocol/strand-transport/pkg/driver"
	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

// WhoFrom identifies which side of an RPC a scheduled message belongs to.
type WhoFrom uint8

const (
	FromClient WhoFrom = iota
	FromServer
)

// State is a ScheduledMessage's position in the scheduler.
type State int

const (
	StateNew State = iota
	Active
	Inactive
	FullyGranted
)

// Message is receiver-side state for one incoming message that requires
// granting (its total length exceeds the sender's unscheduled bytes).
type Message struct {
	RpcID         rpcid.ID
	Accumulator   *accumulator.Accumulator
	SenderAddress driver.Address
	SenderHash    uint64
	TotalLength   uint32
	WhoFrom       WhoFrom

	// GrantOffset is the high-water mark already granted; starts at the
	// sender's unscheduled-bytes count.
	GrantOffset   uint32
	GrantPriority int
	State         State
}

// BytesRemaining is the priority key's primary component.
func (m *Message) BytesRemaining() uint32 {
	received := m.Accumulator.Len()
	if received >= m.TotalLength {
		return 0
	}
	return m.TotalLength - received
}

// compareTo implements spec.md §4.5's priority key: fewer bytes remaining
// wins; ties broken by earlier RpcID. Returns <0 if m sorts before other,
// >0 if after, 0 if equal.
func compareTo(m, other *Message) int {
	mr, or := m.BytesRemaining(), other.BytesRemaining()
	switch {
	case mr < or:
		return -1
	case mr > or:
		return 1
	case m.RpcID.Less(other.RpcID):
		return -1
	case other.RpcID.Less(m.RpcID):
		return 1
	default:
		return 0
	}
}

// Grant is one batched grant to flush at the end of packet processing.
type Grant struct {
	Message  *Message
	Offset   uint32
	Priority int
}

// Scheduler maintains the active/inactive partition of scheduled messages
// and computes grant pacing and priorities.
//
// Invariant: a Message is in exactly one of active, inactive, or neither
// (once FullyGranted). No two members of active share a SenderHash.
type Scheduler struct {
	maxGranted         int // overcommitment degree D
	highestSchedPrio   int
	roundTripBytes     uint32
	grantIncrement     uint32

	active   []*Message // sorted ascending by compareTo
	inactive map[rpcid.ID]*Message

	pending []Grant // messagesToGrant, flushed by the caller each tick
}

// Config bundles the scheduler's tunables (spec.md §6).
type Config struct {
	MaxGrantedMessages int
	HighestSchedPrio   int
	RoundTripBytes     uint32
	GrantIncrement     uint32
}

// New returns an empty Scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		maxGranted:       cfg.MaxGrantedMessages,
		highestSchedPrio: cfg.HighestSchedPrio,
		roundTripBytes:   cfg.RoundTripBytes,
		grantIncrement:   cfg.GrantIncrement,
		inactive:         make(map[rpcid.ID]*Message),
	}
}

// TryToSchedule installs a new or re-offered message per spec.md §4.5.
func (s *Scheduler) TryToSchedule(m *Message) {
	if m.State == Active {
		panic("scheduler: TryToSchedule called on a message that is already active")
	}
	if m.State == FullyGranted {
		return
	}
	if s.activeSender(m.SenderHash) {
		s.toInactive(m)
		return
	}
	if len(s.active) < s.maxGranted {
		s.insertActive(m)
		s.assignPriorities()
		return
	}
	worst := s.active[len(s.active)-1]
	if compareTo(m, worst) < 0 {
		s.evictToInactive(worst)
		s.insertActive(m)
		s.assignPriorities()
		return
	}
	s.toInactive(m)
}

func (s *Scheduler) activeSender(hash uint64) bool {
	for _, a := range s.active {
		if a.SenderHash == hash {
			return true
		}
	}
	return false
}

// insertActive inserts m into the active list, keeping it sorted by
// compareTo. Panics if doing so would violate the "no two active messages
// share a sender" invariant (spec.md §4.5/§7): every caller must have
// already ensured no active message shares m.SenderHash before reaching
// here, so a hit here means the caller's own bookkeeping is broken.
func (s *Scheduler) insertActive(m *Message) {
	for _, a := range s.active {
		if a == m {
			panic("scheduler: insertActive called on a message already in the active list")
		}
		if a.SenderHash == m.SenderHash {
			panic("scheduler: insertActive would put two messages from the same sender in the active list")
		}
	}
	m.State = Active
	delete(s.inactive, m.RpcID)
	i := 0
	for i < len(s.active) && compareTo(s.active[i], m) <= 0 {
		i++
	}
	s.active = append(s.active, nil)
	copy(s.active[i+1:], s.active[i:])
	s.active[i] = m
}

func (s *Scheduler) toInactive(m *Message) {
	m.State = Inactive
	s.inactive[m.RpcID] = m
}

func (s *Scheduler) evictToInactive(m *Message) {
	s.removeActive(m)
	s.toInactive(m)
}

// removeActive drops m from the active list. Every call site only calls
// this once it knows m.State == Active, so failing to find m here means the
// active list and a Message's State field have fallen out of sync — an
// internal consistency violation, not a condition callers can recover from.
func (s *Scheduler) removeActive(m *Message) {
	for i, a := range s.active {
		if a == m {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
	panic("scheduler: removeActive called on a message not present in the active list")
}

// AdjustSchedulingPrecedence re-sorts m's position within the active list
// after its bytes-remaining changed (spec.md §4.5). No-op if m is inactive.
func (s *Scheduler) AdjustSchedulingPrecedence(m *Message) {
	if m.State != Active {
		return
	}
	s.removeActive(m)
	i := 0
	for i < len(s.active) && compareTo(s.active[i], m) <= 0 {
		i++
	}
	s.active = append(s.active, nil)
	copy(s.active[i+1:], s.active[i:])
	s.active[i] = m
	s.assignPriorities()
}

// ReplaceActiveMessage removes old (now FullyGranted or evicted) and
// promotes the best inactive candidate whose sender isn't already active.
func (s *Scheduler) ReplaceActiveMessage(old *Message) {
	s.removeActive(old)
	var best *Message
	for _, cand := range s.inactive {
		if s.activeSender(cand.SenderHash) {
			continue
		}
		if best == nil || compareTo(cand, best) < 0 {
			best = cand
		}
	}
	s.assignPriorities()
	if best == nil {
		return
	}
	s.TryToSchedule(best)
}

// assignPriorities implements spec.md §4.5's grant priority assignment: the
// i-th active message (ascending by priority key) gets priority
// highestSchedPriority-i, clamped at zero.
func (s *Scheduler) assignPriorities() {
	for i, m := range s.active {
		p := s.highestSchedPrio - i
		if p < 0 {
			p = 0
		}
		m.GrantPriority = p
	}
}

// OnDataReceived is called for every DATA/ALL_DATA packet that advances an
// active or inactive scheduled message's received-bytes count. It adjusts
// scheduling precedence and, for active messages, computes grant pacing.
func (s *Scheduler) OnDataReceived(m *Message) {
	if m.State == Inactive {
		// Bytes-remaining may have shrunk enough to now beat an active
		// message; re-offer it.
		delete(s.inactive, m.RpcID)
		s.TryToSchedule(m)
		return
	}
	if m.State != Active {
		return
	}
	s.AdjustSchedulingPrecedence(m)

	if m.Accumulator.Complete() {
		m.State = FullyGranted
		s.ReplaceActiveMessage(m)
		return
	}
	s.maybeGrant(m)
}

// maybeGrant extends m's granted range once the outstanding
// granted-but-not-received window falls below roundTripBytes, batching the
// result into pending. Per original_source/src/HomaTransport.h's comment on
// grantIncrement, each new GRANT extends the range by at least
// grantIncrement bytes rather than back to exactly received+roundTripBytes:
// the latter would fire a new GRANT on almost every DATA packet in the
// scheduled region (outstanding dips below roundTripBytes by one packet's
// worth on every arrival), defeating grantIncrement's purpose of amortizing
// GRANT overhead over a batch of packets.
func (s *Scheduler) maybeGrant(m *Message) {
	received := m.Accumulator.Len()
	var outstanding uint32
	if m.GrantOffset > received {
		outstanding = m.GrantOffset - received
	}
	if outstanding >= s.roundTripBytes {
		return
	}
	newOffset := m.GrantOffset + s.grantIncrement
	if floor := received + s.roundTripBytes; newOffset < floor {
		newOffset = floor
	}
	if newOffset > m.TotalLength {
		newOffset = m.TotalLength
	}
	if newOffset <= m.GrantOffset {
		return
	}
	m.GrantOffset = newOffset
	s.pending = append(s.pending, Grant{Message: m, Offset: newOffset, Priority: m.GrantPriority})
}

// FlushGrants returns and clears the batch of grants accumulated since the
// last flush (spec.md §4.5's messagesToGrant).
func (s *Scheduler) FlushGrants() []Grant {
	g := s.pending
	s.pending = nil
	return g
}

// Active returns the current active set, ordered by priority key.
// The returned slice is owned by the scheduler; callers must not retain it
// across further scheduler calls.
func (s *Scheduler) Active() []*Message { return s.active }

// Remove drops m from whichever set holds it, e.g. on RPC teardown.
func (s *Scheduler) Remove(m *Message) {
	if m.State == Active {
		s.ReplaceActiveMessage(m)
		return
	}
	delete(s.inactive, m.RpcID)
}
