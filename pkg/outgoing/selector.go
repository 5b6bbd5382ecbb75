package outgoing

import (
	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

// DefaultTopK is the cardinality of the top-outgoing-messages fast path
// (spec.md §4.3: "a small constant, e.g. 4-8").
const DefaultTopK = 8

// Selector implements the SRPT-with-top-K-cache send selection algorithm
// from spec.md §4.3, grounded on
// original_source/src/HomaTransport.h's topOutgoingMessages /
// maintainTopOutgoingMessages / tryToTransmitData.
type Selector struct {
	topK int
	top  []*Message // ascending by BytesRemaining, ties in insertion order
	all  map[rpcid.ID]*Message

	// slowPath is true when a message outside top might have
	// transmittable bytes the top list doesn't reflect (e.g. every top
	// slot is currently blocked on a grant). Set whenever an entry leaves
	// top or is kept out of it; cleared only when a full rescan finds
	// nothing transmittable.
	slowPath bool
}

// NewSelector returns an empty Selector with the given top-K cardinality.
func NewSelector(topK int) *Selector {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Selector{topK: topK, all: make(map[rpcid.ID]*Message)}
}

// Add registers m with the selector, offering it to the top-K list.
func (s *Selector) Add(m *Message) {
	s.all[m.RpcID] = m
	s.maintainTop(m)
}

// Remove drops m from the selector entirely (RPC destroyed or aborted).
func (s *Selector) Remove(m *Message) {
	delete(s.all, m.RpcID)
	s.removeFromTop(m)
}

// NotifyChanged must be called whenever m's bytes-remaining or
// transmit-limit changes (a packet was sent, or a GRANT extended the
// limit), so the top-K ordering and slow-path flag stay accurate.
func (s *Selector) NotifyChanged(m *Message) {
	if m.Done() {
		s.Remove(m)
		return
	}
	if m.topIndex >= 0 {
		// Bytes remaining only shrinks, so re-sort by removing and
		// reinserting rather than a full sort of the (tiny) list.
		s.removeFromTop(m)
	}
	s.maintainTop(m)
}

// maintainTop offers candidate to the top-K list: insert directly if there
// is room, evict the current worst if candidate is strictly better,
// otherwise leave it out and mark the slow path dirty so a future rescan
// can find it.
func (s *Selector) maintainTop(candidate *Message) {
	if candidate.topIndex >= 0 {
		return // already present
	}
	if len(s.top) < s.topK {
		s.insertSorted(candidate)
		return
	}
	worst := s.top[len(s.top)-1]
	if candidate.BytesRemaining() < worst.BytesRemaining() {
		s.removeFromTop(worst)
		s.insertSorted(candidate)
		s.slowPath = true // worst might still have transmittable bytes
		return
	}
	s.slowPath = true
}

func (s *Selector) insertSorted(m *Message) {
	i := 0
	for i < len(s.top) && s.top[i].BytesRemaining() <= m.BytesRemaining() {
		i++
	}
	s.top = append(s.top, nil)
	copy(s.top[i+1:], s.top[i:])
	s.top[i] = m
	m.TopChoice = true
	m.topIndex = i
	s.reindex()
}

func (s *Selector) removeFromTop(m *Message) {
	if m.topIndex < 0 || m.topIndex >= len(s.top) || s.top[m.topIndex] != m {
		return
	}
	s.top = append(s.top[:m.topIndex], s.top[m.topIndex+1:]...)
	m.TopChoice = false
	m.topIndex = -1
	s.reindex()
}

func (s *Selector) reindex() {
	for i, m := range s.top {
		m.topIndex = i
	}
}

// Next picks the outgoing message that should receive the next packet, per
// spec.md §4.3's three-step algorithm. Returns false if nothing is
// currently transmittable.
func (s *Selector) Next() (*Message, bool) {
	if m, ok := s.bestTransmittable(s.top); ok {
		return m, true
	}
	if !s.slowPath {
		return nil, false
	}
	s.rescan()
	if m, ok := s.bestTransmittable(s.top); ok {
		return m, true
	}
	s.slowPath = false
	return nil, false
}

func (s *Selector) bestTransmittable(candidates []*Message) (*Message, bool) {
	var best *Message
	for _, m := range candidates {
		if !m.Transmittable() {
			continue
		}
		if best == nil ||
			m.BytesRemaining() < best.BytesRemaining() ||
			(m.BytesRemaining() == best.BytesRemaining() && m.LastTransmitTime.Before(best.LastTransmitTime)) {
			best = m
		}
	}
	return best, best != nil
}

// rescan rebuilds the top-K list from the transmittable messages in the
// full population, used when the
// fast path is exhausted (spec.md §4.3 step 3).
func (s *Selector) rescan() {
	for _, m := range s.top {
		m.TopChoice = false
		m.topIndex = -1
	}
	s.top = s.top[:0]
	for _, m := range s.all {
		m.topIndex = -1
	}
	for _, m := range s.all {
		if !m.Transmittable() {
			continue
		}
		if len(s.top) < s.topK {
			s.insertSorted(m)
		} else if m.BytesRemaining() < s.top[len(s.top)-1].BytesRemaining() {
			worst := s.top[len(s.top)-1]
			worst.TopChoice = false
			worst.topIndex = -1
			s.top = s.top[:len(s.top)-1]
			s.insertSorted(m)
		}
	}
}
