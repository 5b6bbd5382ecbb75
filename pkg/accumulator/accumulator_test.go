package accumulator

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/strand-protocol/strand-transport/pkg/driver"
	"github.com/strand-protocol/strand-transport/pkg/driver/memdriver"
	"github.com/strand-protocol/strand-transport/pkg/wire"
)

func chunk(msg []byte, offset, size uint32) (wire.DataHeader, []byte) {
	end := offset + size
	if end > uint32(len(msg)) {
		end = uint32(len(msg))
	}
	return wire.DataHeader{Offset: offset, TotalLength: uint32(len(msg))}, msg[offset:end]
}

func newTestDriver(t *testing.T) driver.Driver {
	t.Helper()
	net := memdriver.NewNetwork()
	d, err := memdriver.New(net, "acc-test", 1500, 0)
	if err != nil {
		t.Fatalf("memdriver.New: %v", err)
	}
	return d
}

func TestAddPacketInOrder(t *testing.T) {
	drv := newTestDriver(t)
	msg := bytes.Repeat([]byte("x"), 3000)
	a := New(drv, uint32(len(msg)), 0)

	const step = 1000
	for off := uint32(0); off < uint32(len(msg)); off += step {
		h, payload := chunk(msg, off, step)
		done := a.AddPacket(h, driver.Received{}, payload)
		want := off+step >= uint32(len(msg))
		if done != want {
			t.Fatalf("offset %d: AddPacket returned %v, want %v", off, done, want)
		}
	}
	if !bytes.Equal(a.Bytes(), msg) {
		t.Fatal("reassembled message does not match original")
	}
}

func TestAddPacketOutOfOrder(t *testing.T) {
	drv := newTestDriver(t)
	msg := bytes.Repeat([]byte("y"), 5000)
	a := New(drv, uint32(len(msg)), 0)

	const step = 1000
	var offsets []uint32
	for off := uint32(0); off < uint32(len(msg)); off += step {
		offsets = append(offsets, off)
	}
	// Fixed shuffle (deterministic seed) so failures reproduce.
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(offsets), func(i, j int) { offsets[i], offsets[j] = offsets[j], offsets[i] })

	var complete bool
	for _, off := range offsets {
		h, payload := chunk(msg, off, step)
		complete = a.AddPacket(h, driver.Received{}, payload)
	}
	if !complete {
		t.Fatal("expected accumulator to report complete after all fragments arrived")
	}
	if !bytes.Equal(a.Bytes(), msg) {
		t.Fatal("reassembled message does not match original after out-of-order delivery")
	}
}

func TestAddPacketDuplicatesAreIgnored(t *testing.T) {
	drv := newTestDriver(t)
	msg := bytes.Repeat([]byte("z"), 2000)
	a := New(drv, uint32(len(msg)), 0)

	h0, p0 := chunk(msg, 0, 1000)
	a.AddPacket(h0, driver.Received{}, p0)
	// Duplicate of the same first chunk, and a second chunk that arrives
	// twice: once extending the prefix, then again inside it.
	a.AddPacket(h0, driver.Received{}, p0)
	h1, p1 := chunk(msg, 1000, 1000)
	a.AddPacket(h1, driver.Received{}, p1)
	done := a.AddPacket(h1, driver.Received{}, p1)
	if !done {
		t.Fatal("expected complete after duplicate delivery")
	}
	if !bytes.Equal(a.Bytes(), msg) {
		t.Fatal("duplicates corrupted the reassembled message")
	}
}

func TestAddPacketPastThresholdCopiesAndReleases(t *testing.T) {
	drv := newTestDriver(t)
	msg := bytes.Repeat([]byte("v"), 4000)
	a := New(drv, uint32(len(msg)), 1500)

	// Two out-of-order 1000-byte fragments arrive ahead of the prefix; the
	// second pushes retained zero-copy bytes past the 1500-byte threshold
	// and must be copied instead of held as a stolen buffer.
	h1, p1 := chunk(msg, 1000, 1000)
	a.AddPacket(h1, driver.Received{}, p1)
	if a.zeroCopyBytes != 1000 {
		t.Fatalf("expected 1000 zero-copy bytes retained, got %d", a.zeroCopyBytes)
	}
	h2, p2 := chunk(msg, 2000, 1000)
	a.AddPacket(h2, driver.Received{}, p2)
	if a.zeroCopyBytes != 1000 {
		t.Fatalf("expected the over-threshold fragment to be copied, zero-copy bytes stayed at 1000, got %d", a.zeroCopyBytes)
	}
	if !a.fragments[2000].copied {
		t.Fatal("expected the fragment past the threshold to be marked copied")
	}

	h0, p0 := chunk(msg, 0, 1000)
	done := a.AddPacket(h0, driver.Received{}, p0)
	h3, p3 := chunk(msg, 3000, 1000)
	done = a.AddPacket(h3, driver.Received{}, p3)
	if !done {
		t.Fatal("expected complete once every fragment has arrived")
	}
	if !bytes.Equal(a.Bytes(), msg) {
		t.Fatal("reassembled message does not match original")
	}
	if a.zeroCopyBytes != 0 {
		t.Fatalf("expected zero-copy accounting to drain to 0, got %d", a.zeroCopyBytes)
	}
}

func TestRequestRetransmissionRange(t *testing.T) {
	drv := newTestDriver(t)
	msg := bytes.Repeat([]byte("w"), 5000)
	a := New(drv, uint32(len(msg)), 0)

	h0, p0 := chunk(msg, 0, 1000)
	a.AddPacket(h0, driver.Received{}, p0)
	// offset 1000 (the lost packet) never arrives; 2000 arrives early.
	h2, p2 := chunk(msg, 2000, 1000)
	a.AddPacket(h2, driver.Received{}, p2)

	offset, length := a.RequestRetransmission(4000)
	if offset != 1000 {
		t.Fatalf("expected retransmission to start at 1000, got %d", offset)
	}
	if length != 3000 {
		t.Fatalf("expected retransmission length 3000, got %d", length)
	}
}
