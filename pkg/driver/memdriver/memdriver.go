// Package memdriver implements pkg/driver.Driver entirely in process,
// without any real network I/O. It exists so tests can exercise the
// transport's testable properties (spec.md §8, P1-P7) under controlled,
// seeded packet loss instead of relying on real network conditions.
// Datagrams that are not dropped are delivered in the order they were sent.
package memdriver

import (
	"fmt"
	"sync"

	"github.com/strand-protocol/strand-transport/pkg/driver"
)

// Address names an endpoint registered with a shared Network.
type Address struct {
	name string
}

// String implements driver.Address.
func (a Address) String() string { return a.name }

// datagram is one in-flight packet between two Drivers on a Network.
type datagram struct {
	from, to Address
	priority uint8
	payload  []byte
}

// Network is a shared medium connecting a set of memdriver.Driver
// instances. It is the in-process analogue of the physical link the real
// driver would send over: all Drivers created with the same Network can
// address one another by name.
type Network struct {
	mu       sync.Mutex
	drivers  map[string]*Driver
	dropRate float64 // fraction of packets dropped in transit, [0,1)
	rng      func() float64
}

// NewNetwork returns an empty Network with no simulated loss.
func NewNetwork() *Network {
	return &Network{drivers: make(map[string]*Driver), rng: defaultRNG()}
}

// SetDropRate configures the fraction of packets the Network silently
// drops in transit. Used to exercise spec.md P7 (liveness under loss).
func (n *Network) SetDropRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRate = rate
}

func (n *Network) register(d *Driver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drivers[d.local.name] = d
}

func (n *Network) unregister(d *Driver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.drivers, d.local.name)
}

func (n *Network) deliver(dg datagram) {
	n.mu.Lock()
	drop := n.dropRate > 0 && n.rng() < n.dropRate
	dst, ok := n.drivers[dg.to.name]
	n.mu.Unlock()
	if drop || !ok {
		return
	}
	dst.mu.Lock()
	if !dst.closed {
		select {
		case dst.incoming <- driver.Received{Source: dg.from, Payload: dg.payload}:
		default:
			// Simulated NIC buffer exhaustion: drop like a real driver would.
		}
	}
	dst.mu.Unlock()
}

// Driver is an in-process driver.Driver bound to a Network under a unique
// name.
type Driver struct {
	network     *Network
	local       Address
	mtu         int
	maxPriority uint8

	mu       sync.Mutex
	closed   bool
	incoming chan driver.Received
}

// New registers a new Driver named name on net, with the given MTU and
// priority range.
func New(net *Network, name string, mtu int, maxPriority uint8) (*Driver, error) {
	if mtu <= 0 {
		return nil, fmt.Errorf("memdriver: mtu must be positive, got %d", mtu)
	}
	d := &Driver{
		network:     net,
		local:       Address{name: name},
		mtu:         mtu,
		maxPriority: maxPriority,
		incoming:    make(chan driver.Received, 4096),
	}
	net.register(d)
	return d, nil
}

// Send implements driver.Driver.
func (d *Driver) Send(address driver.Address, priority uint8, payload []byte) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return fmt.Errorf("memdriver: %s is closed", d.local.name)
	}
	addr, ok := address.(Address)
	if !ok {
		return fmt.Errorf("memdriver: address %v is not a memdriver.Address", address)
	}
	if len(payload) > d.mtu {
		return fmt.Errorf("memdriver: payload %d bytes exceeds mtu %d", len(payload), d.mtu)
	}
	if priority > d.maxPriority {
		priority = d.maxPriority
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	d.network.deliver(datagram{from: d.local, to: addr, priority: priority, payload: cp})
	return nil
}

// Poll implements driver.Driver. It never blocks.
func (d *Driver) Poll(maxPackets int) []driver.Received {
	out := make([]driver.Received, 0, maxPackets)
	for i := 0; i < maxPackets; i++ {
		select {
		case r := <-d.incoming:
			out = append(out, r)
		default:
			return out
		}
	}
	return out
}

// Release implements driver.Driver; memdriver has no fixed-size buffer
// pool to return a slice to.
func (d *Driver) Release(driver.Received) {}

// MTU implements driver.Driver.
func (d *Driver) MTU() int { return d.mtu }

// MaxPriority implements driver.Driver.
func (d *Driver) MaxPriority() uint8 { return d.maxPriority }

// ParseAddress implements driver.Driver: memdriver addresses are just
// registered names.
func (d *Driver) ParseAddress(locator string) (driver.Address, error) {
	return Address{name: locator}, nil
}

// LocalAddress implements driver.Driver.
func (d *Driver) LocalAddress() driver.Address { return d.local }

// Close implements driver.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	d.network.unregister(d)
	return nil
}
