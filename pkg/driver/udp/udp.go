// Package udp implements pkg/driver.Driver over a real UDP socket. It is
// the pure-Go, zero-CGo transport binding for production use, grounded in
// this codebase family's OverlayTransport (strandapi/pkg/transport/overlay.go):
// same net.UDPConn dial/listen pattern, same small fixed preamble ahead of
// the payload, same mutex-guarded Close.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/strand-protocol/strand-transport/pkg/driver"
)

// Wire preamble written ahead of every datagram's payload: 1 byte priority
// class, so a receiver-side test harness or packet capture can recover the
// priority the sender selected even though real IP networks convey it out
// of band (e.g. via DSCP, best-efforted below).
const preambleSize = 1

// MaxDatagram is the largest UDP payload this driver will send or accept.
// 1472 keeps the transport packet plus preamble under the common Ethernet
// MTU (1500) after IP/UDP headers, avoiding IP fragmentation.
const MaxDatagram = 1472

// maxPriority is the highest packet priority class this driver accepts.
// DSCP has 6 usable bits, but this driver only exposes 8 courser classes,
// matching the priority range the scheduler and send selector operate on.
const maxPriority = 7

var errClosed = errors.New("udp driver: closed")

// Address wraps a resolved UDP address.
type Address struct {
	addr *net.UDPAddr
}

// String implements driver.Address.
func (a Address) String() string { return a.addr.String() }

// Driver sends and receives datagrams over a UDP socket. It is safe for
// concurrent use by a background reader goroutine and the single dispatch
// thread that calls Poll/Send.
type Driver struct {
	conn    *net.UDPConn
	pconn   *ipv4.PacketConn // best-effort DSCP/TOS setting; nil if unsupported
	local   Address
	mu      sync.Mutex
	closed  bool
	incoming chan driver.Received
}

// Listen opens a UDP socket bound to addr ("host:port", "" host means all
// interfaces) and begins reading datagrams into an internal queue that
// Poll drains.
func Listen(addr string) (*Driver, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp driver: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udp driver: listen %s: %w", addr, err)
	}
	d := &Driver{
		conn:     conn,
		pconn:    ipv4.NewPacketConn(conn),
		local:    Address{addr: conn.LocalAddr().(*net.UDPAddr)},
		incoming: make(chan driver.Received, 4096),
	}
	go d.readLoop()
	return d, nil
}

func (d *Driver) readLoop() {
	buf := make([]byte, MaxDatagram)
	for {
		n, remote, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		if n < preambleSize {
			continue // malformed: too short to carry the priority preamble
		}
		payload := make([]byte, n-preambleSize)
		copy(payload, buf[preambleSize:n])
		select {
		case d.incoming <- driver.Received{Source: Address{addr: remote}, Payload: payload}:
		default:
			// Receive queue full: drop, matching a hardware NIC dropping
			// packets under buffer exhaustion. The transport's timer will
			// recover via RESEND.
		}
	}
}

// Send implements driver.Driver.
func (d *Driver) Send(address driver.Address, priority uint8, payload []byte) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return errClosed
	}
	addr, ok := address.(Address)
	if !ok {
		return fmt.Errorf("udp driver: address %v is not a udp.Address", address)
	}
	if len(payload)+preambleSize > MaxDatagram {
		return fmt.Errorf("udp driver: payload %d bytes exceeds MTU %d", len(payload), MaxDatagram-preambleSize)
	}
	if priority > maxPriority {
		priority = maxPriority
	}

	frame := make([]byte, preambleSize+len(payload))
	frame[0] = priority
	copy(frame[preambleSize:], payload)

	// Best-effort priority hint via DSCP; the authoritative priority
	// enforcement point is the network's own priority queues (spec.md §1),
	// which this driver does not implement.
	if d.pconn != nil {
		_ = d.pconn.SetTOS(int(priority) << 5)
	}

	_, err := d.conn.WriteToUDP(frame, addr.addr)
	return err
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

// Release implements driver.Driver. The UDP driver allocates a fresh slice
// per received datagram (Go's GC reclaims it), so there is no pool to
// return a buffer to.
func (d *Driver) Release(driver.Received) {}

// MTU implements driver.Driver.
func (d *Driver) MTU() int { return MaxDatagram - preambleSize }

// MaxPriority implements driver.Driver.
func (d *Driver) MaxPriority() uint8 { return maxPriority }

// ParseAddress implements driver.Driver. locator must already be a plain
// "host:port" string; higher-level locator syntax (etcd: names, option
// lists) is resolved by pkg/locator before reaching the driver.
func (d *Driver) ParseAddress(locator string) (driver.Address, error) {
	addr, err := net.ResolveUDPAddr("udp", locator)
	if err != nil {
		return nil, fmt.Errorf("udp driver: parse address %q: %w", locator, err)
	}
	return Address{addr: addr}, nil
}

// LocalAddress implements driver.Driver.
func (d *Driver) LocalAddress() driver.Address { return d.local }

// Close implements driver.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}
