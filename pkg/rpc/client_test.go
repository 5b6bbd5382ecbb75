package rpc

import (
	"testing"

	"github.com/strand-protocol/strand-transport/pkg/driver/memdriver"
	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

func testAddr(t *testing.T) memdriver.Address {
	t.Helper()
	net := memdriver.NewNetwork()
	d, err := memdriver.New(net, "rpc-test-peer", 1500, 0)
	if err != nil {
		t.Fatalf("memdriver.New: %v", err)
	}
	addr, ok := d.LocalAddress().(memdriver.Address)
	if !ok {
		t.Fatalf("expected memdriver.Address, got %T", d.LocalAddress())
	}
	return addr
}

func TestSendRequestUsesTheGivenID(t *testing.T) {
	s := NewSession(7, testAddr(t))
	id1 := rpcid.New(7, 1)
	id2 := rpcid.New(7, 2)
	r1, err := s.SendRequest(id1, []byte("a"), 1000, nil)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	r2, err := s.SendRequest(id2, []byte("b"), 1000, nil)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if r1.ID != id1 || r2.ID != id2 {
		t.Fatal("expected each RPC to carry the id it was allocated")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 outstanding RPCs, got %d", s.Len())
	}
}

func TestCancelRequestRemovesFromTable(t *testing.T) {
	s := NewSession(1, testAddr(t))
	r, _ := s.SendRequest(rpcid.New(1, 1), []byte("x"), 1000, nil)
	got, ok := s.CancelRequest(r.ID)
	if !ok || got != r {
		t.Fatal("expected CancelRequest to return the same RPC")
	}
	if _, ok := s.Lookup(r.ID); ok {
		t.Fatal("expected the RPC to be removed from the table")
	}
	if s.Len() != 0 {
		t.Fatalf("expected 0 outstanding RPCs, got %d", s.Len())
	}
}

func TestAbortFailsAllOutstandingWithCanceled(t *testing.T) {
	s := NewSession(1, testAddr(t))
	var got []error
	notify := func(_ []byte, err error) { got = append(got, err) }
	s.SendRequest(rpcid.New(1, 1), []byte("a"), 1000, notify)
	s.SendRequest(rpcid.New(1, 2), []byte("b"), 1000, notify)

	aborted := s.Abort()
	if len(aborted) != 2 {
		t.Fatalf("expected 2 aborted RPCs, got %d", len(aborted))
	}
	for _, rpc := range aborted {
		rpc.Notify(nil, &Error{RpcID: rpc.ID, Kind: KindCanceled})
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	for _, err := range got {
		rpcErr, ok := err.(*Error)
		if !ok || rpcErr.Kind != KindCanceled {
			t.Fatalf("expected CANCELED error, got %v", err)
		}
	}

	if _, err := s.SendRequest(rpcid.New(1, 3), []byte("c"), 1000, nil); err == nil {
		t.Fatal("expected SendRequest to fail on an aborted session")
	}
}

func TestNotifyFiresOnlyOnce(t *testing.T) {
	s := NewSession(1, testAddr(t))
	r, _ := s.SendRequest(rpcid.New(1, 1), []byte("a"), 1000, nil)
	count := 0
	r.notify = func(_ []byte, _ error) { count++ }
	r.Notify([]byte("resp"), nil)
	r.Notify([]byte("resp-again"), nil)
	if count != 1 {
		t.Fatalf("expected exactly one notification, got %d", count)
	}
}
