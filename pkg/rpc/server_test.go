package rpc

import (
	"testing"

	"github.com/strand-protocol/strand-transport/pkg/driver"
	"github.com/strand-protocol/strand-transport/pkg/driver/memdriver"
	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

func testServerDriver(t *testing.T) driver.Driver {
	t.Helper()
	net := memdriver.NewNetwork()
	d, err := memdriver.New(net, "rpc-server-test", 1500, 0)
	if err != nil {
		t.Fatalf("memdriver.New: %v", err)
	}
	return d
}

func TestGetOrCreateOnlyCreatesOnce(t *testing.T) {
	tbl := NewTable()
	drv := testServerDriver(t)
	addr := drv.LocalAddress()
	id := rpcid.New(1, 1)

	r1, created1 := tbl.GetOrCreate(id, addr, 5000, 0, drv)
	if !created1 {
		t.Fatal("expected the first GetOrCreate to create a new ServerRpc")
	}
	r2, created2 := tbl.GetOrCreate(id, addr, 5000, 0, drv)
	if created2 {
		t.Fatal("expected the second GetOrCreate to return the existing ServerRpc")
	}
	if r1 != r2 {
		t.Fatal("expected the same ServerRpc instance both times")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 RPC in the table, got %d", tbl.Len())
	}
}

func TestAttachResponseBuildsOutgoingMessage(t *testing.T) {
	tbl := NewTable()
	drv := testServerDriver(t)
	addr := drv.LocalAddress()
	id := rpcid.New(1, 1)
	tbl.GetOrCreate(id, addr, 100, 0, drv)

	rpc, err := tbl.AttachResponse(id, []byte("reply payload"), 1000)
	if err != nil {
		t.Fatalf("AttachResponse: %v", err)
	}
	if rpc.Response == nil {
		t.Fatal("expected a response message to be attached")
	}
	if rpc.Response.TotalLength() != uint32(len("reply payload")) {
		t.Fatalf("unexpected response length %d", rpc.Response.TotalLength())
	}
}

func TestAttachResponseUnknownRpcFails(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.AttachResponse(rpcid.New(9, 9), []byte("x"), 1000); err == nil {
		t.Fatal("expected an error attaching a response to an unknown RPC")
	}
}

func TestRemoveDropsRpcFromTable(t *testing.T) {
	tbl := NewTable()
	drv := testServerDriver(t)
	addr := drv.LocalAddress()
	id := rpcid.New(1, 1)
	tbl.GetOrCreate(id, addr, 100, 0, drv)
	tbl.Remove(id)
	if _, ok := tbl.Lookup(id); ok {
		t.Fatal("expected the RPC to be removed from the table")
	}
}
