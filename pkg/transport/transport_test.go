package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/strand-protocol/strand-transport/pkg/config"
	"github.com/strand-protocol/strand-transport/pkg/dispatch"
	"github.com/strand-protocol/strand-transport/pkg/driver"
	"github.com/strand-protocol/strand-transport/pkg/driver/memdriver"
	"github.com/strand-protocol/strand-transport/pkg/rpc"
	"github.com/strand-protocol/strand-transport/pkg/wire"
)

// pair is two Transports wired to the same in-process network, one acting
// as client and one as server, each with its own dispatch.Dispatch.
type pair struct {
	clientDrv  *memdriver.Driver
	serverDrv  *memdriver.Driver
	clientDisp *dispatch.Dispatch
	serverDisp *dispatch.Dispatch
	client     *Transport
	server     *Transport
}

func newPair(t *testing.T, cfg config.Config, onRequest RequestHandler) (*pair, func()) {
	t.Helper()
	net := memdriver.NewNetwork()
	cd, err := memdriver.New(net, "client", 1500, 7)
	if err != nil {
		t.Fatalf("new client driver: %v", err)
	}
	sd, err := memdriver.New(net, "server", 1500, 7)
	if err != nil {
		t.Fatalf("new server driver: %v", err)
	}
	clientDisp := dispatch.New(time.Millisecond)
	serverDisp := dispatch.New(time.Millisecond)
	client := New(cd, cfg, nil, 1, clientDisp, nil)
	server := New(sd, cfg, nil, 2, serverDisp, onRequest)
	p := &pair{
		clientDrv:  cd,
		serverDrv:  sd,
		clientDisp: clientDisp,
		serverDisp: serverDisp,
		client:     client,
		server:     server,
	}
	return p, func() {
		cd.Close()
		sd.Close()
	}
}

func TestSinglePacketRequestResponse(t *testing.T) {
	cfg := config.Default()
	var gotReq []byte
	p, closeFn := newPair(t, cfg, func(r *rpc.ServerRpc) {
		gotReq = append([]byte(nil), r.Request.Bytes()...)
	})
	defer closeFn()

	var response []byte
	var callErr error
	done := make(chan struct{})
	req := []byte("ping")
	_, err := p.client.SendRequest(p.serverDrv.LocalAddress(), req, func(resp []byte, err error) {
		response, callErr = resp, err
		close(done)
	})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	replied := false
	completed := false
	for i := 0; i < 20 && !completed; i++ {
		p.clientDisp.Tick()
		p.serverDisp.Tick()
		if len(gotReq) > 0 && !replied {
			replied = true
			for _, sr := range serverRpcsFor(p.server) {
				if sr.Response == nil {
					if err := p.server.SendReply(sr.ID, []byte("pong")); err != nil {
						t.Fatalf("SendReply: %v", err)
					}
				}
			}
		}
		select {
		case <-done:
			completed = true
		default:
		}
	}
	if !completed {
		t.Fatal("request never completed")
	}
	if callErr != nil {
		t.Fatalf("unexpected error: %v", callErr)
	}
	if !bytes.Equal(gotReq, req) {
		t.Fatalf("server saw request %q, want %q", gotReq, req)
	}
	if !bytes.Equal(response, []byte("pong")) {
		t.Fatalf("client saw response %q, want pong", response)
	}
}

// serverRpcsFor snapshots the transport's in-progress server RPCs so tests
// can find the one to reply to.
func serverRpcsFor(tr *Transport) []*rpc.ServerRpc {
	var out []*rpc.ServerRpc
	tr.servers.Range(func(r *rpc.ServerRpc) { out = append(out, r) })
	return out
}

func TestMultiPacketRequestNoLoss(t *testing.T) {
	cfg := config.Default()
	cfg.RoundTripBytes = 200
	cfg.GrantIncrement = 200
	payload := bytes.Repeat([]byte("x"), 2000)

	var gotReq []byte
	replied := false
	p, closeFn := newPair(t, cfg, func(r *rpc.ServerRpc) {
		gotReq = append([]byte(nil), r.Request.Bytes()...)
	})
	defer closeFn()

	done := make(chan struct{})
	var response []byte
	_, err := p.client.SendRequest(p.serverDrv.LocalAddress(), payload, func(resp []byte, err error) {
		response = resp
		close(done)
	})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	for i := 0; i < 200; i++ {
		p.clientDisp.Tick()
		p.serverDisp.Tick()
		if len(gotReq) > 0 && !replied {
			for _, sr := range serverRpcsFor(p.server) {
				if sr.Response == nil {
					replied = true
					if err := p.server.SendReply(sr.ID, []byte("ok")); err != nil {
						t.Fatalf("SendReply: %v", err)
					}
				}
			}
		}
		select {
		case <-done:
			if !bytes.Equal(gotReq, payload) {
				t.Fatalf("server reassembled %d bytes, want %d", len(gotReq), len(payload))
			}
			if !bytes.Equal(response, []byte("ok")) {
				t.Fatalf("client got %q, want ok", response)
			}
			return
		default:
		}
	}
	t.Fatal("multi-packet exchange never completed")
}

func TestRequestSurvivesPacketLoss(t *testing.T) {
	cfg := config.Default()
	cfg.RoundTripBytes = 200
	cfg.GrantIncrement = 200
	cfg.TimeoutIntervals = 200
	cfg.PingIntervals = 5
	payload := bytes.Repeat([]byte("y"), 3000)

	net := memdriver.NewNetwork()
	cd, err := memdriver.New(net, "lossy-client", 1500, 7)
	if err != nil {
		t.Fatalf("new client driver: %v", err)
	}
	sd, err := memdriver.New(net, "lossy-server", 1500, 7)
	if err != nil {
		t.Fatalf("new server driver: %v", err)
	}
	defer cd.Close()
	defer sd.Close()
	net.SetDropRate(0.1)

	clientDisp := dispatch.New(time.Millisecond)
	serverDisp := dispatch.New(time.Millisecond)
	var gotReq []byte
	client := New(cd, cfg, nil, 1, clientDisp, nil)
	server := New(sd, cfg, nil, 2, serverDisp, func(r *rpc.ServerRpc) {
		gotReq = append([]byte(nil), r.Request.Bytes()...)
	})

	done := make(chan struct{})
	var response []byte
	replied := false
	_, err = client.SendRequest(sd.LocalAddress(), payload, func(resp []byte, err error) {
		response = resp
		close(done)
	})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	for i := 0; i < 5000; i++ {
		clientDisp.Tick()
		serverDisp.Tick()
		if len(gotReq) > 0 && !replied {
			for _, sr := range serverRpcsFor(server) {
				if sr.Response == nil {
					replied = true
					if err := server.SendReply(sr.ID, []byte("ack")); err != nil {
						t.Fatalf("SendReply: %v", err)
					}
				}
			}
		}
		select {
		case <-done:
			if !bytes.Equal(gotReq, payload) {
				t.Fatalf("server reassembled %d bytes under loss, want %d", len(gotReq), len(payload))
			}
			if !bytes.Equal(response, []byte("ack")) {
				t.Fatalf("client got %q, want ack", response)
			}
			return
		default:
		}
	}
	t.Fatal("request under packet loss never completed within tick budget")
}

// TestRestartResetsGrantedStateAndRetransmits exercises the RESTART
// handshake: a server that lost its request state sends a RESEND with the
// RESTART flag, and the client must forget whatever scheduled grant it had
// accumulated and retransmit from offset zero at the unscheduled priority,
// with the RPC completing normally afterward.
func TestRestartResetsGrantedStateAndRetransmits(t *testing.T) {
	cfg := config.Default()
	cfg.RoundTripBytes = 200
	cfg.GrantIncrement = 200
	payload := bytes.Repeat([]byte("r"), 2000)

	var gotReq []byte
	replied := false
	p, closeFn := newPair(t, cfg, func(r *rpc.ServerRpc) {
		gotReq = append([]byte(nil), r.Request.Bytes()...)
	})
	defer closeFn()

	done := make(chan struct{})
	var response []byte
	id, err := p.client.SendRequest(p.serverDrv.LocalAddress(), payload, func(resp []byte, err error) {
		response = resp
		close(done)
	})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	// Run enough ticks that the server grants scheduled bytes and the
	// client's TransmitLimit/SchedPriority move past their initial values.
	s := p.client.sessions[p.serverDrv.LocalAddress().String()]
	clientRpc, ok := s.Lookup(id)
	if !ok {
		t.Fatal("expected the request to be registered in the client session")
	}
	for i := 0; i < 50 && clientRpc.Request.TransmitLimit <= clientRpc.Request.UnscheduledBytes; i++ {
		p.clientDisp.Tick()
		p.serverDisp.Tick()
	}
	if clientRpc.Request.TransmitLimit <= clientRpc.Request.UnscheduledBytes {
		t.Fatal("expected the server to have granted scheduled bytes before restarting")
	}

	// Simulate the server losing all state and asking the client to
	// restart the request from scratch.
	p.server.servers.Remove(id)
	p.server.tmr.Unregister(id)
	buf := make([]byte, wire.ResendHeaderSize)
	wire.EncodeResend(buf, wire.ResendHeader{
		Common: wire.CommonHeader{Opcode: wire.Resend, RpcID: id, Flags: wire.FlagRestart},
	})
	p.client.handleResend(driver.Received{Source: p.serverDrv.LocalAddress(), Payload: buf})

	if clientRpc.Request.TransmitOffset != 0 {
		t.Fatalf("expected TransmitOffset reset to 0, got %d", clientRpc.Request.TransmitOffset)
	}
	if clientRpc.Request.TransmitLimit != clientRpc.Request.UnscheduledBytes {
		t.Fatalf("expected TransmitLimit reset to UnscheduledBytes (%d), got %d", clientRpc.Request.UnscheduledBytes, clientRpc.Request.TransmitLimit)
	}
	if clientRpc.Request.SchedPriority != 0 {
		t.Fatalf("expected SchedPriority cleared, got %d", clientRpc.Request.SchedPriority)
	}

	// The exchange should still complete under the same rpcId, transparent
	// to the caller, once the client retransmits and the server re-grants.
	gotReq = nil
	replied = false
	for i := 0; i < 400; i++ {
		p.clientDisp.Tick()
		p.serverDisp.Tick()
		if len(gotReq) > 0 && !replied {
			for _, sr := range serverRpcsFor(p.server) {
				if sr.Response == nil {
					replied = true
					if err := p.server.SendReply(sr.ID, []byte("restarted-ok")); err != nil {
						t.Fatalf("SendReply: %v", err)
					}
				}
			}
		}
		select {
		case <-done:
			if !bytes.Equal(gotReq, payload) {
				t.Fatalf("server reassembled %d bytes after restart, want %d", len(gotReq), len(payload))
			}
			if !bytes.Equal(response, []byte("restarted-ok")) {
				t.Fatalf("client got %q, want restarted-ok", response)
			}
			return
		default:
		}
	}
	t.Fatal("request never completed after RESTART")
}

func TestCancelRequestNotifiesCanceled(t *testing.T) {
	cfg := config.Default()
	p, closeFn := newPair(t, cfg, nil)
	defer closeFn()

	var gotErr error
	done := make(chan struct{})
	id, err := p.client.SendRequest(p.serverDrv.LocalAddress(), []byte("hello"), func(resp []byte, err error) {
		gotErr = err
		close(done)
	})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	p.client.CancelRequest(p.serverDrv.LocalAddress(), id)

	select {
	case <-done:
	default:
		t.Fatal("CancelRequest did not synchronously notify")
	}
	rerr, ok := gotErr.(*rpc.Error)
	if !ok || rerr.Kind != rpc.KindCanceled {
		t.Fatalf("expected KindCanceled, got %v", gotErr)
	}
}
