package wire

import (
	"errors"
	"testing"

	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

func TestDataHeaderRoundTrip(t *testing.T) {
	id := rpcid.New(7, 42)
	h := DataHeader{
		Common:           CommonHeader{Opcode: Data, RpcID: id, Flags: FlagFromClient | FlagRetransmission},
		TotalLength:      50000,
		Offset:           1460,
		UnscheduledBytes: 10000,
	}
	buf := make([]byte, DataHeaderSize)
	n := EncodeData(buf, h)
	if n != DataHeaderSize {
		t.Fatalf("EncodeData wrote %d bytes, want %d", n, DataHeaderSize)
	}
	got, err := DecodeData(buf)
	if err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDecodeDataShortBuffer(t *testing.T) {
	_, err := DecodeData(make([]byte, DataHeaderSize-1))
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
	var short *ErrShortBuffer
	if !errors.As(err, &short) {
		t.Fatalf("expected *ErrShortBuffer, got %T", err)
	}
}

func TestGrantHeaderRoundTrip(t *testing.T) {
	h := GrantHeader{
		Common:   CommonHeader{Opcode: Grant, RpcID: rpcid.New(1, 2), Flags: 0},
		Offset:   20000,
		Priority: 3,
	}
	buf := make([]byte, GrantHeaderSize)
	EncodeGrant(buf, h)
	got, err := DecodeGrant(buf)
	if err != nil {
		t.Fatalf("DecodeGrant: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestAbortForcesFromClient(t *testing.T) {
	h := AbortHeader{Common: CommonHeader{Opcode: Abort, RpcID: rpcid.New(3, 4), Flags: 0}}
	buf := make([]byte, AbortHeaderSize)
	EncodeAbort(buf, h)
	got, err := DecodeAbort(buf)
	if err != nil {
		t.Fatalf("DecodeAbort: %v", err)
	}
	if !got.Common.FromClient() {
		t.Fatal("expected FROM_CLIENT to be forced on ABORT")
	}
}

func TestAllDataHeaderRoundTrip(t *testing.T) {
	h := AllDataHeader{
		Common:        CommonHeader{Opcode: ALLData, RpcID: rpcid.New(9, 9), Flags: FlagFromClient},
		MessageLength: 100,
	}
	buf := make([]byte, AllDataHeaderSize)
	EncodeAllData(buf, h)
	got, err := DecodeAllData(buf)
	if err != nil {
		t.Fatalf("DecodeAllData: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestResendHeaderRoundTrip(t *testing.T) {
	h := ResendHeader{
		Common:   CommonHeader{Opcode: Resend, RpcID: rpcid.New(1, 1), Flags: FlagRestart},
		Offset:   4380,
		Length:   1460,
		Priority: 5,
	}
	buf := make([]byte, ResendHeaderSize)
	EncodeResend(buf, h)
	got, err := DecodeResend(buf)
	if err != nil {
		t.Fatalf("DecodeResend: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}
