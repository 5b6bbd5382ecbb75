package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/strand-protocol/strand-transport/pkg/rpcid"
)

// ErrShortBuffer is returned when a Decode function is given fewer bytes
// than its header requires.
type ErrShortBuffer struct {
	Opcode Opcode
	Need   int
	Have   int
}

func (e *ErrShortBuffer) Error() string {
	return fmt.Sprintf("wire: %s header needs %d bytes, have %d", e.Opcode, e.Need, e.Have)
}

func putCommon(buf []byte, h CommonHeader) int {
	buf[0] = byte(h.Opcode)
	binary.LittleEndian.PutUint64(buf[1:9], h.RpcID.ClientID)
	binary.LittleEndian.PutUint64(buf[9:17], h.RpcID.Sequence)
	buf[17] = h.Flags
	return CommonHeaderSize
}

func getCommon(buf []byte) CommonHeader {
	return CommonHeader{
		Opcode: Opcode(buf[0]),
		RpcID:  rpcid.New(binary.LittleEndian.Uint64(buf[1:9]), binary.LittleEndian.Uint64(buf[9:17])),
		Flags:  buf[17],
	}
}

// EncodeAllData writes an AllDataHeader into buf, which must be at least
// AllDataHeaderSize bytes long, and returns the number of bytes written.
func EncodeAllData(buf []byte, h AllDataHeader) int {
	n := putCommon(buf, h.Common)
	binary.LittleEndian.PutUint16(buf[n:n+2], h.MessageLength)
	return n + 2
}

// DecodeAllData parses an AllDataHeader from the start of buf.
func DecodeAllData(buf []byte) (AllDataHeader, error) {
	if len(buf) < AllDataHeaderSize {
		return AllDataHeader{}, &ErrShortBuffer{ALLData, AllDataHeaderSize, len(buf)}
	}
	return AllDataHeader{
		Common:        getCommon(buf),
		MessageLength: binary.LittleEndian.Uint16(buf[CommonHeaderSize : CommonHeaderSize+2]),
	}, nil
}

// EncodeData writes a DataHeader into buf, which must be at least
// DataHeaderSize bytes long, and returns the number of bytes written.
func EncodeData(buf []byte, h DataHeader) int {
	n := putCommon(buf, h.Common)
	binary.LittleEndian.PutUint32(buf[n:n+4], h.TotalLength)
	binary.LittleEndian.PutUint32(buf[n+4:n+8], h.Offset)
	binary.LittleEndian.PutUint32(buf[n+8:n+12], h.UnscheduledBytes)
	return n + 12
}

// DecodeData parses a DataHeader from the start of buf.
func DecodeData(buf []byte) (DataHeader, error) {
	if len(buf) < DataHeaderSize {
		return DataHeader{}, &ErrShortBuffer{Data, DataHeaderSize, len(buf)}
	}
	n := CommonHeaderSize
	return DataHeader{
		Common:           getCommon(buf),
		TotalLength:      binary.LittleEndian.Uint32(buf[n : n+4]),
		Offset:           binary.LittleEndian.Uint32(buf[n+4 : n+8]),
		UnscheduledBytes: binary.LittleEndian.Uint32(buf[n+8 : n+12]),
	}, nil
}

// EncodeGrant writes a GrantHeader into buf, which must be at least
// GrantHeaderSize bytes long, and returns the number of bytes written.
func EncodeGrant(buf []byte, h GrantHeader) int {
	n := putCommon(buf, h.Common)
	binary.LittleEndian.PutUint32(buf[n:n+4], h.Offset)
	buf[n+4] = h.Priority
	return n + 5
}

// DecodeGrant parses a GrantHeader from the start of buf.
func DecodeGrant(buf []byte) (GrantHeader, error) {
	if len(buf) < GrantHeaderSize {
		return GrantHeader{}, &ErrShortBuffer{Grant, GrantHeaderSize, len(buf)}
	}
	n := CommonHeaderSize
	return GrantHeader{
		Common:   getCommon(buf),
		Offset:   binary.LittleEndian.Uint32(buf[n : n+4]),
		Priority: buf[n+4],
	}, nil
}

// EncodeResend writes a ResendHeader into buf, which must be at least
// ResendHeaderSize bytes long, and returns the number of bytes written.
func EncodeResend(buf []byte, h ResendHeader) int {
	n := putCommon(buf, h.Common)
	binary.LittleEndian.PutUint32(buf[n:n+4], h.Offset)
	binary.LittleEndian.PutUint32(buf[n+4:n+8], h.Length)
	buf[n+8] = h.Priority
	return n + 9
}

// DecodeResend parses a ResendHeader from the start of buf.
func DecodeResend(buf []byte) (ResendHeader, error) {
	if len(buf) < ResendHeaderSize {
		return ResendHeader{}, &ErrShortBuffer{Resend, ResendHeaderSize, len(buf)}
	}
	n := CommonHeaderSize
	return ResendHeader{
		Common:   getCommon(buf),
		Offset:   binary.LittleEndian.Uint32(buf[n : n+4]),
		Length:   binary.LittleEndian.Uint32(buf[n+4 : n+8]),
		Priority: buf[n+8],
	}, nil
}

// EncodeBusy writes a BusyHeader into buf, which must be at least
// BusyHeaderSize bytes long, and returns the number of bytes written.
func EncodeBusy(buf []byte, h BusyHeader) int { return putCommon(buf, h.Common) }

// DecodeBusy parses a BusyHeader from the start of buf.
func DecodeBusy(buf []byte) (BusyHeader, error) {
	if len(buf) < BusyHeaderSize {
		return BusyHeader{}, &ErrShortBuffer{Busy, BusyHeaderSize, len(buf)}
	}
	return BusyHeader{Common: getCommon(buf)}, nil
}

// EncodeAbort writes an AbortHeader into buf, which must be at least
// AbortHeaderSize bytes long, and returns the number of bytes written.
// Common.Flags is forced to carry FlagFromClient regardless of the input,
// since ABORT is only ever sent client to server.
func EncodeAbort(buf []byte, h AbortHeader) int {
	h.Common.Flags |= FlagFromClient
	return putCommon(buf, h.Common)
}

// DecodeAbort parses an AbortHeader from the start of buf.
func DecodeAbort(buf []byte) (AbortHeader, error) {
	if len(buf) < AbortHeaderSize {
		return AbortHeader{}, &ErrShortBuffer{Abort, AbortHeaderSize, len(buf)}
	}
	return AbortHeader{Common: getCommon(buf)}, nil
}

// EncodeLogTimeTrace writes a LogTimeTraceHeader into buf, which must be at
// least LogTimeTraceHeaderSize bytes long, and returns the number of bytes
// written.
func EncodeLogTimeTrace(buf []byte, h LogTimeTraceHeader) int { return putCommon(buf, h.Common) }

// DecodeLogTimeTrace parses a LogTimeTraceHeader from the start of buf.
func DecodeLogTimeTrace(buf []byte) (LogTimeTraceHeader, error) {
	if len(buf) < LogTimeTraceHeaderSize {
		return LogTimeTraceHeader{}, &ErrShortBuffer{LogTimeTrace, LogTimeTraceHeaderSize, len(buf)}
	}
	return LogTimeTraceHeader{Common: getCommon(buf)}, nil
}

// PeekOpcode reads just the opcode byte from buf without validating length
// against any particular header size. Used by the dispatcher to decide
// which Decode function to call next.
func PeekOpcode(buf []byte) (Opcode, error) {
	if len(buf) < 1 {
		return 0, fmt.Errorf("wire: empty packet")
	}
	return Opcode(buf[0]), nil
}
