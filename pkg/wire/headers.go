package wire

import "github.com/strand-protocol/strand-transport/pkg/rpcid"

// CommonHeaderSize is the packed, wire size in bytes of CommonHeader:
// 1 (opcode) + 8 (clientId) + 8 (sequence) + 1 (flags).
const CommonHeaderSize = 1 + 8 + 8 + 1

// CommonHeader carries the fields present on every packet type.
type CommonHeader struct {
	Opcode Opcode
	RpcID  rpcid.ID
	Flags  uint8
}

// FromClient reports whether the FROM_CLIENT flag is set.
func (h CommonHeader) FromClient() bool { return h.Flags&FlagFromClient != 0 }

// AllDataHeaderSize is the packed wire size of AllDataHeader.
const AllDataHeaderSize = CommonHeaderSize + 2

// AllDataHeader precedes a complete request or response message that fits
// in a single packet.
type AllDataHeader struct {
	Common        CommonHeader
	MessageLength uint16 // total bytes in the message, i.e. bytes following this header
}

// DataHeaderSize is the packed wire size of DataHeader.
const DataHeaderSize = CommonHeaderSize + 4 + 4 + 4

// DataHeader precedes one fragment of a multi-packet message.
type DataHeader struct {
	Common           CommonHeader
	TotalLength      uint32 // total bytes in the message (not this packet)
	Offset           uint32 // offset within the message of this fragment's first byte
	UnscheduledBytes uint32 // # unscheduled bytes negotiated for this message
}

// GrantHeaderSize is the packed wire size of GrantHeader.
const GrantHeaderSize = CommonHeaderSize + 4 + 1

// GrantHeader raises the sender's transmit limit for a message.
type GrantHeader struct {
	Common   CommonHeader
	Offset   uint32 // sender may now transmit all data up to (not including) this offset
	Priority uint8  // priority to use for bytes up to Offset
}

// ResendHeaderSize is the packed wire size of ResendHeader.
const ResendHeaderSize = CommonHeaderSize + 4 + 4 + 1

// ResendHeader asks the sender to retransmit a byte range.
type ResendHeader struct {
	Common   CommonHeader
	Offset   uint32 // first byte to retransmit
	Length   uint32 // number of bytes to retransmit (may exceed the message size)
	Priority uint8  // priority to use, ignored when Common.Flags has FlagRestart
}

// BusyHeaderSize is the packed wire size of BusyHeader.
const BusyHeaderSize = CommonHeaderSize

// BusyHeader is a liveness probe with no payload.
type BusyHeader struct {
	Common CommonHeader
}

// AbortHeaderSize is the packed wire size of AbortHeader.
const AbortHeaderSize = CommonHeaderSize

// AbortHeader tells the server the client cancelled the RPC.
type AbortHeader struct {
	Common CommonHeader // Flags always carries FlagFromClient
}

// LogTimeTraceHeaderSize is the packed wire size of LogTimeTraceHeader.
const LogTimeTraceHeaderSize = CommonHeaderSize

// LogTimeTraceHeader asks the recipient to dump its time trace. Debug only.
type LogTimeTraceHeader struct {
	Common CommonHeader
}
