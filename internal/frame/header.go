package frame

import (
	"encoding/binary"
	"fmt"
)

// BlockPayloadLen is the fixed upper bound on bytes carried by a single
// DATA frame: 67,108,848 bytes, 16 bytes short of 64 MiB (spec §6).
const BlockPayloadLen = 67_108_848

// HeaderLen is the on-wire size of a Header, byte-exact and independent of
// any Go struct padding (spec §9, Open Question 1): 1 (ctrl_msg) + 8
// (data_len) + 4 (mtime_sec) + 8 (mtime_nsec) + 1 (type) = 22 bytes,
// little-endian throughout. This implementation makes no claim of wire
// compatibility with the original C++ tool's padded struct layout.
const HeaderLen = 1 + 8 + 4 + 8 + 1

// Header is a fixed-layout frame header (spec §3, §6).
type Header struct {
	Kind      Kind
	DataLen   uint64
	MtimeSec  uint32
	MtimeNsec uint64
	CtrlMsg   CtrlMsg // valid only when Kind == Control
}

// NewDataHeader builds a header for a frame with no associated mtime.
func NewDataHeader(kind Kind, dataLen uint64) Header {
	return Header{Kind: kind, DataLen: dataLen}
}

// NewControlHeader builds a CONTROL frame header carrying a sub-message.
func NewControlHeader(ctrl CtrlMsg) Header {
	return Header{Kind: Control, CtrlMsg: ctrl}
}

// Validate checks the invariants spec §3 places on a Header: a defined
// kind, and a payload length within the block bound.
func (h Header) Validate() error {
	if !h.Kind.Valid() {
		return fmt.Errorf("frame: invalid header kind %d", h.Kind)
	}
	if h.DataLen > BlockPayloadLen {
		return fmt.Errorf("frame: data_len %d exceeds block payload bound %d", h.DataLen, BlockPayloadLen)
	}
	return nil
}

// Marshal encodes h into the canonical 22-byte wire layout:
// ctrl_msg(1) | data_len(8) | mtime_sec(4) | mtime_nsec(8) | type(1).
func (h Header) Marshal() [HeaderLen]byte {
	var b [HeaderLen]byte
	b[0] = byte(h.CtrlMsg)
	binary.LittleEndian.PutUint64(b[1:9], h.DataLen)
	binary.LittleEndian.PutUint32(b[9:13], h.MtimeSec)
	binary.LittleEndian.PutUint64(b[13:21], h.MtimeNsec)
	b[21] = byte(h.Kind)
	return b
}

// Unmarshal decodes a Header from exactly HeaderLen bytes.
func Unmarshal(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: short header: got %d bytes, want %d", len(b), HeaderLen)
	}
	h := Header{
		CtrlMsg:   CtrlMsg(b[0]),
		DataLen:   binary.LittleEndian.Uint64(b[1:9]),
		MtimeSec:  binary.LittleEndian.Uint32(b[9:13]),
		MtimeNsec: binary.LittleEndian.Uint64(b[13:21]),
		Kind:      Kind(b[21]),
	}
	return h, h.Validate()
}
