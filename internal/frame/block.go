package frame

// Block is a contiguous buffer sized HeaderLen+BlockPayloadLen: the header
// occupies the prelude, Data aliases the payload region that follows it
// (spec §3). Reusing one Block per driver avoids an allocation per frame on
// the hot DATA path.
type Block struct {
	buf  [HeaderLen + BlockPayloadLen]byte
	Data []byte
}

// NewBlock returns a Block with Data aliasing its payload region.
func NewBlock() *Block {
	b := &Block{}
	b.Data = b.buf[HeaderLen:]
	return b
}

// SetHeader writes h into the block's prelude.
func (b *Block) SetHeader(h Header) {
	copy(b.buf[:HeaderLen], h.Marshal()[:])
}

// Frame returns the header plus the first n bytes of payload as one
// contiguous slice, ready for a single write.
func (b *Block) Frame(n int) []byte {
	return b.buf[:HeaderLen+n]
}
