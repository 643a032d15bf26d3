package crypto

import "github.com/fluxcp/fluxcp/internal/frame"

// SubBlockSize is the unit of dispatch to a crypto worker: one N-th of the
// block payload bound (spec §6 GLOSSARY). It depends only on the pool
// size, never on the length of any particular buffer, so sender and
// receiver agree on the same partition without exchanging it (spec §4.4,
// "the ordering guarantee").
func SubBlockSize(n int) int {
	return frame.BlockPayloadLen / n
}

// Process partitions buf into SubBlockSize(p.N()) chunks, submits each to
// the pool round-robin, and drains — applying the cipher to the whole
// buffer in place. Both sides of a transfer must call this with pools of
// the same size for the partition to line up identically.
func (p *Pool) Process(buf []byte) error {
	subSize := SubBlockSize(p.N())
	if subSize <= 0 {
		subSize = len(buf)
	}
	var dispatched int
	for offset := 0; offset < len(buf); offset += subSize {
		end := offset + subSize
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[offset:end]
		p.Submit(chunk, chunk, len(chunk))
		dispatched++
	}
	if p.Counter != nil && dispatched > 0 {
		p.Counter.Add(float64(dispatched))
	}
	return p.Drain()
}
