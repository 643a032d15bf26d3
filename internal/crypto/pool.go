package crypto

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fluxcp/fluxcp/internal/registry"
)

// MaxWorkers is the compile-time cap on crypto pool size (spec §4.3: "N,
// default 1, bounded by a compile-time cap"); the CLI's --crypto-threads
// flag is validated against it.
const MaxWorkers = 32

// Direction selects which half of the suite a Pool drives.
type Direction int

const (
	Encrypt Direction = iota
	Decrypt
)

// SubBlockCounter receives a running count of sub-blocks Process dispatches
// to the worker pool. A *prometheus.Counter satisfies this through its own
// Add method; Pool never imports the metrics package directly, it just
// reports through whatever counter the caller wires in.
type SubBlockCounter interface {
	Add(float64)
}

// Pool is a fixed pool of N worker goroutines, each bound to its own
// cipher context, dispatched round-robin over a shared counter (spec
// §4.3).
type Pool struct {
	slots []*slot
	next  atomic.Uint32

	reg  *registry.Registry
	wg   sync.WaitGroup
	errs chan error

	// Counter, if set, is incremented by Process with the number of
	// sub-blocks it dispatched. Left nil, it is simply never touched.
	Counter SubBlockCounter
}

// NewPool builds a Pool of n workers for suite/key/dir and registers each
// worker goroutine under the registry's Transport class.
func NewPool(reg *registry.Registry, suite Suite, key []byte, dir Direction, n int) (*Pool, error) {
	if n < 1 || n > MaxWorkers {
		return nil, fmt.Errorf("crypto: pool size %d out of range [1,%d]", n, MaxWorkers)
	}
	p := &Pool{
		reg:  reg,
		errs: make(chan error, n),
	}
	var internalDir direction
	if dir == Encrypt {
		internalDir = encrypt
	} else {
		internalDir = decrypt
	}
	for i := 0; i < n; i++ {
		stream, err := newStream(suite, key, internalDir)
		if err != nil {
			return nil, err
		}
		p.slots = append(p.slots, newSlot(i, stream))
	}
	for _, s := range p.slots {
		s := s
		h, err := reg.Spawn(fmt.Sprintf("crypto-worker-%d", s.id), registry.Transport)
		if err != nil {
			return nil, err
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer reg.Unregister(h)
			s.run(func() bool { return reg.ShuttingDown() })
			if s.err != nil {
				// Any CipherUpdate failure is fatal for the transfer: cipher
				// state has diverged and cannot be resynchronized (spec
				// §4.3). Surface it and request shutdown so the
				// orchestrator observes the thread-count drop.
				select {
				case p.errs <- s.err:
				default:
				}
				reg.BeginShutdown()
			}
		}()
	}
	return p, nil
}

// N returns the number of workers in the pool.
func (p *Pool) N() int {
	return len(p.slots)
}

// Submit dispatches one sub-block to the next slot in round-robin order.
func (p *Pool) Submit(in, out []byte, length int) {
	idx := int(p.next.Add(1)-1) % len(p.slots)
	p.slots[idx].submit(in, out, length)
}

// Drain acquires then releases every slot's data lock in order,
// guaranteeing every previously submitted sub-block has been fully
// processed before it returns (spec §4.3, the "crypto barrier").
func (p *Pool) Drain() error {
	for _, s := range p.slots {
		s.dataMu.Lock()
		err := s.err
		s.dataMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Err returns the first worker failure, if any, without blocking.
func (p *Pool) Err() error {
	select {
	case err := <-p.errs:
		return err
	default:
		return nil
	}
}

// Close waits for every worker goroutine to exit. Callers must have
// already requested shutdown (directly or via the registry) before calling
// Close, or it blocks forever.
func (p *Pool) Close() {
	p.wg.Wait()
}
