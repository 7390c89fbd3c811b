// Package mempool recycles fixed-length float32 tensor buffers so that
// steady-state inference does not allocate a fresh input tensor per call.
package mempool

import (
	"sync"
	"sync/atomic"
)

// TensorPool hands out []float32 buffers of exactly one length.
type TensorPool struct {
	length int
	pool   sync.Pool
	gets   atomic.Int64
	misses atomic.Int64
}

// Stats reports pool usage counters.
type Stats struct {
	Length int
	Gets   int64
	Misses int64 // gets that had to allocate
}

var pools sync.Map // length (int) -> *TensorPool

// NewTensorPool creates a pool for buffers of the given length.
func NewTensorPool(length int) *TensorPool {
	if length < 0 {
		length = 0
	}
	p := &TensorPool{length: length}
	p.pool.New = func() any {
		p.misses.Add(1)
		buf := make([]float32, p.length)
		return &buf
	}
	return p
}

// ForLength returns the shared pool for buffers of length n.
func ForLength(n int) *TensorPool {
	if p, ok := pools.Load(n); ok {
		return p.(*TensorPool) //nolint:forcetypeassert // only *TensorPool is stored
	}
	p, _ := pools.LoadOrStore(n, NewTensorPool(n))
	return p.(*TensorPool) //nolint:forcetypeassert // only *TensorPool is stored
}

// Length returns the buffer length served by the pool.
func (p *TensorPool) Length() int { return p.length }

// Get returns a buffer of Length() elements. Contents are unspecified.
func (p *TensorPool) Get() []float32 {
	p.gets.Add(1)
	bp, ok := p.pool.Get().(*[]float32)
	if !ok || cap(*bp) < p.length {
		buf := make([]float32, p.length)
		return buf
	}
	return (*bp)[:p.length]
}

// Put returns buf to the pool. Buffers of a different capacity and nil
// slices are ignored.
func (p *TensorPool) Put(buf []float32) {
	if buf == nil || cap(buf) != p.length {
		return
	}
	buf = buf[:p.length]
	p.pool.Put(&buf)
}

// Stats returns a snapshot of the usage counters.
func (p *TensorPool) Stats() Stats {
	return Stats{Length: p.length, Gets: p.gets.Load(), Misses: p.misses.Load()}
}
