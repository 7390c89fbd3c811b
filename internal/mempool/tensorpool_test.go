package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorPoolGetLength(t *testing.T) {
	for _, n := range []int{0, 1, 224 * 224 * 3, 300 * 300 * 3} {
		p := NewTensorPool(n)
		buf := p.Get()
		assert.Len(t, buf, n)
		assert.Equal(t, n, p.Length())
		p.Put(buf)
	}
}

func TestTensorPoolNegativeLength(t *testing.T) {
	p := NewTensorPool(-5)
	assert.Equal(t, 0, p.Length())
	assert.Empty(t, p.Get())
}

func TestTensorPoolPutIgnoresForeignBuffers(t *testing.T) {
	p := NewTensorPool(12)
	p.Put(nil)
	p.Put(make([]float32, 5))
	p.Put(make([]float32, 12, 24))

	buf := p.Get()
	assert.Len(t, buf, 12)
	assert.Equal(t, 12, cap(buf))
}

func TestTensorPoolReusesAfterPut(t *testing.T) {
	p := NewTensorPool(8)
	buf := p.Get()
	buf[0] = 42
	p.Put(buf)

	again := p.Get()
	require.Len(t, again, 8)
	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.LessOrEqual(t, stats.Misses, int64(2))
}

func TestForLengthSharesPools(t *testing.T) {
	a := ForLength(300 * 300 * 3)
	b := ForLength(300 * 300 * 3)
	c := ForLength(224 * 224 * 3)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestTensorPoolConcurrentUse(t *testing.T) {
	p := ForLength(64)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				buf := p.Get()
				assert.Len(t, buf, 64)
				buf[63] = 1
				p.Put(buf)
			}
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, p.Stats().Gets, int64(1600))
}
