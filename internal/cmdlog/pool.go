package cmdlog

import "sync"

// scratchPool hands out reusable byte slices for callers that need a
// temporary buffer to build a record in before calling RecordWrite (for
// example, a codec assembling a header+body pair). Grounded on the
// teacher's sync.Pool-based byte-slice pooling in
// kvstore/memory_pool.go (bufferPool there pools []byte the same way
// to avoid a per-record allocation on the hot write path).
type scratchPool struct {
	pool sync.Pool
}

func newScratchPool(defaultSize int) *scratchPool {
	return &scratchPool{
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, 0, defaultSize)
			},
		},
	}
}

func (p *scratchPool) get(n int) []byte {
	buf := p.pool.Get().([]byte)
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

func (p *scratchPool) put(buf []byte) {
	p.pool.Put(buf[:0]) //nolint:staticcheck // reset length, keep capacity
}
