package protocol

import "sync"

// scratchDefaultSize is the starting capacity of a pooled scratch
// buffer; most packet payloads fit comfortably without a regrow.
const scratchDefaultSize = 4096

// scratchBuffer is a reusable byte buffer acquired from bufPool. It
// mirrors mebo's internal/pool.ByteBuffer: a thin wrapper that grows
// geometrically and is reset to zero length (not zero capacity) when
// acquired from the pool, so the backing array survives across calls.
type scratchBuffer struct {
	b []byte
}

func (s *scratchBuffer) reset() { s.b = s.b[:0] }

func (s *scratchBuffer) grow(extra int) {
	if cap(s.b)-len(s.b) >= extra {
		return
	}
	grown := make([]byte, len(s.b), 2*(len(s.b)+extra))
	copy(grown, s.b)
	s.b = grown
}

// bufPool is the thread-local (in Go: per-goroutine via sync.Pool)
// scratch allocator referenced by §5's "frame codec scratch buffers
// are acquired per call from a thread-local pool".
var bufPool = sync.Pool{
	New: func() any {
		return &scratchBuffer{b: make([]byte, 0, scratchDefaultSize)}
	},
}

func getScratch() *scratchBuffer {
	buf := bufPool.Get().(*scratchBuffer)
	buf.reset()
	return buf
}

func putScratch(buf *scratchBuffer) {
	const maxRetained = 256 * 1024
	if cap(buf.b) > maxRetained {
		return // don't let one oversized payload bloat the pool forever
	}
	bufPool.Put(buf)
}
