// internal/imaging/pool.go
package imaging

import (
	"errors"
	"sync"
)

// ErrDoubleFree is returned when a buffer is handed back to its pool twice.
var ErrDoubleFree = errors.New("buffer already freed")

// Pool hands out byte buffers and keeps count of what is still outstanding,
// so every processing path can be checked for leaks and double frees.
type Pool struct {
	mu          sync.Mutex
	allocs      int64
	frees       int64
	outstanding int64
	bytes       int64
}

// PoolStats is a snapshot of a Pool's counters.
type PoolStats struct {
	Allocs           int64 `json:"allocs"`
	Frees            int64 `json:"frees"`
	Outstanding      int64 `json:"outstanding"`
	BytesOutstanding int64 `json:"bytes_outstanding"`
}

func NewPool() *Pool {
	return &Pool{}
}

// Alloc returns a zeroed buffer of n bytes.
func (p *Pool) Alloc(n int) []byte {
	p.track(n)
	return make([]byte, n)
}

// Adopt accounts for a buffer allocated elsewhere (by an encoder, say) as if
// it had come from Alloc.
func (p *Pool) Adopt(b []byte) []byte {
	p.track(len(b))
	return b
}

func (p *Pool) track(n int) {
	p.mu.Lock()
	p.allocs++
	p.outstanding++
	p.bytes += int64(n)
	p.mu.Unlock()
}

// Free returns b to the pool.
func (p *Pool) Free(b []byte) {
	p.mu.Lock()
	p.frees++
	p.outstanding--
	p.bytes -= int64(len(b))
	p.mu.Unlock()
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Allocs:           p.allocs,
		Frees:            p.frees,
		Outstanding:      p.outstanding,
		BytesOutstanding: p.bytes,
	}
}
