package device

import "sync"

// Pool dispatches data-parallel work across a fixed number of lanes.
type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	return &Pool{workers: max(workers, 1)}
}

func (p *Pool) Workers() int { return p.workers }

// Chunks is the number of chunks ForEach splits n items into.
func (p *Pool) Chunks(n int) int {
	if n <= 0 {
		return 0
	}
	return min(p.workers, n)
}

// ForEach splits [0, n) into Chunks(n) contiguous ranges, runs fn on each in
// parallel and returns once all of them are done. Chunk c always covers the
// same range for a given n.
func (p *Pool) ForEach(n int, fn func(chunk, lo, hi int)) {
	chunks := p.Chunks(n)
	if chunks == 0 {
		return
	}
	if chunks == 1 {
		fn(0, 0, n)
		return
	}

	var wg sync.WaitGroup
	wg.Add(chunks)
	for c := 0; c < chunks; c++ {
		lo, hi := ChunkRange(n, chunks, c)
		go func() {
			defer wg.Done()
			fn(c, lo, hi)
		}()
	}
	wg.Wait()
}

// ChunkRange is the range of chunk c when n items are split into k chunks.
func ChunkRange(n, k, c int) (lo, hi int) {
	size, rem := n/k, n%k
	lo = c*size + min(c, rem)
	hi = lo + size
	if c < rem {
		hi++
	}
	return lo, hi
}
