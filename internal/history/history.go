// Package history keeps a bounded, per-neuron record of recent spikes so that
// delayed synapses can look up their source exactly delay steps back.
package history

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
)

var (
	ErrInvalidDelay = errors.New("delay must be at least 1")
	ErrOutOfRange   = errors.New("history query out of range")
)

type row struct {
	step      int
	bits      []uint64
	ids       []int32
	delivered bool
}

// History is a ring of MaxHistory rows, one per step. Each row stores the
// step's spikes both as a bitset (for point queries) and as an ascending id
// list (for batched delivery), plus whether that batch was delivered.
type History struct {
	n       int
	rows    []row
	current int

	pending []int32
	stamp   []uint32
	gen     uint32
}

// New sizes the ring for n neurons and the given conduction delay; it keeps
// delay+1 steps so the row delay steps back is never overwritten by the
// current one.
func New(n, delay int) (*History, error) {
	if delay < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDelay, delay)
	}
	if n < 0 {
		return nil, fmt.Errorf("history: negative neuron count %d", n)
	}
	h := &History{
		n:       n,
		rows:    make([]row, delay+1),
		current: -1,
		pending: make([]int32, n),
		stamp:   make([]uint32, n),
	}
	words := (n + 63) / 64
	for i := range h.rows {
		h.rows[i] = row{step: -1, bits: make([]uint64, words), delivered: true}
	}
	return h, nil
}

// RequiredBytes is the worst-case footprint of a History, assuming every
// neuron may spike every step.
func RequiredBytes(n, delay int) uint64 {
	words := uint64((n + 63) / 64)
	perRow := words*8 + uint64(n)*4
	return uint64(delay+1)*perRow + uint64(n)*8
}

func (h *History) MaxHistory() int { return len(h.rows) }

func (h *History) Len() int { return h.n }

// Current is the last recorded step, or -1.
func (h *History) Current() int { return h.current }

// Record stores the spikes of step, which must be later than the last
// recorded step. ids must be ascending and in [0, Len()). Steps skipped since
// the last call are recorded as silent.
func (h *History) Record(step int, ids []int32) {
	if step <= h.current {
		panic(fmt.Sprintf("history: step %d recorded after step %d", step, h.current))
	}
	from := max(h.current+1, step-len(h.rows)+1)
	for s := from; s <= step; s++ {
		h.clear(s % len(h.rows))
	}

	r := &h.rows[step%len(h.rows)]
	r.step = step
	r.ids = append(r.ids[:0], ids...)
	r.delivered = len(ids) == 0
	for _, id := range ids {
		r.bits[id>>6] |= 1 << (uint(id) & 63)
		h.pending[id]++
	}
	h.current = step
}

func (h *History) clear(i int) {
	r := &h.rows[i]
	for _, id := range r.ids {
		r.bits[id>>6] &^= 1 << (uint(id) & 63)
		if !r.delivered {
			h.pending[id]--
		}
	}
	r.ids = r.ids[:0]
	r.step = -1
	r.delivered = true
}

func (h *History) rowAt(stepsAgo int) *row {
	if h.current < 0 || stepsAgo < 0 || stepsAgo >= len(h.rows) || stepsAgo > h.current {
		return nil
	}
	r := &h.rows[(h.current-stepsAgo)%len(h.rows)]
	if r.step != h.current-stepsAgo {
		return nil
	}
	return r
}

// Query reports whether neuron spiked stepsAgo steps before the last
// recorded step.
func (h *History) Query(neuron, stepsAgo int) (bool, error) {
	if neuron < 0 || neuron >= h.n {
		return false, fmt.Errorf("%w: neuron %d of %d", ErrOutOfRange, neuron, h.n)
	}
	if stepsAgo < 0 || stepsAgo >= len(h.rows) {
		return false, fmt.Errorf("%w: %d steps ago with %d rows", ErrOutOfRange, stepsAgo, len(h.rows))
	}
	if stepsAgo > h.current {
		return false, fmt.Errorf("%w: %d steps ago precedes the first record", ErrOutOfRange, stepsAgo)
	}
	return h.Spiked(neuron, stepsAgo), nil
}

// Spiked is Query without argument checks; out-of-range lookups return false.
func (h *History) Spiked(neuron, stepsAgo int) bool {
	r := h.rowAt(stepsAgo)
	if r == nil {
		return false
	}
	return r.bits[neuron>>6]&(1<<(uint(neuron)&63)) != 0
}

// Mask returns up to 64 bits of neuron's history: bit k is set when it
// spiked k steps ago.
func (h *History) Mask(neuron int) uint64 {
	var m uint64
	for k := 0; k < min(len(h.rows), 64); k++ {
		if h.Spiked(neuron, k) {
			m |= 1 << k
		}
	}
	return m
}

// IDs returns the ascending ids that spiked stepsAgo steps back. The slice
// aliases the ring and is valid until the next Record.
func (h *History) IDs(stepsAgo int) []int32 {
	r := h.rowAt(stepsAgo)
	if r == nil {
		return nil
	}
	return r.ids
}

// Due returns the ids of the row stepsAgo back if they have not been marked
// delivered yet, and nil otherwise. Like IDs, the slice aliases the ring.
func (h *History) Due(stepsAgo int) []int32 {
	r := h.rowAt(stepsAgo)
	if r == nil || r.delivered {
		return nil
	}
	return r.ids
}

// Pending is the number of recorded spikes of neuron not yet delivered. It is
// bookkeeping for callers; delivery itself walks rows through Due.
func (h *History) Pending(neuron int) int {
	return int(h.pending[neuron])
}

// MarkDelivered marks the spikes of the row stepsAgo back as delivered.
func (h *History) MarkDelivered(stepsAgo int) {
	r := h.rowAt(stepsAgo)
	if r == nil || r.delivered {
		return
	}
	for _, id := range r.ids {
		h.pending[id]--
	}
	r.delivered = true
}

// Active appends to dst the ascending ids that spiked at least once within
// the window and returns the extended slice.
func (h *History) Active(dst []int32) []int32 {
	h.gen++
	if h.gen == 0 {
		clear(h.stamp)
		h.gen = 1
	}
	start := len(dst)
	for i := range h.rows {
		r := &h.rows[i]
		if r.step < 0 {
			continue
		}
		for _, id := range r.ids {
			if h.stamp[id] != h.gen {
				h.stamp[id] = h.gen
				dst = append(dst, id)
			}
		}
	}
	slices.Sort(dst[start:])
	return dst
}

// Count is the number of spikes of neuron within the window.
func (h *History) Count(neuron int) int {
	if len(h.rows) <= 64 {
		return bits.OnesCount64(h.Mask(neuron))
	}
	c := 0
	for k := range h.rows {
		if h.Spiked(neuron, k) {
			c++
		}
	}
	return c
}

// Reset forgets every recorded step.
func (h *History) Reset() {
	for i := range h.rows {
		h.clear(i)
	}
	clear(h.pending)
	h.current = -1
}
