// Package adjacency materializes the outgoing neighbor list of every neuron
// from a layout's connection rules.
package adjacency

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"snnsim/internal/device"
	"snnsim/internal/layout"
	"snnsim/internal/random"
)

// Sentinel marks an unused edge slot.
const Sentinel int32 = -1

type Options struct {
	Seed uint64
	// First and Last select the source neurons to materialize. Last <= 0
	// means the end of the layout.
	First  int
	Last   int
	Pool   *device.Pool
	Logger *slog.Logger
}

// List is a fixed-width neighbor list: neuron i owns slots
// [(i-First)*Width, (i-First+1)*Width) of Edges, of which the first
// Degree(i) hold ascending global destination ids.
type List struct {
	width  int
	first  int
	last   int
	edges  []int32
	counts []int32

	overflowNeurons int64
	droppedEdges    int64
}

// RequiredBytes is the memory a list of n source neurons with the given
// width occupies.
func RequiredBytes(n, width int) uint64 {
	return uint64(n) * (uint64(width) + 1) * 4
}

type rule struct {
	layout.Edge
	scale float64
}

// Generate samples every edge of every rule independently with the rule's
// probability. Each source neuron draws from its own stream seeded by
// (Seed, neuron id), so the result does not depend on worker count or on how
// the source range is partitioned. Edges past a neuron's Width are dropped
// and counted in Overflow.
func Generate(ctx context.Context, l *layout.Layout, opts Options) (*List, error) {
	first, last := opts.First, opts.Last
	if last <= 0 {
		last = l.Size()
	}
	if first < 0 || first >= last || last > l.Size() {
		return nil, fmt.Errorf("adjacency: source range [%d,%d) outside [0,%d)", first, last, l.Size())
	}
	pool := opts.Pool
	if pool == nil {
		pool = device.NewPool(1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	edges := l.Edges()
	rules := make([]rule, len(edges))
	for i, e := range edges {
		rules[i] = rule{Edge: e}
		if e.P < 1 {
			rules[i].scale = -1 / math.Log1p(-float64(e.P))
		}
	}

	n := last - first
	width := l.MaxDegree()
	adj := &List{
		width:  width,
		first:  first,
		last:   last,
		edges:  make([]int32, n*width),
		counts: make([]int32, n),
	}

	chunks := pool.Chunks(n)
	overflow := make([]int64, chunks)
	dropped := make([]int64, chunks)
	pool.ForEach(n, func(chunk, lo, hi int) {
		for k := lo; k < hi; k++ {
			if k%1024 == 0 && ctx.Err() != nil {
				return
			}
			d := adj.sample(first+k, rules, opts.Seed)
			if d > 0 {
				overflow[chunk]++
				dropped[chunk] += d
			}
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for c := range overflow {
		adj.overflowNeurons += overflow[c]
		adj.droppedEdges += dropped[c]
	}
	if adj.overflowNeurons > 0 {
		logger.Warn("adjacency overflow: edges dropped past max degree",
			"neurons", adj.overflowNeurons,
			"edges", adj.droppedEdges,
			"width", width,
		)
	}
	return adj, nil
}

// sample fills the row of src and returns the number of dropped edges.
func (a *List) sample(src int, rules []rule, seed uint64) int64 {
	row := a.edges[(src-a.first)*a.width : (src-a.first+1)*a.width]
	rng := random.NewXoroshiro128p(random.StreamSeed(seed, uint64(src)))

	count := 0
	var dropped int64
	put := func(dst int) {
		if count < len(row) {
			row[count] = int32(dst)
			count++
			return
		}
		dropped++
	}

	for _, r := range rules {
		if src < r.SrcFirst || src >= r.SrcLast {
			continue
		}
		if r.P >= 1 {
			for dst := r.DstFirst; dst < r.DstLast; dst++ {
				put(dst)
			}
			continue
		}
		dst := r.DstFirst - 1
		for {
			gap := float64(random.Exp(&rng)) * r.scale
			if gap >= float64(r.DstLast-dst-1) {
				break
			}
			dst += 1 + int(gap)
			put(dst)
		}
	}

	for i := count; i < len(row); i++ {
		row[i] = Sentinel
	}
	a.counts[src-a.first] = int32(count)
	return dropped
}

func (a *List) Width() int { return a.width }
func (a *List) First() int { return a.first }
func (a *List) Last() int  { return a.last }
func (a *List) Len() int   { return a.last - a.first }

// Neighbors returns the destinations of global source id src. The slice
// aliases the list.
func (a *List) Neighbors(src int) []int32 {
	off := (src - a.first) * a.width
	return a.edges[off : off+int(a.counts[src-a.first])]
}

// Slot is the index of the first edge slot of src, which is also the index
// of its first synapse.
func (a *List) Slot(src int) int {
	return (src - a.first) * a.width
}

func (a *List) Degree(src int) int {
	return int(a.counts[src-a.first])
}

// Edges is the raw slot buffer including Sentinel entries.
func (a *List) Edges() []int32 { return a.edges }

func (a *List) Counts() []int32 { return a.counts }

func (a *List) NumEdges() int64 {
	var total int64
	for _, c := range a.counts {
		total += int64(c)
	}
	return total
}

// Overflow reports how many neurons exceeded Width and how many edges were
// dropped as a result.
func (a *List) Overflow() (neurons, edges int64) {
	return a.overflowNeurons, a.droppedEdges
}

func (a *List) Bytes() uint64 {
	return RequiredBytes(a.Len(), a.width)
}
