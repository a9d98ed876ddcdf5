// Package layout describes the shape of a network: population sizes and the
// probabilistic connection rules between them.
package layout

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"snnsim/internal/numeric"
)

// WarpSize is the parallel-unit width MaxDegree is rounded up to.
const WarpSize = 32

var (
	ErrNoPopulations       = errors.New("layout must contain at least one population")
	ErrInvalidPopulation   = errors.New("invalid population size")
	ErrInvalidProbability  = errors.New("invalid connection probability")
	ErrIndexOutOfRange     = errors.New("connection index out of range")
	ErrDuplicateConnection = errors.New("duplicate connection")
)

// Connection connects population Src to population Dst with probability P.
type Connection struct {
	Src int
	Dst int
	P   float32
}

// Edge is a Connection resolved to half-open neuron ranges.
type Edge struct {
	SrcFirst int
	SrcLast  int
	DstFirst int
	DstLast  int
	P        float32
}

func (e Edge) SrcWidth() int { return e.SrcLast - e.SrcFirst }
func (e Edge) DstWidth() int { return e.DstLast - e.DstFirst }

// Layout is immutable once constructed.
type Layout struct {
	n         int
	pops      []int
	edges     []Edge
	maxDegree int
}

// New validates pops and conns and resolves them into a Layout. Connections
// are sorted by (Src, Dst); a repeated pair is an error.
func New(pops []int, conns []Connection) (*Layout, error) {
	if len(pops) == 0 {
		return nil, ErrNoPopulations
	}
	for i, pop := range pops {
		if pop <= 0 || pop > math.MaxInt32 {
			return nil, fmt.Errorf("population %d: size %d: %w", i, pop, ErrInvalidPopulation)
		}
	}
	for _, c := range conns {
		if c.Src < 0 || c.Src >= len(pops) || c.Dst < 0 || c.Dst >= len(pops) {
			return nil, fmt.Errorf("connection %d->%d with %d populations: %w", c.Src, c.Dst, len(pops), ErrIndexOutOfRange)
		}
		if err := checkProbability(c.P); err != nil {
			return nil, fmt.Errorf("connection %d->%d: %w", c.Src, c.Dst, err)
		}
	}

	sorted := make([]Connection, len(conns))
	copy(sorted, conns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Src != sorted[j].Src {
			return sorted[i].Src < sorted[j].Src
		}
		return sorted[i].Dst < sorted[j].Dst
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Src == sorted[i-1].Src && sorted[i].Dst == sorted[i-1].Dst {
			return nil, fmt.Errorf("connection %d->%d: %w", sorted[i].Src, sorted[i].Dst, ErrDuplicateConnection)
		}
	}

	offsets := make([]int, len(pops)+1)
	for i, pop := range pops {
		offsets[i+1] = offsets[i] + pop
	}
	if _, err := numeric.Narrow[int32](offsets[len(pops)]); err != nil {
		return nil, fmt.Errorf("total neuron count: %w", err)
	}

	edges := make([]Edge, 0, len(sorted))
	for _, c := range sorted {
		edges = append(edges, Edge{
			SrcFirst: offsets[c.Src],
			SrcLast:  offsets[c.Src+1],
			DstFirst: offsets[c.Dst],
			DstLast:  offsets[c.Dst+1],
			P:        c.P,
		})
	}

	return &Layout{
		n:         offsets[len(pops)],
		pops:      append([]int(nil), pops...),
		edges:     edges,
		maxDegree: estimateMaxDegree(edges),
	}, nil
}

// Homogeneous is a single population of n neurons connected to itself with
// probability p. p == 0 yields a network without connections.
func Homogeneous(n int, p float32) (*Layout, error) {
	if p == 0 {
		return New([]int{n}, nil)
	}
	return New([]int{n}, []Connection{{Src: 0, Dst: 0, P: p}})
}

// FromEdges builds a Layout of n neurons directly from neuron-range edges.
// Edges must be sorted by (SrcFirst, DstFirst) and lie within [0, n). Edges
// sharing a SrcFirst form a source group: their destination ranges must not
// overlap, and a group's source range must end before the next group starts,
// so every neuron's destinations come out ascending and without repeats.
func FromEdges(n int, edges []Edge) (*Layout, error) {
	if n <= 0 || n > math.MaxInt32 {
		return nil, fmt.Errorf("neuron count %d: %w", n, ErrInvalidPopulation)
	}
	groupSrcLast, groupDstLast := 0, 0
	for i, e := range edges {
		if e.SrcFirst < 0 || e.SrcFirst >= e.SrcLast || e.SrcLast > n ||
			e.DstFirst < 0 || e.DstFirst >= e.DstLast || e.DstLast > n {
			return nil, fmt.Errorf("edge %d [%d,%d)->[%d,%d): %w", i, e.SrcFirst, e.SrcLast, e.DstFirst, e.DstLast, ErrIndexOutOfRange)
		}
		if err := checkProbability(e.P); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		if i > 0 {
			prev := edges[i-1]
			if prev.SrcFirst > e.SrcFirst || (prev.SrcFirst == e.SrcFirst && prev.DstFirst >= e.DstFirst) {
				return nil, fmt.Errorf("edge %d is out of order or repeated: %w", i, ErrDuplicateConnection)
			}
			if prev.SrcFirst == e.SrcFirst {
				if e.DstFirst < groupDstLast {
					return nil, fmt.Errorf("edge %d: destinations [%d,%d) overlap an earlier edge of source %d: %w",
						i, e.DstFirst, e.DstLast, e.SrcFirst, ErrDuplicateConnection)
				}
				groupSrcLast = max(groupSrcLast, e.SrcLast)
				groupDstLast = e.DstLast
				continue
			}
			if e.SrcFirst < groupSrcLast {
				return nil, fmt.Errorf("edge %d: sources [%d,%d) overlap the group starting at %d: %w",
					i, e.SrcFirst, e.SrcLast, prev.SrcFirst, ErrDuplicateConnection)
			}
		}
		groupSrcLast, groupDstLast = e.SrcLast, e.DstLast
	}

	return &Layout{
		n:         n,
		pops:      []int{n},
		edges:     append([]Edge(nil), edges...),
		maxDegree: estimateMaxDegree(edges),
	}, nil
}

func checkProbability(p float32) error {
	if !(p > 0 && p <= 1) {
		return fmt.Errorf("p=%v: %w", p, ErrInvalidProbability)
	}
	return nil
}

func (l *Layout) Size() int { return l.n }

func (l *Layout) Populations() []int {
	return append([]int(nil), l.pops...)
}

// PopulationRange returns the neuron range [first, last) of population i.
func (l *Layout) PopulationRange(i int) (first, last int) {
	for j := 0; j < i; j++ {
		first += l.pops[j]
	}
	return first, first + l.pops[i]
}

func (l *Layout) Edges() []Edge {
	return append([]Edge(nil), l.edges...)
}

// MaxDegree is the provisioned number of outgoing edge slots per neuron:
// mean + 3 standard deviations of the out-degree of the worst source
// population, rounded up to WarpSize. It is a statistical bound; roughly
// 0.13% of neurons are expected to exceed it, and for layouts with very few,
// highly skewed rules the tail can be heavier.
func (l *Layout) MaxDegree() int { return l.maxDegree }

// ExpectedDegree is the mean out-degree of neuron.
func (l *Layout) ExpectedDegree(neuron int) float64 {
	var m float64
	for _, e := range l.edges {
		if neuron >= e.SrcFirst && neuron < e.SrcLast {
			m += float64(e.DstWidth()) * float64(e.P)
		}
	}
	return m
}

// ExpectedSynapses is the mean total edge count of the network.
func (l *Layout) ExpectedSynapses() float64 {
	var m float64
	for _, e := range l.edges {
		m += float64(e.SrcWidth()) * float64(e.DstWidth()) * float64(e.P)
	}
	return m
}

func estimateMaxDegree(edges []Edge) int {
	if len(edges) == 0 {
		return 0
	}

	bound := func(m, s2 float64) int {
		return int(math.Ceil(m + 3*math.Sqrt(s2)))
	}

	src := edges[0].SrcFirst
	result := 0
	var m, s2 float64
	for _, e := range edges {
		if e.SrcFirst != src {
			result = max(result, bound(m, s2))
			src = e.SrcFirst
			m, s2 = 0, 0
		}
		w := float64(e.DstWidth())
		p := float64(e.P)
		m += w * p
		s2 += w * p * (1 - p)
	}
	result = max(result, bound(m, s2))

	return (result + WarpSize - 1) / WarpSize * WarpSize
}
