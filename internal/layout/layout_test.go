package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		pops  []int
		conns []Connection
		want  error
	}{
		{name: "no populations", pops: nil, want: ErrNoPopulations},
		{name: "empty population", pops: []int{10, 0}, want: ErrInvalidPopulation},
		{name: "negative population", pops: []int{-1}, want: ErrInvalidPopulation},
		{name: "oversized population", pops: []int{math.MaxInt32 + 1}, want: ErrInvalidPopulation},
		{name: "zero probability", pops: []int{10}, conns: []Connection{{0, 0, 0}}, want: ErrInvalidProbability},
		{name: "probability above one", pops: []int{10}, conns: []Connection{{0, 0, 1.5}}, want: ErrInvalidProbability},
		{name: "nan probability", pops: []int{10}, conns: []Connection{{0, 0, float32(math.NaN())}}, want: ErrInvalidProbability},
		{name: "src out of range", pops: []int{10}, conns: []Connection{{1, 0, 0.5}}, want: ErrIndexOutOfRange},
		{name: "dst out of range", pops: []int{10}, conns: []Connection{{0, -1, 0.5}}, want: ErrIndexOutOfRange},
		{name: "duplicate", pops: []int{10, 10}, conns: []Connection{{0, 1, 0.5}, {1, 1, 0.1}, {0, 1, 0.2}}, want: ErrDuplicateConnection},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.pops, tc.conns)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNewTotalOverflowsIndexType(t *testing.T) {
	_, err := New([]int{math.MaxInt32, math.MaxInt32}, nil)
	require.Error(t, err)
}

func TestNewResolvesRangesSorted(t *testing.T) {
	l, err := New([]int{100, 50, 25}, []Connection{
		{Src: 2, Dst: 0, P: 0.5},
		{Src: 0, Dst: 1, P: 0.1},
		{Src: 0, Dst: 0, P: 0.2},
	})
	require.NoError(t, err)
	require.Equal(t, 175, l.Size())
	require.Equal(t, []int{100, 50, 25}, l.Populations())

	require.Equal(t, []Edge{
		{SrcFirst: 0, SrcLast: 100, DstFirst: 0, DstLast: 100, P: 0.2},
		{SrcFirst: 0, SrcLast: 100, DstFirst: 100, DstLast: 150, P: 0.1},
		{SrcFirst: 150, SrcLast: 175, DstFirst: 0, DstLast: 100, P: 0.5},
	}, l.Edges())

	first, last := l.PopulationRange(1)
	require.Equal(t, 100, first)
	require.Equal(t, 150, last)
}

func TestHomogeneous(t *testing.T) {
	l, err := Homogeneous(1000, 0.1)
	require.NoError(t, err)
	require.Equal(t, 1000, l.Size())
	require.Len(t, l.Edges(), 1)

	empty, err := Homogeneous(10, 0)
	require.NoError(t, err)
	require.Empty(t, empty.Edges())
	require.Zero(t, empty.MaxDegree())

	_, err = Homogeneous(0, 0.1)
	require.ErrorIs(t, err, ErrInvalidPopulation)
}

func TestMaxDegreeEstimate(t *testing.T) {
	l, err := Homogeneous(1000, 0.1)
	require.NoError(t, err)

	// mean 100, sigma sqrt(90) ~ 9.49 => 128.46 -> 129 -> 160
	require.Equal(t, 160, l.MaxDegree())
	require.Zero(t, l.MaxDegree()%WarpSize)

	full, err := Homogeneous(40, 1)
	require.NoError(t, err)
	require.Equal(t, 64, full.MaxDegree())

	tiny, err := Homogeneous(10, 0.001)
	require.NoError(t, err)
	require.Equal(t, WarpSize, tiny.MaxDegree())
}

func TestMaxDegreeAccumulatesPerSourcePopulation(t *testing.T) {
	l, err := New([]int{500, 500}, []Connection{
		{Src: 0, Dst: 1, P: 0.1},
		{Src: 1, Dst: 0, P: 0.1},
		{Src: 1, Dst: 1, P: 0.1},
	})
	require.NoError(t, err)

	// Population 1 dominates: mean 100, variance 90 => 160.
	require.Equal(t, 160, l.MaxDegree())
	require.InDelta(t, 50.0, l.ExpectedDegree(0), 1e-4)
	require.InDelta(t, 100.0, l.ExpectedDegree(700), 1e-4)
	require.InDelta(t, 500*50.0+500*100.0, l.ExpectedSynapses(), 1e-1)
}

func TestFromEdges(t *testing.T) {
	l, err := FromEdges(10, []Edge{
		{SrcFirst: 0, SrcLast: 5, DstFirst: 0, DstLast: 5, P: 1},
		{SrcFirst: 0, SrcLast: 5, DstFirst: 5, DstLast: 10, P: 0.5},
	})
	require.NoError(t, err)
	require.Equal(t, 10, l.Size())
	require.Len(t, l.Edges(), 2)

	_, err = FromEdges(10, []Edge{{SrcFirst: 0, SrcLast: 11, DstFirst: 0, DstLast: 5, P: 1}})
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = FromEdges(10, []Edge{
		{SrcFirst: 0, SrcLast: 5, DstFirst: 5, DstLast: 10, P: 1},
		{SrcFirst: 0, SrcLast: 5, DstFirst: 0, DstLast: 5, P: 1},
	})
	require.ErrorIs(t, err, ErrDuplicateConnection)

	_, err = FromEdges(10, []Edge{{SrcFirst: 0, SrcLast: 1, DstFirst: 0, DstLast: 1, P: 0}})
	require.ErrorIs(t, err, ErrInvalidProbability)
}

func TestFromEdgesRejectsOverlaps(t *testing.T) {
	tests := []struct {
		name  string
		edges []Edge
	}{
		{
			name: "overlapping destinations",
			edges: []Edge{
				{SrcFirst: 0, SrcLast: 10, DstFirst: 0, DstLast: 20, P: 1},
				{SrcFirst: 0, SrcLast: 10, DstFirst: 5, DstLast: 10, P: 1},
			},
		},
		{
			name: "overlapping sources",
			edges: []Edge{
				{SrcFirst: 0, SrcLast: 10, DstFirst: 0, DstLast: 10, P: 1},
				{SrcFirst: 5, SrcLast: 20, DstFirst: 10, DstLast: 20, P: 1},
			},
		},
		{
			name: "wider edge later in a group",
			edges: []Edge{
				{SrcFirst: 0, SrcLast: 5, DstFirst: 0, DstLast: 10, P: 1},
				{SrcFirst: 0, SrcLast: 15, DstFirst: 10, DstLast: 20, P: 1},
				{SrcFirst: 10, SrcLast: 20, DstFirst: 0, DstLast: 20, P: 1},
			},
		},
		{
			name: "both",
			edges: []Edge{
				{SrcFirst: 0, SrcLast: 10, DstFirst: 0, DstLast: 20, P: 1},
				{SrcFirst: 0, SrcLast: 10, DstFirst: 5, DstLast: 10, P: 1},
				{SrcFirst: 5, SrcLast: 20, DstFirst: 0, DstLast: 20, P: 1},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromEdges(20, tc.edges)
			require.ErrorIs(t, err, ErrDuplicateConnection)
		})
	}
}

func TestFromEdgesAcceptsDisjointGroups(t *testing.T) {
	l, err := FromEdges(20, []Edge{
		{SrcFirst: 0, SrcLast: 10, DstFirst: 0, DstLast: 5, P: 1},
		{SrcFirst: 0, SrcLast: 10, DstFirst: 5, DstLast: 20, P: 1},
		{SrcFirst: 10, SrcLast: 20, DstFirst: 0, DstLast: 20, P: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 32, l.MaxDegree())
	require.InDelta(t, 20.0, l.ExpectedDegree(3), 1e-9)
	require.InDelta(t, 20.0, l.ExpectedDegree(15), 1e-9)
}
