package device

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDividesWorkersAndMemory(t *testing.T) {
	devs := Split(Device{Name: "gpu", Workers: 5, MemoryBytes: 1 << 20}, 2)
	require.Len(t, devs, 2)
	require.Equal(t, 3, devs[0].Workers)
	require.Equal(t, 2, devs[1].Workers)
	require.Equal(t, uint64(1<<19), devs[1].MemoryBytes)
	require.Equal(t, 1, devs[1].ID)

	one := Split(Device{Workers: 1}, 4)
	for _, d := range one {
		require.Equal(t, 1, d.Workers)
	}
}

func TestBudgetReserve(t *testing.T) {
	b := NewBudget(Device{MemoryBytes: 1000})
	require.NoError(t, b.Reserve(600, "neurons"))
	err := b.Reserve(500, "synapses")
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.Contains(t, err.Error(), "synapses")
	require.Equal(t, uint64(600), b.Used())

	unlimited := NewBudget(Host())
	require.NoError(t, unlimited.Reserve(1<<40, "anything"))
}

func TestChunkRangeCoversInput(t *testing.T) {
	for _, n := range []int{1, 7, 64, 1000} {
		for _, k := range []int{1, 3, 8} {
			if k > n {
				continue
			}
			next := 0
			for c := 0; c < k; c++ {
				lo, hi := ChunkRange(n, k, c)
				require.Equal(t, next, lo)
				require.LessOrEqual(t, lo, hi)
				next = hi
			}
			require.Equal(t, n, next)
		}
	}
}

func TestPoolForEach(t *testing.T) {
	p := NewPool(4)
	seen := make([]int32, 1003)
	p.ForEach(len(seen), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, v := range seen {
		require.Equal(t, int32(1), v, "index %d", i)
	}

	calls := 0
	p.ForEach(0, func(_, _, _ int) { calls++ })
	require.Zero(t, calls)
	require.Equal(t, 2, p.Chunks(2))
}

func TestStreamRunsInOrder(t *testing.T) {
	s := NewStream(4)
	defer s.Close()

	var got []int
	for i := 0; i < 100; i++ {
		s.Launch(func() { got = append(got, i) })
	}
	s.Synchronize()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	s := NewStream(1)
	var n atomic.Int32
	s.Launch(func() { n.Add(1) })
	s.Close()
	s.Close()
	require.Equal(t, int32(1), n.Load())
}
