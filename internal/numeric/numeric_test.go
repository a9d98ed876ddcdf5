package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKahanSumBeatsNaiveSummation(t *testing.T) {
	const (
		dt = float32(1e-4)
		k  = 1000000
	)

	var kahan KahanSum[float32]
	var naive float32
	for i := 0; i < k; i++ {
		kahan.Add(dt)
		naive += dt
	}

	want := float64(k) * float64(dt)
	kahanErr := math.Abs(float64(kahan.Sum()) - want)
	naiveErr := math.Abs(float64(naive) - want)

	require.Less(t, kahanErr*10, naiveErr,
		"kahan=%g naive=%g want=%g", kahan.Sum(), naive, want)
}

func TestKahanSumAddReturnsAppliedIncrement(t *testing.T) {
	var k KahanSum[float64]
	require.Equal(t, 1.0, k.Add(1.0))
	require.Equal(t, 0.0, k.Residue())
	require.Equal(t, 1.0, k.Sum())

	var big KahanSum[float32]
	big.Add(1 << 24)
	applied := big.Add(1)
	require.Equal(t, float32(1), applied)
	// The increment is lost in the sum but carried as residue.
	require.NotZero(t, big.Residue())
	applied = big.Add(1)
	require.Equal(t, float32(2), applied)
	require.Equal(t, float32(1<<24+2), big.Sum())
	require.Zero(t, big.Residue())
}

func TestNarrow(t *testing.T) {
	v, err := Narrow[int32](int64(math.MaxInt32))
	require.NoError(t, err)
	require.Equal(t, int32(math.MaxInt32), v)

	_, err = Narrow[int32](int64(math.MaxInt32) + 1)
	require.ErrorIs(t, err, ErrNarrowing)

	_, err = Narrow[uint32](-1)
	require.ErrorIs(t, err, ErrNarrowing)

	_, err = Narrow[int8](uint64(200))
	require.ErrorIs(t, err, ErrNarrowing)

	u, err := Narrow[uint16](int(65535))
	require.NoError(t, err)
	require.Equal(t, uint16(65535), u)
}

func TestMustNarrowPanics(t *testing.T) {
	require.Panics(t, func() { MustNarrow[uint8](256) })
	require.Equal(t, uint8(255), MustNarrow[uint8](255))
}
