// Package numeric holds the small arithmetic helpers shared by the
// simulator: compensated summation and checked integer narrowing.
package numeric

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

var ErrNarrowing = errors.New("integer narrowing out of range")

// KahanSum is a compensated running sum. The zero value is ready to use.
type KahanSum[T constraints.Float] struct {
	sum T
	c   T
}

// Add adds delta and returns the increment actually applied, which is delta
// minus the carried rounding residue.
func (k *KahanSum[T]) Add(delta T) T {
	y := delta - k.c
	t := k.sum + y
	k.c = (t - k.sum) - y
	k.sum = t
	return y
}

func (k *KahanSum[T]) Sum() T {
	return k.sum
}

// Residue is the rounding error carried into the next Add.
func (k *KahanSum[T]) Residue() T {
	return k.c
}

// Narrow converts x to To and fails instead of truncating.
func Narrow[To, From constraints.Integer](x From) (To, error) {
	y := To(x)
	if From(y) != x || (x < 0) != (y < 0) {
		return 0, fmt.Errorf("%w: %v", ErrNarrowing, x)
	}
	return y, nil
}

// MustNarrow is Narrow for values already validated by the caller.
func MustNarrow[To, From constraints.Integer](x From) To {
	y, err := Narrow[To](x)
	if err != nil {
		panic(err)
	}
	return y
}
