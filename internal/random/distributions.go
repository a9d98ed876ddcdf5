package random

import (
	"math"

	"github.com/chewxy/math32"
)

const mantissaScale = 1.0 / 16777216.0

// UniformLeftInc returns a float in [0, 1) from one draw.
func UniformLeftInc[G Source](g G) float32 {
	return float32(g.Uint32()>>8) * mantissaScale
}

// UniformRightInc returns a float in (0, 1] from one draw.
func UniformRightInc[G Source](g G) float32 {
	return (float32(g.Uint32()>>8) + 1) * mantissaScale
}

// Exp returns an exponentially distributed value with rate 1 from one draw.
func Exp[G Source](g G) float32 {
	return -math32.Log(UniformRightInc(g))
}

// Normal returns a normally distributed value with mean m and standard
// deviation s. It consumes exactly two draws: radius first, then angle.
func Normal[G Source](g G, m, s float32) float32 {
	r := math32.Sqrt(-2 * math32.Log(UniformRightInc(g)))
	a := math32.Sin(2 * math32.Pi * UniformLeftInc(g))
	return r*a*s + m
}

// Binomial approximates B(n, p) by a rounded normal clamped to [0, n]. The
// approximation is poor for small n*p and is meant for large populations.
func Binomial[G Source](g G, n int, p float32) int {
	np := float32(n) * p
	x := Normal(g, np, math32.Sqrt(np*(1-p)))
	k := int(math.RoundToEven(float64(x)))
	if k < 0 {
		return 0
	}
	if k > n {
		return n
	}
	return k
}
