// Package random implements the seedable pseudo-random streams that drive
// stochastic connectivity and stochastic neuron dynamics.
//
// Generators are small value types with O(1) steps. Every stream is derived
// from a global seed and a stream index through Hash, so the same seed always
// reproduces the same sequence regardless of how work is scheduled.
package random

import (
	"math/bits"
	"math/rand/v2"
)

// Source is the word-level contract every distribution draws from.
type Source interface {
	Uint32() uint32
}

var (
	_ rand.Source = (*Xoroshiro128p)(nil)
	_ rand.Source = (*Xoshiro256ss)(nil)
)

// Hash is the splitmix64 finalizer. It is a bijection on uint64 that maps 0
// to 0, so callers must pass a non-zero value to obtain usable state.
func Hash(x uint64) uint64 {
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// StreamSeed derives the seed of stream index from a global seed.
func StreamSeed(seed, index uint64) uint64 {
	s := Hash(seed + index + 1)
	if s == 0 {
		panic("random: derived stream seed is zero")
	}
	return s
}

// Xoroshiro128p is the 32-bit word generator (xoshiro128+). It is the
// default per-neuron stream.
type Xoroshiro128p struct {
	s0, s1, s2, s3 uint32
}

// NewXoroshiro128p seeds a generator. It panics if seed is zero.
func NewXoroshiro128p(seed uint64) Xoroshiro128p {
	if seed == 0 {
		panic("random: seed must be non-zero")
	}
	var g Xoroshiro128p
	h := Hash(seed)
	g.s0 = uint32(h)
	g.s1 = uint32(h >> 32)
	h = Hash(h)
	g.s2 = uint32(h)
	g.s3 = uint32(h >> 32)
	return g
}

func (g *Xoroshiro128p) Uint32() uint32 {
	result := g.s0 + g.s3
	t := g.s1 << 9

	g.s2 ^= g.s0
	g.s3 ^= g.s1
	g.s1 ^= g.s2
	g.s0 ^= g.s3

	g.s2 ^= t
	g.s3 = bits.RotateLeft32(g.s3, 11)

	return result
}

// Uint64 concatenates two consecutive 32-bit outputs, high word first.
func (g *Xoroshiro128p) Uint64() uint64 {
	hi := uint64(g.Uint32())
	return hi<<32 | uint64(g.Uint32())
}

// Xoshiro256ss is the 64-bit word generator (xoshiro256**).
type Xoshiro256ss struct {
	s0, s1, s2, s3 uint64
}

// NewXoshiro256ss seeds a generator. It panics if seed is zero.
func NewXoshiro256ss(seed uint64) Xoshiro256ss {
	if seed == 0 {
		panic("random: seed must be non-zero")
	}
	var g Xoshiro256ss
	g.s0 = Hash(seed)
	g.s1 = Hash(g.s0)
	g.s2 = Hash(g.s1)
	g.s3 = Hash(g.s2)
	return g
}

func (g *Xoshiro256ss) Uint64() uint64 {
	result := bits.RotateLeft64(g.s1*5, 7) * 9
	t := g.s1 << 17

	g.s2 ^= g.s0
	g.s3 ^= g.s1
	g.s1 ^= g.s2
	g.s0 ^= g.s3

	g.s2 ^= t
	g.s3 = bits.RotateLeft64(g.s3, 45)

	return result
}

// Uint32 returns the low word of the next 64-bit output.
func (g *Xoshiro256ss) Uint32() uint32 {
	return uint32(g.Uint64())
}
