// Package rng implements the opaque, serializable RNG value threaded through
// the core. Every draw takes a state and returns the advanced state; nothing
// here keeps hidden global randomness.
package rng

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/roach88/rulekernel/internal/ir"
)

const (
	// Algorithm identifies the generator encoded in RngState.State.
	Algorithm = "pcg"

	// Version is bumped whenever the draw procedures change.
	Version = 1

	// seedMix decorrelates the second PCG word from the first.
	seedMix = 0x9e3779b97f4a7c15
)

// New returns the initial RNG value for seed.
func New(seed uint64) ir.RngState {
	state, err := encode(rand.NewPCG(seed, seed^seedMix))
	if err != nil {
		// PCG.MarshalBinary cannot fail.
		panic(err)
	}
	return state
}

// IntRange draws an integer in [lo, hi] inclusive.
func IntRange(s ir.RngState, lo, hi int64) (int64, ir.RngState, error) {
	if hi < lo {
		return 0, s, fmt.Errorf("invalid range [%d, %d]", lo, hi)
	}
	src, err := decode(s)
	if err != nil {
		return 0, s, err
	}
	r := rand.New(src)
	// The width is taken in uint64 so ranges wider than MaxInt64 still draw
	// uniformly; the full int64 range takes a raw word.
	var offset uint64
	if span := uint64(hi) - uint64(lo); span == math.MaxUint64 {
		offset = r.Uint64()
	} else {
		offset = r.Uint64N(span + 1)
	}
	n := int64(uint64(lo) + offset)
	next, err := encode(src)
	if err != nil {
		return 0, s, err
	}
	return n, next, nil
}

// Shuffle returns a shuffled copy of items. The input slice is not modified.
func Shuffle[T any](s ir.RngState, items []T) ([]T, ir.RngState, error) {
	out := slices.Clone(items)
	if len(out) < 2 {
		return out, s, nil
	}
	src, err := decode(s)
	if err != nil {
		return nil, s, err
	}
	r := rand.New(src)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	next, err := encode(src)
	if err != nil {
		return nil, s, err
	}
	return out, next, nil
}

func decode(s ir.RngState) (*rand.PCG, error) {
	if s.Algorithm != Algorithm || s.Version != Version {
		return nil, fmt.Errorf("unsupported rng %s/v%d", s.Algorithm, s.Version)
	}
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(s.State); err != nil {
		return nil, fmt.Errorf("decode rng state: %w", err)
	}
	return src, nil
}

func encode(src *rand.PCG) (ir.RngState, error) {
	b, err := src.MarshalBinary()
	if err != nil {
		return ir.RngState{}, fmt.Errorf("encode rng state: %w", err)
	}
	return ir.RngState{Algorithm: Algorithm, Version: Version, State: b}, nil
}
