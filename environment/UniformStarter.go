package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter samples starting states uniformly at random from a
// box, one bounding interval per state feature. Two UniformStarters
// created with equal bounds and seeds produce identical start state
// sequences.
type UniformStarter struct {
	dims int
	seed uint64
	dist *distmv.Uniform
}

// NewUniformStarter returns a UniformStarter sampling from the box
// described by bounds
func NewUniformStarter(bounds []r1.Interval, seed uint64) UniformStarter {
	dist := distmv.NewUniform(bounds, rand.NewSource(seed))

	return UniformStarter{dims: len(bounds), seed: seed, dist: dist}
}

// Start samples and returns a starting state
func (u UniformStarter) Start() *mat.VecDense {
	return mat.NewVecDense(u.dims, u.dist.Rand(nil))
}

// Seed returns the random seed used for start state sampling
func (u UniformStarter) Seed() uint64 {
	return u.seed
}
