package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines which part of an environment a Spec describes
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// String implements the fmt.Stringer interface
func (s SpecType) String() string {
	switch s {
	case Action:
		return "Action"
	case Observation:
		return "Observation"
	case Discount:
		return "Discount"
	case Reward:
		return "Reward"
	}
	return "Unknown"
}

// Cardinality determines whether described values are drawn from a
// discrete or a continuous set
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec describes the layout of one part of an environment: the shape,
// bounds, and cardinality of its actions, observations, discounts, or
// rewards.
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification. The shape
// argument gives the dimensionality of the described data, t gives
// which part of the environment is described, and the bounds give the
// legal range of each dimension. Both bounds must have the same
// length as shape.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	for _, bound := range []mat.Vector{lowerBound, upperBound} {
		if shape.Len() != bound.Len() {
			panic(fmt.Sprintf("newSpec: %v spec has %v dimensions but "+
				"bounds of length %v", t, shape.Len(), bound.Len()))
		}
	}

	return Spec{shape, t, lowerBound, upperBound, cardinality}
}
