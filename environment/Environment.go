// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"
	"github.com/samuelfneumann/goppo/timestep"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when and how episodes end. Enders inspect the
// TimeStep generated by an environmental step and, if the episode
// should end, adjust the TimeStep's StepType and EndType fields
// accordingly.
type Ender interface {
	// End returns whether the episode ended at the argument TimeStep,
	// modifying the TimeStep in-place if so
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some environment
type Task interface {
	Starter
	Ender
	GetReward(state mat.Vector, action mat.Vector, nextState mat.Vector) float64
	AtGoal(state mat.Matrix) bool
}

// Environment implements a simulated environment, which includes a Task to
// complete
type Environment interface {
	Task
	Reset() timestep.TimeStep
	Step(action *mat.VecDense) (timestep.TimeStep, bool)
	ObservationSpec() Spec
	ActionSpec() Spec
}
