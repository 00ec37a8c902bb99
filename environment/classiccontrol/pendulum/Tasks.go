package pendulum

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// SwingUp implements a task where the agent must swing the pendulum up
// and hold it in a vertical position. Rewards are the negative cost of
// the current state and applied torque:
//
//	-(θ² + 0.1⋅ω² + 0.001⋅τ²)
//
// where θ is the pendulum angle measured from the positive y-axis
// (normalized to [-π, π]), ω the angular velocity, and τ the applied
// torque. The best achievable reward is 0, with the pendulum balanced
// upright, motionless, and unactuated.
//
// Episodes do not terminate. A step limit cuts episodes off with the
// timestep.Timeout end type, so that learners bootstrap off the value
// of the state following the cutoff.
type SwingUp struct {
	environment.Starter
	environment.Ender
}

// NewSwingUp creates and returns a new SwingUp task
func NewSwingUp(s environment.Starter, maxSteps int) *SwingUp {
	ender := environment.NewStepLimit(maxSteps)
	return &SwingUp{s, ender}
}

// GetReward returns the reward for applying action in state
func (s *SwingUp) GetReward(state mat.Vector, action mat.Vector,
	_ mat.Vector) float64 {
	th := math.Atan2(state.AtVec(1), state.AtVec(0))
	thdot := state.AtVec(2)
	torque := floatutils.Clip(action.AtVec(0), MinContinuousAction,
		MaxContinuousAction)

	cost := math.Pow(th, 2) + 0.1*math.Pow(thdot, 2) +
		0.001*math.Pow(torque, 2)
	return -cost
}

// AtGoal determines whether or not the state is the goal state
func (s *SwingUp) AtGoal(state mat.Matrix) bool {
	// Upright is (cos θ, sin θ) == (1, 0)
	return state.At(0, 0) == 1.0 && state.At(1, 0) == 0.0
}

// Min returns the minimum possible reward
func (s *SwingUp) Min() float64 {
	return -(math.Pow(AngleBound, 2) + 0.1*math.Pow(SpeedBound, 2) +
		0.001*math.Pow(TorqueBound, 2))
}

// Max returns the maximum possible reward
func (s *SwingUp) Max() float64 {
	return 0.0
}
