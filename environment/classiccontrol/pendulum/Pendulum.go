// Package pendulum implements the pendulum classic control environment
package pendulum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/timestep"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// default physical constants
const (
	AngleBound  float64 = math.Pi // +/- Angle bounds
	SpeedBound  float64 = 8.0     // +/- Speed bounds
	TorqueBound float64 = 2.0     // +/- Torque bounds

	MaxContinuousAction float64 = TorqueBound
	MinContinuousAction float64 = -MaxContinuousAction

	dt      float64 = 0.05
	Gravity float64 = 10.0
	Mass    float64 = 1.0
	Length  float64 = 1.0

	ActionDims      int = 1
	ObservationDims int = 3
)

// base implements the classic control environment in which a pendulum
// is attached to a fixed base. An agent can swing the pendulum back
// and forth, but the swinging force/torque is underpowered. In order
// to swing the pendulum straight up, it must first be rocked back and
// forth, using the momentum to gradually climb higher until the
// pendulum can point straight up.
//
// State observations are 3-dimensional and continuous, consisting of
// the cosine and sine of the pendulum angle measured from the positive
// y-axis, and the angular velocity of the pendulum. The angular
// velocity is clipped to stay within [-SpeedBound, SpeedBound]. The
// sign of the angular velocity indicates direction, with negative
// sign indicating counterclockwise rotation.
//
// Actions are continuous and 1-dimensional. Actions determine the
// torque to apply to the pendulum at its fixed base. Actions are
// clipped to stay within [MinContinuousAction, MaxContinuousAction]
// before being applied.
//
// base does not itself determine rewards or episode ends; an
// environment.Task does. See the Continuous struct, which joins a base
// with a Task to implement environment.Environment.
type base struct {
	environment.Task
	dt           float64
	gravity      float64
	mass         float64
	length       float64
	speedBounds  r1.Interval
	torqueBounds r1.Interval
	lastStep     timestep.TimeStep
	discount     float64
}

// newBase creates and returns a new base environment
func newBase(t environment.Task, d float64) (*base, timestep.TimeStep) {
	speedBounds := r1.Interval{Min: -SpeedBound, Max: SpeedBound}
	torqueBounds := r1.Interval{Min: -TorqueBound, Max: TorqueBound}

	state := t.Start()
	obs := observation(state.AtVec(0), state.AtVec(1))

	firstStep := timestep.New(timestep.First, 0.0, d, obs, 0)

	pendulum := base{t, dt, Gravity, Mass, Length, speedBounds,
		torqueBounds, firstStep, d}

	return &pendulum, firstStep
}

// LastTimeStep returns the last TimeStep that occurred in the
// environment
func (p *base) LastTimeStep() timestep.TimeStep {
	return p.lastStep
}

// Reset resets the environment and returns a starting state drawn from the
// Starter
func (p *base) Reset() timestep.TimeStep {
	state := p.Start()
	obs := observation(state.AtVec(0), state.AtVec(1))
	startStep := timestep.New(timestep.First, 0, p.discount, obs, 0)
	p.lastStep = startStep

	return startStep
}

// nextState computes the next state of the environment given an amount
// of torque to apply to the fixed base of the pendulum. The torque is
// first clipped to the appropriate torque bounds.
func (p *base) nextState(t timestep.TimeStep, torque float64) *mat.VecDense {
	th, thdot := angleOf(t.Observation), t.Observation.AtVec(2)

	// Clip the torque
	torque = floatutils.ClipInterval(torque, p.torqueBounds)

	newthdot := thdot + (3*p.gravity/(2*p.length)*math.Sin(th)+
		3.0/(p.mass*math.Pow(p.length, 2))*torque)*p.dt

	// Clip the angular velocity
	newthdot = floatutils.ClipInterval(newthdot, p.speedBounds)

	newth := th + (newthdot * p.dt)

	return observation(newth, newthdot)
}

// update creates the next TimeStep after taking action in the
// environment, recording it as the environment's last step
func (p *base) update(action *mat.VecDense,
	newObs *mat.VecDense) (timestep.TimeStep, bool) {
	reward := p.GetReward(p.lastStep.Observation, action, newObs)
	nextStep := timestep.New(timestep.Mid, reward, p.discount, newObs,
		p.lastStep.Number+1)

	// Check if the step is the last in the episode and adjust the step
	// type if necessary
	p.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// ObservationSpec returns the observation specification of the environment
func (p *base) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	minObs := []float64{-1, -1, p.speedBounds.Min}
	lowerBound := mat.NewVecDense(ObservationDims, minObs)

	maxObs := []float64{1, 1, p.speedBounds.Max}
	upperBound := mat.NewVecDense(ObservationDims, maxObs)

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// String converts the environment to a string representation
func (p *base) String() string {
	str := "Pendulum  |  theta: %v  |  theta dot: %v\n"
	return fmt.Sprintf(str, angleOf(p.lastStep.Observation),
		p.lastStep.Observation.AtVec(2))
}

// observation constructs the 3-dimensional state observation for a
// pendulum angle and angular velocity
func observation(th, thdot float64) *mat.VecDense {
	return mat.NewVecDense(ObservationDims,
		[]float64{math.Cos(th), math.Sin(th), thdot})
}

// angleOf recovers the pendulum angle in [-π, π] from a state
// observation
func angleOf(obs *mat.VecDense) float64 {
	return math.Atan2(obs.AtVec(1), obs.AtVec(0))
}
