package pendulum

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/timestep"
	"github.com/samuelfneumann/goppo/utils/matutils"
)

// newSwingUpEnv returns a swing-up environment with the argument
// episode step limit
func newSwingUpEnv(t *testing.T, maxSteps int) *Continuous {
	t.Helper()

	angleBounds := r1.Interval{Min: -AngleBound, Max: AngleBound}
	speedBounds := r1.Interval{Min: -1.0, Max: 1.0}
	s := environment.NewUniformStarter([]r1.Interval{
		angleBounds,
		speedBounds,
	}, 19)

	task := NewSwingUp(s, maxSteps)
	env, _ := NewContinuous(task, 0.99)
	return env
}

// TestSwingUpRewardRange checks that rewards stay within the task's
// stated bounds over a full episode.
func TestSwingUpRewardRange(t *testing.T) {
	env := newSwingUpEnv(t, 100)
	task := NewSwingUp(nil, 100)

	env.Reset()
	action := mat.NewVecDense(1, []float64{TorqueBound})
	for i := 0; i < 100; i++ {
		step, _ := env.Step(action)
		if step.Reward > task.Max() || step.Reward < task.Min() {
			t.Errorf("reward out of bounds at step %v \n\twant(in [%v, %v])"+
				"\n\thave(%v)", i, task.Min(), task.Max(), step.Reward)
		}
		if step.Last() {
			env.Reset()
		}
	}
}

// TestSwingUpStepLimit checks that episodes end with a timeout at the
// step limit and that the timeout still allows bootstrapping.
func TestSwingUpStepLimit(t *testing.T) {
	maxSteps := 20
	env := newSwingUpEnv(t, maxSteps)

	env.Reset()
	action := mat.NewVecDense(1, []float64{0.0})

	var step timestep.TimeStep
	for i := 0; i < maxSteps; i++ {
		if step.Last() {
			t.Fatalf("episode ended before the step limit at step %v", i)
		}
		step, _ = env.Step(action)
	}

	if !step.Last() {
		t.Fatal("episode did not end at the step limit")
	}
	if !step.TimeoutEnd() {
		t.Errorf("incorrect episode end type \n\twant(%v)\n\thave(%v)",
			timestep.Timeout, step.End())
	}
	if step.TerminalEnd() {
		t.Error("a timeout should not be a terminal state")
	}
}

// TestContinuousActionClip checks that out-of-bounds torques are
// clipped to the actuator limits, producing the same next state as
// the boundary torque.
func TestContinuousActionClip(t *testing.T) {
	env := newSwingUpEnv(t, 100)
	clippedEnv := newSwingUpEnv(t, 100)

	env.Reset()
	clippedEnv.Reset()

	overTorque := mat.NewVecDense(1, []float64{10 * TorqueBound})
	boundTorque := mat.NewVecDense(1, []float64{TorqueBound})

	step, _ := env.Step(overTorque)
	clippedStep, _ := clippedEnv.Step(boundTorque)

	if !mat.EqualApprox(step.Observation, clippedStep.Observation, 1e-10) {
		t.Errorf("out-of-bounds torque was not clipped \n\twant(%v)"+
			"\n\thave(%v)",
			matutils.Format(clippedStep.Observation.T()),
			matutils.Format(step.Observation.T()))
	}
}
