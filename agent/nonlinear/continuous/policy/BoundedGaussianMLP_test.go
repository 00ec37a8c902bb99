package policy

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/goppo/network"
)

const tolerance float64 = 1e-10

// newTestPolicy returns a policy on a pendulum swing-up environment
func newTestPolicy(t *testing.T, batch int,
	seed uint64) (*BoundedGaussianMLP, environment.Environment) {
	t.Helper()

	angleBounds := r1.Interval{Min: -pendulum.AngleBound,
		Max: pendulum.AngleBound}
	speedBounds := r1.Interval{Min: -1.0, Max: 1.0}
	s := environment.NewUniformStarter([]r1.Interval{
		angleBounds,
		speedBounds,
	}, seed)
	task := pendulum.NewSwingUp(s, 50)
	env, _ := pendulum.NewContinuous(task, 0.99)

	p, err := NewBoundedGaussianMLP(env, batch, G.NewGraph(), []int{5},
		[]bool{true}, []*network.Activation{network.TanH()}, G.GlorotU(1.0),
		0.5, seed)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	return p.(*BoundedGaussianMLP), env
}

// TestBoundedGaussianMLPLogProb checks that the closed-form log
// probability agrees with the log PDF computed on the computational
// graph.
func TestBoundedGaussianMLPLogProb(t *testing.T) {
	p, _ := newTestPolicy(t, 1, 91)
	defer p.Close()

	obs := []float64{0.5, -0.5, 1.0}
	action := mat.NewVecDense(1, []float64{0.75})

	want, err := p.LogProb(obs, action)
	if err != nil {
		t.Fatalf("could not compute closed-form log probability: %v", err)
	}

	if _, err := p.LogPdfOf(obs, action.RawVector().Data); err != nil {
		t.Fatalf("could not set log PDF inputs: %v", err)
	}
	if err := p.vm.RunAll(); err != nil {
		t.Fatalf("could not run policy VM: %v", err)
	}
	defer p.vm.Reset()

	have := p.LogPdfVal().Data().([]float64)
	if len(have) != 1 {
		t.Fatalf("wrong number of log probabilities \n\twant(%v)"+
			"\n\thave(%v)", 1, len(have))
	}
	if math.Abs(want-have[0]) > tolerance {
		t.Errorf("log probabilities differ \n\twant(%v)\n\thave(%v)",
			want, have[0])
	}
}

// TestBoundedGaussianMLPEvalDeterministic checks that evaluation mode
// always returns the distribution mean while training mode samples.
func TestBoundedGaussianMLPEvalDeterministic(t *testing.T) {
	p, env := newTestPolicy(t, 1, 91)
	defer p.Close()

	step := env.Reset()

	p.Eval()
	if !p.IsEval() {
		t.Error("policy should be in evaluation mode")
	}
	first := p.SelectAction(step).AtVec(0)
	for i := 0; i < 10; i++ {
		if a := p.SelectAction(step).AtVec(0); a != first {
			t.Errorf("evaluation mode action is not deterministic "+
				"\n\twant(%v)\n\thave(%v)", first, a)
		}
	}

	p.Train()
	if p.IsEval() {
		t.Error("policy should be in training mode")
	}
	sampled := false
	for i := 0; i < 10; i++ {
		if a := p.SelectAction(step).AtVec(0); a != first {
			sampled = true
		}
	}
	if !sampled {
		t.Error("training mode actions should be sampled")
	}
}

// TestBoundedGaussianMLPInitialStd checks that the standard deviation
// starts at the configured value for each action dimension.
func TestBoundedGaussianMLPInitialStd(t *testing.T) {
	p, _ := newTestPolicy(t, 1, 91)
	defer p.Close()

	for i, std := range p.Std() {
		if math.Abs(std-0.5) > tolerance {
			t.Errorf("incorrect initial standard deviation at dimension "+
				"%v \n\twant(%v)\n\thave(%v)", i, 0.5, std)
		}
	}
}

// TestBoundedGaussianMLPSet checks that Set copies both the mean
// network weights and the log standard deviation.
func TestBoundedGaussianMLPSet(t *testing.T) {
	source, _ := newTestPolicy(t, 1, 91)
	defer source.Close()
	dest, _ := newTestPolicy(t, 1, 92)
	defer dest.Close()

	obs := []float64{0.5, -0.5, 1.0}
	action := mat.NewVecDense(1, []float64{-0.3})

	want, err := source.LogProb(obs, action)
	if err != nil {
		t.Fatalf("could not compute log probability: %v", err)
	}

	if err := dest.Set(source); err != nil {
		t.Fatalf("could not set policy weights: %v", err)
	}

	have, err := dest.LogProb(obs, action)
	if err != nil {
		t.Fatalf("could not compute log probability: %v", err)
	}
	if math.Abs(want-have) > tolerance {
		t.Errorf("log probabilities differ after Set \n\twant(%v)"+
			"\n\thave(%v)", want, have)
	}
}

// TestBoundedGaussianMLPActionBounds checks that the raw network
// output is rescaled so that outputs of -1 and 1 map to the torque
// bounds.
func TestBoundedGaussianMLPActionBounds(t *testing.T) {
	p, _ := newTestPolicy(t, 1, 91)
	defer p.Close()

	if len(p.scale) != 1 || len(p.shift) != 1 {
		t.Fatalf("wrong number of action dimensions \n\twant(%v)"+
			"\n\thave(%v)", 1, len(p.scale))
	}
	if math.Abs(p.scale[0]-pendulum.TorqueBound) > tolerance {
		t.Errorf("incorrect action scale \n\twant(%v)\n\thave(%v)",
			pendulum.TorqueBound, p.scale[0])
	}
	if math.Abs(p.shift[0]) > tolerance {
		t.Errorf("incorrect action shift \n\twant(%v)\n\thave(%v)",
			0.0, p.shift[0])
	}
}
