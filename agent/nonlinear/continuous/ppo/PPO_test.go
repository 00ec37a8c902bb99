package ppo

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/goppo/initwfn"
	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/solver"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// testEnvironment returns a pendulum swing-up environment with short
// episodes for testing
func testEnvironment(t *testing.T, seed uint64) environment.Environment {
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

	return env
}

// testConfig returns a small agent configuration for testing
func testConfig(t *testing.T, seed uint64) Config {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}
	adam, err := solver.NewDefaultAdam(3e-4, 8)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}

	return Config{
		PolicyLayers:      []int{8},
		PolicyBiases:      []bool{true},
		PolicyActivations: []*network.Activation{network.TanH()},

		CriticLayers:      []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.TanH()},

		InitWFn: init,
		Solver:  adam,

		BufferSize:  16,
		BatchSize:   8,
		Epochs:      2,
		Gamma:       0.99,
		Lambda:      0.95,
		Epsilon:     0.2,
		ValueCoeff:  0.5,
		MaxGradNorm: 0.5,
		InitialStd:  1.0,

		Seed: seed,
	}
}

// runWindow steps an agent through the argument environment until one
// full collection window has been updated on
func runWindow(t *testing.T, env environment.Environment, p *PPO) {
	t.Helper()

	step := env.Reset()
	if err := p.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	for p.seasons == 0 {
		if step.Last() {
			p.EndEpisode()
			step = env.Reset()
			if err := p.ObserveFirst(step); err != nil {
				t.Fatalf("could not observe first timestep: %v", err)
			}
		}

		action := p.SelectAction(step)
		step, _ = env.Step(action)
		if err := p.Observe(action, step); err != nil {
			t.Fatalf("could not observe timestep: %v", err)
		}
		if err := p.Step(); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
	}
}

// TestClipIdentities checks the rectifier formulations of elementwise
// clamping, minimum, and maximum used by the update graph.
func TestClipIdentities(t *testing.T) {
	g := G.NewGraph()
	x := G.NewVector(g, tensor.Float64, G.WithName("x"), G.WithShape(5),
		G.WithInit(G.Zeroes()))
	y := G.NewVector(g, tensor.Float64, G.WithName("y"), G.WithShape(5),
		G.WithInit(G.Zeroes()))

	clipped := clip(x, 0.8, 1.2)
	mn := minimum(x, y)
	mx := maximum(x, y)

	var clippedVal, mnVal, mxVal G.Value
	G.Read(clipped, &clippedVal)
	G.Read(mn, &mnVal)
	G.Read(mx, &mxVal)

	xBacking := []float64{0.5, 0.9, 1.0, 1.3, -2.0}
	yBacking := []float64{1.0, 0.0, 1.0, -1.0, 5.0}
	err := G.Let(x, tensor.New(tensor.WithBacking(xBacking),
		tensor.WithShape(5)))
	if err != nil {
		t.Fatalf("could not set x: %v", err)
	}
	err = G.Let(y, tensor.New(tensor.WithBacking(yBacking),
		tensor.WithShape(5)))
	if err != nil {
		t.Fatalf("could not set y: %v", err)
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run VM: %v", err)
	}

	expectedClip := []float64{0.8, 0.9, 1.0, 1.2, 0.8}
	expectedMin := []float64{0.5, 0.0, 1.0, -1.0, -2.0}
	expectedMax := []float64{1.0, 0.9, 1.0, 1.3, 5.0}

	haveClip := clippedVal.Data().([]float64)
	haveMin := mnVal.Data().([]float64)
	haveMax := mxVal.Data().([]float64)

	for i := 0; i < 5; i++ {
		if math.Abs(haveClip[i]-expectedClip[i]) > tolerance {
			t.Errorf("incorrect clip at index %v \n\twant(%v)\n\thave(%v)",
				i, expectedClip[i], haveClip[i])
		}
		if math.Abs(haveMin[i]-expectedMin[i]) > tolerance {
			t.Errorf("incorrect min at index %v \n\twant(%v)\n\thave(%v)",
				i, expectedMin[i], haveMin[i])
		}
		if math.Abs(haveMax[i]-expectedMax[i]) > tolerance {
			t.Errorf("incorrect max at index %v \n\twant(%v)\n\thave(%v)",
				i, expectedMax[i], haveMax[i])
		}
	}
}

// TestPPOUpdateFiniteLoss runs one full collection window and update
// and checks that every loss and diagnostic is finite.
func TestPPOUpdateFiniteLoss(t *testing.T) {
	var seed uint64 = 14
	env := testEnvironment(t, seed)

	p, err := New(env, testConfig(t, seed))
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer p.Close()

	runWindow(t, env, p)

	diagnostics := map[string]float64{
		"policy loss": p.policyLossVal.Data().(float64),
		"value loss":  p.valueLossVal.Data().(float64),
		"total loss":  p.totalLossVal.Data().(float64),
		"kl":          p.klVal.Data().(float64),
	}
	for name, value := range diagnostics {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			t.Errorf("%v is not finite \n\thave(%v)", name, value)
		}
	}

	for _, std := range p.Std() {
		if math.IsNaN(std) || math.IsInf(std, 0) || std <= 0 {
			t.Errorf("standard deviation is not positive and finite "+
				"\n\thave(%v)", std)
		}
	}
}

// TestPPOUpdateConstantAdvantage checks that an update on a batch
// with constant advantages does not produce NaN or Inf losses: the
// normalization denominator is floored, and the normalized advantages
// are all zero, so the policy loss must be exactly zero.
func TestPPOUpdateConstantAdvantage(t *testing.T) {
	var seed uint64 = 14
	env := testEnvironment(t, seed)

	config := testConfig(t, seed)
	p, err := New(env, config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer p.Close()

	n := config.BatchSize
	batch := MiniBatch{
		Obs:        make([]float64, n*3),
		Actions:    make([]float64, n),
		LogProbs:   make([]float64, n),
		Advantages: make([]float64, n),
		Returns:    make([]float64, n),
		Values:     make([]float64, n),
		Size:       n,
	}
	for i := 0; i < n; i++ {
		batch.Obs[i*3] = 1.0 // Pendulum hanging at rest
		batch.Advantages[i] = 0.5
		batch.LogProbs[i] = -1.0
		batch.Returns[i] = -1.0
	}

	if err := p.update(batch); err != nil {
		t.Fatalf("could not update: %v", err)
	}

	policyLoss := p.policyLossVal.Data().(float64)
	if math.Abs(policyLoss) > tolerance {
		t.Errorf("policy loss should be 0 for constant advantages "+
			"\n\thave(%v)", policyLoss)
	}

	totalLoss := p.totalLossVal.Data().(float64)
	if math.IsNaN(totalLoss) || math.IsInf(totalLoss, 0) {
		t.Errorf("total loss is not finite \n\thave(%v)", totalLoss)
	}
}

// TestPPOUpdateBoundedPolicyLoss checks that the magnitude of the
// clipped surrogate loss never exceeds the largest normalized
// advantage magnitude scaled by 1 + ε.
func TestPPOUpdateBoundedPolicyLoss(t *testing.T) {
	var seed uint64 = 14
	env := testEnvironment(t, seed)

	config := testConfig(t, seed)
	p, err := New(env, config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer p.Close()

	n := config.BatchSize
	batch := MiniBatch{
		Obs:        make([]float64, n*3),
		Actions:    make([]float64, n),
		LogProbs:   make([]float64, n),
		Advantages: make([]float64, n),
		Returns:    make([]float64, n),
		Values:     make([]float64, n),
		Size:       n,
	}
	for i := 0; i < n; i++ {
		batch.Obs[i*3] = 1.0
		batch.Obs[i*3+2] = float64(i) / float64(n)
		batch.Actions[i] = float64(i%3) - 1.0
		batch.Advantages[i] = float64(i) - 2.5
		batch.LogProbs[i] = -2.0
		batch.Returns[i] = -float64(i)
	}

	if err := p.update(batch); err != nil {
		t.Fatalf("could not update: %v", err)
	}

	// Replicate the update's advantage normalization to compute the
	// loss bound
	mean := stat.Mean(batch.Advantages, nil)
	std := stat.PopStdDev(batch.Advantages, nil) + advantageEpsilon

	maxAdvantage := 0.0
	for _, a := range batch.Advantages {
		normalized := math.Abs((a - mean) / std)
		if normalized > maxAdvantage {
			maxAdvantage = normalized
		}
	}
	bound := maxAdvantage * (1 + config.Epsilon)

	policyLoss := math.Abs(p.policyLossVal.Data().(float64))
	if policyLoss > bound+tolerance {
		t.Errorf("policy loss exceeds clipped bound \n\twant(<=%v)"+
			"\n\thave(%v)", bound, policyLoss)
	}
}

// TestPPOUpdatePolicyLossMatchesFormula recomputes the clipped
// surrogate loss outside the computational graph, normalizing the
// advantages to zero mean and unit population standard deviation, and
// checks that the in-graph loss agrees exactly.
func TestPPOUpdatePolicyLossMatchesFormula(t *testing.T) {
	var seed uint64 = 14
	env := testEnvironment(t, seed)

	config := testConfig(t, seed)
	p, err := New(env, config)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer p.Close()

	n := config.BatchSize
	batch := MiniBatch{
		Obs:        make([]float64, n*3),
		Actions:    make([]float64, n),
		LogProbs:   make([]float64, n),
		Advantages: make([]float64, n),
		Returns:    make([]float64, n),
		Values:     make([]float64, n),
		Size:       n,
	}
	for i := 0; i < n; i++ {
		batch.Obs[i*3] = math.Cos(float64(i))
		batch.Obs[i*3+1] = math.Sin(float64(i))
		batch.Obs[i*3+2] = float64(i)/float64(n) - 0.5
		batch.Actions[i] = float64(i%5)/2.0 - 1.0
		batch.Advantages[i] = math.Sin(float64(i)) * 3.0
		batch.LogProbs[i] = -1.5 + float64(i%3)
		batch.Returns[i] = -float64(i) / 2.0
	}

	if err := p.update(batch); err != nil {
		t.Fatalf("could not update: %v", err)
	}

	// Log probabilities of the batch actions under the updated graph's
	// forward pass, read during the update run
	logProbs := p.trainPolicy.LogPdfVal().Data().([]float64)
	if len(logProbs) != n {
		t.Fatalf("wrong number of log probabilities \n\twant(%v)"+
			"\n\thave(%v)", n, len(logProbs))
	}

	mean := stat.Mean(batch.Advantages, nil)
	std := stat.PopStdDev(batch.Advantages, nil) + advantageEpsilon

	want := 0.0
	for i := 0; i < n; i++ {
		advantage := (batch.Advantages[i] - mean) / std
		ratio := math.Exp(logProbs[i] - batch.LogProbs[i])
		clipped := floatutils.Clip(ratio, 1-config.Epsilon,
			1+config.Epsilon)
		want -= math.Min(ratio*advantage, clipped*advantage) / float64(n)
	}

	have := p.policyLossVal.Data().(float64)
	if math.Abs(want-have) > tolerance {
		t.Errorf("policy loss does not match closed form \n\twant(%v)"+
			"\n\thave(%v)", want, have)
	}
}

// TestPPOSaveLoad checks that saved networks, loaded back from disk,
// reproduce the agent's value estimates and mean actions exactly.
func TestPPOSaveLoad(t *testing.T) {
	var seed uint64 = 14
	env := testEnvironment(t, seed)

	p, err := New(env, testConfig(t, seed))
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer p.Close()

	runWindow(t, env, p)

	dir := t.TempDir()
	if err := p.Save(dir); err != nil {
		t.Fatalf("could not save agent: %v", err)
	}

	obs := []float64{1.0, 0.0, 0.5}

	// Critic round trip
	wantValue, err := p.stateValue(obs)
	if err != nil {
		t.Fatalf("could not predict state value: %v", err)
	}

	critic, err := network.Load(filepath.Join(dir, "critic.bin"))
	if err != nil {
		t.Fatalf("could not load critic: %v", err)
	}
	haveValue := forward(t, critic, obs)[0]

	if math.Abs(wantValue-haveValue) > tolerance {
		t.Errorf("loaded critic value differs \n\twant(%v)\n\thave(%v)",
			wantValue, haveValue)
	}

	// Actor round trip. The saved network predicts the raw mean,
	// which the policy rescales into the action bounds: for the
	// pendulum's symmetric bounds the scale is the torque bound.
	p.Eval()
	step := env.Reset()
	step.Observation.SetVec(0, obs[0])
	step.Observation.SetVec(1, obs[1])
	step.Observation.SetVec(2, obs[2])
	wantMean := p.behaviour.SelectAction(step).AtVec(0)

	actor, err := network.Load(filepath.Join(dir, "actor.bin"))
	if err != nil {
		t.Fatalf("could not load actor: %v", err)
	}
	haveMean := forward(t, actor, obs)[0] * pendulum.TorqueBound

	if math.Abs(wantMean-haveMean) > tolerance {
		t.Errorf("loaded actor mean differs \n\twant(%v)\n\thave(%v)",
			wantMean, haveMean)
	}
}

// forward runs a single forward pass of a network on an observation
func forward(t *testing.T, net network.NeuralNet, obs []float64) []float64 {
	t.Helper()

	if err := net.SetInput(obs); err != nil {
		t.Fatalf("could not set network input: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run network: %v", err)
	}

	return net.Output()[0].Data().([]float64)
}
