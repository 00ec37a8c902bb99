// Package ppo implements the Proximal Policy Optimization algorithm
// with generalized advantage estimation (GAE) for continuous action
// spaces
//
// Adapted from the clipped surrogate objective of:
// https://arxiv.org/abs/1707.06347
package ppo

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goppo/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/network"
	ts "github.com/samuelfneumann/goppo/timestep"
	"github.com/samuelfneumann/goppo/utils/floatutils"
	"github.com/samuelfneumann/goppo/utils/matutils"
)

// Denominator floor for advantage normalization
const advantageEpsilon float64 = 1e-8

// PPO implements the Proximal Policy Optimization algorithm for
// continuous action spaces. Policies are diagonal Gaussian
// distributions whose mean is predicted by a neural network and whose
// standard deviation is a learned parameter independent of the state
// observation.
//
// The agent collects a fixed window of timesteps with a behaviour
// policy, computes GAE advantages at episode and window boundaries,
// and then performs several epochs of minibatch gradient steps on the
// clipped surrogate objective
//
//	L = -mean(min(r*A, clip(r, 1-ε, 1+ε)*A)) + c * mean((V(s) - R)²)
//
// where r is the probability ratio between the updated and behaviour
// policies. The policy network, critic network, and log standard
// deviation are updated jointly by a single solver. After each update
// the behaviour policy is synchronized with the updated weights and
// the collection window begins anew. Episodes are not cut off at
// window boundaries; collection resumes mid-episode, bootstrapping
// from the critic's value estimate.
type PPO struct {
	// Behaviour policy and value function, batch size 1, used for
	// action selection and state value prediction during collection
	behaviour *policy.BoundedGaussianMLP
	valueFn   network.NeuralNet
	vVM       G.VM

	// Train policy and value function, batch size BatchSize, sharing
	// a single computational graph so that one solver can update
	// both jointly
	trainPolicy  *policy.BoundedGaussianMLP
	trainValueFn network.NeuralNet
	trainVM      G.VM
	solver       G.Solver
	learnables   G.Nodes
	model        []G.ValueGrad

	// Input nodes of the update graph
	oldLogProbs *G.Node
	advantages  *G.Node
	returns     *G.Node
	oldValues   *G.Node // nil unless the clipped value loss is used

	// Diagnostics of the update graph
	policyLossVal G.Value
	valueLossVal  G.Value
	totalLossVal  G.Value
	klVal         G.Value

	buffer *Buffer
	stats  *Stats

	batchSize   int
	epochs      int
	maxGradNorm float64
	clipValueFn bool

	prevStep ts.TimeStep
	eval     bool
	seasons  int
}

// New creates and returns a new PPO agent acting in the argument
// environment, as described by the argument configuration.
func New(env environment.Environment, c Config) (*PPO, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	buffer := NewBuffer(features, actionDims, c.BufferSize, c.Lambda,
		c.Gamma, c.Seed)

	// Create the behaviour policy and prediction value function
	behaviour, err := policy.NewBoundedGaussianMLP(env, 1, G.NewGraph(),
		c.PolicyLayers, c.PolicyBiases, c.PolicyActivations,
		c.InitWFn.InitWFn(), c.InitialStd, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour policy: %v",
			err)
	}

	valueFn, err := network.NewMultiHeadMLP(features, 1, 1, G.NewGraph(),
		c.CriticLayers, c.CriticBiases, c.InitWFn.InitWFn(),
		c.CriticActivations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create value function: %v",
			err)
	}
	vVM := G.NewTapeMachine(valueFn.Graph())

	// Create the train policy and value function on a single graph
	g := G.NewGraph()
	trainPolicy, err := policy.NewBoundedGaussianMLP(env, c.BatchSize, g,
		c.PolicyLayers, c.PolicyBiases, c.PolicyActivations,
		c.InitWFn.InitWFn(), c.InitialStd, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create train policy: %v", err)
	}

	trainValueFn, err := network.NewNamedMultiHeadMLP(features, c.BatchSize,
		1, g, c.CriticLayers, c.CriticBiases, c.InitWFn.InitWFn(),
		c.CriticActivations, "Critic", "")
	if err != nil {
		return nil, fmt.Errorf("new: could not create train value "+
			"function: %v", err)
	}

	p := &PPO{
		behaviour: behaviour.(*policy.BoundedGaussianMLP),
		valueFn:   valueFn,
		vVM:       vVM,

		trainPolicy:  trainPolicy.(*policy.BoundedGaussianMLP),
		trainValueFn: trainValueFn,
		solver:       c.Solver,

		buffer: buffer,
		stats:  NewStats(),

		batchSize:   c.BatchSize,
		epochs:      c.Epochs,
		maxGradNorm: c.MaxGradNorm,
		clipValueFn: c.ClipValueFn,
	}

	if err := p.buildUpdateGraph(c); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	// Behaviour weights start equal to the train weights
	if err := p.sync(); err != nil {
		return nil, fmt.Errorf("new: could not synchronize behaviour "+
			"weights: %v", err)
	}

	return p, nil
}

// buildUpdateGraph adds the clipped surrogate objective, the value
// function loss, and the approximate KL divergence to the train
// networks' computational graph, computes the gradient of the total
// loss, and compiles a VM with bound dual values for the update.
func (p *PPO) buildUpdateGraph(c Config) error {
	g := p.trainPolicy.Network().Graph()

	p.oldLogProbs = G.NewVector(
		g,
		tensor.Float64,
		G.WithName("OldLogProbs"),
		G.WithShape(c.BatchSize),
		G.WithInit(G.Zeroes()),
	)
	p.advantages = G.NewVector(
		g,
		tensor.Float64,
		G.WithName("Advantages"),
		G.WithShape(c.BatchSize),
		G.WithInit(G.Zeroes()),
	)
	p.returns = G.NewVector(
		g,
		tensor.Float64,
		G.WithName("ReturnTargets"),
		G.WithShape(c.BatchSize),
		G.WithInit(G.Zeroes()),
	)

	// Probability ratio between the updated and behaviour policies,
	// clipped to [1-ε, 1+ε]
	logProb := p.trainPolicy.LogPdfNode()
	ratio := G.Must(G.Exp(G.Must(G.Sub(logProb, p.oldLogProbs))))
	clippedRatio := clip(ratio, 1-c.Epsilon, 1+c.Epsilon)

	// Clipped surrogate objective: the minimum of the unclipped and
	// clipped surrogates bounds how much a single update can improve
	// the objective for any one transition
	surrogate := G.Must(G.HadamardProd(ratio, p.advantages))
	clippedSurrogate := G.Must(G.HadamardProd(clippedRatio, p.advantages))
	pessimistic := minimum(surrogate, clippedSurrogate)

	policyLoss := G.Must(G.Neg(G.Must(G.Mean(pessimistic))))

	// Value function loss
	vPrediction := G.Must(G.Ravel(p.trainValueFn.Prediction()[0]))
	var valueLoss *G.Node
	if p.clipValueFn {
		// Clamp the change in value predictions relative to the
		// estimates recorded during collection before computing the
		// squared error, taking the elementwise worst case of the
		// clamped and unclamped errors
		p.oldValues = G.NewVector(
			g,
			tensor.Float64,
			G.WithName("OldValues"),
			G.WithShape(c.BatchSize),
			G.WithInit(G.Zeroes()),
		)
		vChange := G.Must(G.Sub(vPrediction, p.oldValues))
		vClipped := G.Must(G.Add(p.oldValues,
			clip(vChange, -c.Epsilon, c.Epsilon)))

		plainError := G.Must(G.Square(G.Must(G.Sub(vPrediction,
			p.returns))))
		clippedError := G.Must(G.Square(G.Must(G.Sub(vClipped,
			p.returns))))
		valueLoss = G.Must(G.Mean(maximum(plainError, clippedError)))
	} else {
		valueLoss = G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(vPrediction,
			p.returns))))))
	}

	valueCoeff := G.NewConstant(c.ValueCoeff)
	totalLoss := G.Must(G.Add(policyLoss,
		G.Must(G.Mul(valueCoeff, valueLoss))))

	// First order approximation of the KL divergence between the
	// behaviour and updated policies
	kl := G.Must(G.Mean(G.Must(G.Sub(p.oldLogProbs, logProb))))

	G.Read(policyLoss, &p.policyLossVal)
	G.Read(valueLoss, &p.valueLossVal)
	G.Read(totalLoss, &p.totalLossVal)
	G.Read(kl, &p.klVal)

	p.learnables = append(p.trainPolicy.Learnables(),
		p.trainValueFn.Learnables()...)
	p.model = append(p.trainPolicy.Model(), p.trainValueFn.Model()...)

	if _, err := G.Grad(totalLoss, p.learnables...); err != nil {
		return fmt.Errorf("could not compute gradient: %v", err)
	}
	p.trainVM = G.NewTapeMachine(g, G.BindDualValues(p.learnables...))

	return nil
}

// clip clamps each element of the argument node to [lo, hi] using
// rectifier identities, since no clamping op exists on the graph:
//
//	clip(x, lo, hi) = lo + relu(x - lo) - relu(x - hi)
func clip(x *G.Node, lo, hi float64) *G.Node {
	loNode := G.NewConstant(lo)
	hiNode := G.NewConstant(hi)

	lower := G.Must(G.Rectify(G.Must(G.Sub(x, loNode))))
	upper := G.Must(G.Rectify(G.Must(G.Sub(x, hiNode))))

	clipped := G.Must(G.Add(loNode, lower))
	return G.Must(G.Sub(clipped, upper))
}

// minimum computes the elementwise minimum of two nodes of the same
// shape: min(a, b) = a - relu(a - b)
func minimum(a, b *G.Node) *G.Node {
	return G.Must(G.Sub(a, G.Must(G.Rectify(G.Must(G.Sub(a, b))))))
}

// maximum computes the elementwise maximum of two nodes of the same
// shape: max(a, b) = a + relu(b - a)
func maximum(a, b *G.Node) *G.Node {
	return G.Must(G.Add(a, G.Must(G.Rectify(G.Must(G.Sub(b, a))))))
}

// SelectAction samples and returns an action from the behaviour
// policy at the argument timestep.
func (p *PPO) SelectAction(t ts.TimeStep) *mat.VecDense {
	if t != p.prevStep {
		panic("selectAction: timestep is different from that previously " +
			"recorded")
	}
	return p.behaviour.SelectAction(t)
}

// ObserveFirst observes and records information about the first
// timestep in an episode.
func (p *PPO) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n",
			t.Number)
	}
	p.prevStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. The transition leading to the argument timestep is stored
// in the rollout buffer, and when the timestep ends an episode or
// fills the buffer, the advantages of the current trajectory are
// computed.
func (p *PPO) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if p.eval {
		p.prevStep = nextStep
		return nil
	}

	obs := p.prevStep.Observation.RawVector().Data
	value, err := p.stateValue(obs)
	if err != nil {
		return fmt.Errorf("observe: could not predict state value: %v", err)
	}

	logProb, err := p.behaviour.LogProb(obs, action)
	if err != nil {
		return fmt.Errorf("observe: could not compute action log "+
			"probability: %v", err)
	}

	a := action.(*mat.VecDense).RawVector().Data
	err = p.buffer.Store(obs, a, nextStep.Reward, value, logProb)
	if err != nil {
		return fmt.Errorf("observe: could not store transition: %v", err)
	}

	p.stats.AddReward(nextStep.Reward)
	p.prevStep = nextStep
	nextObs := nextStep.Observation.RawVector().Data

	if nextStep.Last() {
		p.stats.EndEpisode()

		terminal := nextStep.TerminalEnd()
		lastVal := 0.0
		if !terminal {
			// Truncated without termination, e.g. by an environment
			// timeout, so the remaining return is bootstrapped
			lastVal, err = p.stateValue(nextObs)
			if err != nil {
				return fmt.Errorf("observe: could not bootstrap from "+
					"truncated state: %v", err)
			}
		}
		err = p.buffer.CompleteTrajectory(terminal, lastVal)
	} else if p.buffer.Full() {
		// The collection window ended mid-episode. The episode will
		// continue after the update, so the trajectory bootstraps
		// from the critic's estimate of the next state.
		lastVal, vErr := p.stateValue(nextObs)
		if vErr != nil {
			return fmt.Errorf("observe: could not bootstrap at window "+
				"boundary: %v", vErr)
		}
		err = p.buffer.CompleteTrajectory(false, lastVal)
	}
	if err != nil {
		return fmt.Errorf("observe: could not complete trajectory: %v", err)
	}

	return nil
}

// Step updates the agent. The update runs only once the collection
// window has filled; on all other timesteps Step is a no-op. If the
// agent is in evaluation mode, Step always simply returns.
func (p *PPO) Step() error {
	if p.eval || !p.buffer.Full() {
		return nil
	}

	for epoch := 0; epoch < p.epochs; epoch++ {
		iter, err := p.buffer.MiniBatches(p.batchSize)
		if err != nil {
			return fmt.Errorf("step: could not gather minibatches: %v", err)
		}

		for iter.Next() {
			if err := p.update(iter.MiniBatch()); err != nil {
				return fmt.Errorf("step: %v", err)
			}
		}
	}

	if err := p.sync(); err != nil {
		return fmt.Errorf("step: could not synchronize behaviour "+
			"weights: %v", err)
	}
	p.buffer.Clear()

	p.seasons++
	p.report()
	p.stats.Reset()

	return nil
}

// report prints the diagnostics of the collection window that the
// agent just updated on.
func (p *PPO) report() {
	std := stat.Mean(p.Std(), nil)

	reward, ok := p.stats.MeanEpisodicReward()
	if !ok {
		fmt.Printf("\nSeason %d | no episodes completed | policy loss: "+
			"%.4f | value loss: %.4f | kl: %.5f | std: %.4f\n",
			p.seasons, p.stats.MeanPolicyLoss(), p.stats.MeanValueLoss(),
			p.stats.MeanKL(), std)
		return
	}

	fmt.Printf("\nSeason %d | mean episodic reward: %.2f | policy loss: "+
		"%.4f | value loss: %.4f | kl: %.5f | std: %.4f\n",
		p.seasons, reward, p.stats.MeanPolicyLoss(),
		p.stats.MeanValueLoss(), p.stats.MeanKL(), std)
}

// update performs a single gradient step on the argument minibatch,
// recording the update's diagnostics in the agent's Stats.
func (p *PPO) update(batch MiniBatch) error {
	// Normalize advantages to zero mean and unit variance. The
	// epsilon floor guards against division by zero on batches with
	// near-constant advantage.
	adv := mat.NewVecDense(len(batch.Advantages),
		floatutils.Duplicate(batch.Advantages))
	ones := matutils.VecOnes(adv.Len())
	mean := stat.Mean(batch.Advantages, nil)
	std := stat.PopStdDev(batch.Advantages, nil) + advantageEpsilon
	stdVec := mat.NewVecDense(adv.Len(), nil)
	stdVec.AddScaledVec(stdVec, std, ones)

	adv.AddScaledVec(adv, -mean, ones)
	adv.DivElemVec(adv, stdVec)

	if _, err := p.trainPolicy.LogPdfOf(batch.Obs, batch.Actions); err != nil {
		return fmt.Errorf("update: could not set policy inputs: %v", err)
	}
	if err := p.trainValueFn.SetInput(batch.Obs); err != nil {
		return fmt.Errorf("update: could not set critic inputs: %v", err)
	}

	inputs := map[*G.Node][]float64{
		p.oldLogProbs: batch.LogProbs,
		p.advantages:  adv.RawVector().Data,
		p.returns:     batch.Returns,
	}
	if p.clipValueFn {
		inputs[p.oldValues] = batch.Values
	}
	for node, data := range inputs {
		backing := tensor.New(
			tensor.WithBacking(data),
			tensor.WithShape(node.Shape()...),
		)
		if err := G.Let(node, backing); err != nil {
			return fmt.Errorf("update: could not set %v: %v", node.Name(),
				err)
		}
	}

	if err := p.trainVM.RunAll(); err != nil {
		return fmt.Errorf("update: could not run update VM: %v", err)
	}
	defer p.trainVM.Reset()

	if p.maxGradNorm > 0 {
		if err := clipGradNorm(p.learnables, p.maxGradNorm); err != nil {
			return fmt.Errorf("update: could not clip gradients: %v", err)
		}
	}

	if err := p.solver.Step(p.model); err != nil {
		return fmt.Errorf("update: could not step solver: %v", err)
	}

	p.stats.AddUpdate(
		p.policyLossVal.Data().(float64),
		p.valueLossVal.Data().(float64),
		p.totalLossVal.Data().(float64),
		p.klVal.Data().(float64),
	)

	return nil
}

// clipGradNorm rescales the gradients of the argument learnables so
// that their global norm does not exceed maxNorm. Gradients are
// modified in place.
func clipGradNorm(learnables G.Nodes, maxNorm float64) error {
	grads := make([][]float64, len(learnables))

	sumSquares := 0.0
	for i, learnable := range learnables {
		grad, err := learnable.Grad()
		if err != nil {
			return fmt.Errorf("clipGradNorm: could not get gradient of "+
				"%v: %v", learnable.Name(), err)
		}

		grads[i] = grad.Data().([]float64)
		sumSquares += floats.Dot(grads[i], grads[i])
	}

	norm := math.Sqrt(sumSquares)
	if norm <= maxNorm {
		return nil
	}

	scale := maxNorm / norm
	for _, grad := range grads {
		floats.Scale(scale, grad)
	}
	return nil
}

// sync sets the weights of the behaviour policy and prediction value
// function to those of the train policy and train value function.
func (p *PPO) sync() error {
	if err := p.behaviour.Set(p.trainPolicy); err != nil {
		return err
	}
	return network.Set(p.valueFn, p.trainValueFn)
}

// stateValue predicts the value of the state with the argument
// observation using the prediction value function.
func (p *PPO) stateValue(obs []float64) (float64, error) {
	if err := p.valueFn.SetInput(obs); err != nil {
		return 0, err
	}
	if err := p.vVM.RunAll(); err != nil {
		return 0, err
	}
	defer p.vVM.Reset()

	value := p.valueFn.Output()[0].Data().([]float64)
	if len(value) != 1 {
		return 0, fmt.Errorf("stateValue: multiple values predicted for " +
			"state value")
	}
	return value[0], nil
}

// EndEpisode performs cleanup at the end of an episode. Collection
// windows span episode boundaries, so no cleanup is needed.
func (p *PPO) EndEpisode() {}

// Eval sets the algorithm into evaluation mode
func (p *PPO) Eval() {
	p.eval = true
	p.behaviour.Eval()
}

// Train sets the algorithm into training mode
func (p *PPO) Train() {
	p.eval = false
	p.behaviour.Train()
}

// IsEval returns whether the algorithm is in evaluation mode
func (p *PPO) IsEval() bool { return p.eval }

// Std returns the current standard deviation of the policy along each
// action dimension
func (p *PPO) Std() []float64 {
	return p.trainPolicy.Std()
}

// Stats returns the Stats accumulating the agent's training
// diagnostics. Callers reset the Stats at report boundaries.
func (p *PPO) Stats() *Stats {
	return p.stats
}

// Save writes the agent's policy and value function weights to the
// files actor.bin and critic.bin under the argument directory,
// creating the directory if needed.
func (p *PPO) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("save: could not create directory: %v", err)
	}

	err := p.behaviour.Save(filepath.Join(dir, "actor.bin"))
	if err != nil {
		return fmt.Errorf("save: could not save policy network: %v", err)
	}

	err = network.Save(p.valueFn, filepath.Join(dir, "critic.bin"))
	if err != nil {
		return fmt.Errorf("save: could not save value function: %v", err)
	}
	return nil
}

// Close cleans up the agent's VM resources
func (p *PPO) Close() error {
	if err := p.behaviour.Close(); err != nil {
		return err
	}
	if err := p.trainPolicy.Close(); err != nil {
		return err
	}
	if err := p.vVM.Close(); err != nil {
		return err
	}
	return p.trainVM.Close()
}
