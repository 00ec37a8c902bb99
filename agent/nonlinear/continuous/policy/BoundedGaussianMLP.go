// Package policy implements policies for continuous-action agents
// using neural network function approximation
package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/timestep"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

// BoundedGaussianMLP implements a diagonal Gaussian policy over a
// bounded continuous action space. An MLP predicts the mean of the
// Gaussian from the state observation. The raw network output is
// affinely rescaled so that an output of -1 maps to the lower action
// bound and an output of +1 maps to the upper action bound. No
// squashing nonlinearity is applied, so the mean may leave the action
// bounds during learning.
//
// The log standard deviation is a learnable parameter of the policy
// and does not depend on the state observation.
//
// Actions are selected by sampling from the standard normal
// ɛ ~ N(0, 1) and computing action := μ + σ * ɛ similar to the
// reparameterization trick. In evaluation mode the mean action is
// returned.
//
// Given a number of continuous actions in a number of states, the
// BoundedGaussianMLP can calculate the log probability of selecting
// each of these actions in each corresponding state. This is useful
// for constructing policy gradient losses.
type BoundedGaussianMLP struct {
	vm  G.VM
	net network.NeuralNet

	mean   *G.Node
	logStd *G.Node
	std    *G.Node

	actions    *G.Node
	logPdfNode *G.Node
	logPdfVal  G.Value

	normal          distmv.Rander
	actionDims      int
	batchForLogProb int
	seed            uint64

	// Affine rescaling of the raw network output to the action bounds
	scale []float64
	shift []float64

	meanVal   G.Value
	stddevVal G.Value

	eval bool
}

// NewBoundedGaussianMLP returns a new BoundedGaussianMLP policy that
// selects actions from the argument environment. The MLP predicting
// the mean is defined by hiddenSizes, biases, and activations; see
// network.NewMultiHeadMLP for details on these parameters. The
// initialStd parameter sets the initial standard deviation of the
// policy along each action dimension and must be positive.
//
// The policy can be a batch policy when batchForLogProb > 1. In such
// a case, the log probability of actions can be computed for a batch
// of actions, but actions cannot be selected on each timestep with
// SelectAction(). Only when batchForLogProb = 1 can actions be
// selected at each timestep.
//
// The init parameter determines the weight initialization scheme for
// the neural net and the seed parameter determines the seed of the
// policy's action sampler.
func NewBoundedGaussianMLP(env environment.Environment, batchForLogProb int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*network.Activation, init G.InitWFn, initialStd float64,
	seed uint64) (agent.LogPdfOfer, error) {

	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newBoundedGaussianMLP: actions must be " +
			"continuous")
	}
	if initialStd <= 0 {
		return nil, fmt.Errorf("newBoundedGaussianMLP: initial standard "+
			"deviation must be positive \n\thave(%v)", initialStd)
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	net, err := network.NewMultiHeadMLP(
		features,
		batchForLogProb,
		actionDims,
		g,
		hiddenSizes,
		biases,
		init,
		activations,
	)
	if err != nil {
		return nil, fmt.Errorf("newBoundedGaussianMLP: could not create "+
			"policy network: %v", err)
	}

	// Rescale the raw network output to the action bounds. A raw
	// output of -1 maps to the lower bound and +1 to the upper bound.
	scale := make([]float64, actionDims)
	shift := make([]float64, actionDims)
	for i := 0; i < actionDims; i++ {
		low := env.ActionSpec().LowerBound.AtVec(i)
		high := env.ActionSpec().UpperBound.AtVec(i)
		scale[i] = (high - low) / 2.0
		shift[i] = low + (high-low)/2.0
	}

	return newBoundedGaussianMLP(net, actionDims, scale, shift,
		math.Log(initialStd), seed)
}

// newBoundedGaussianMLP constructs a BoundedGaussianMLP on the graph
// of an existing mean network. The logStdInit parameter is the value
// to which each component of the log standard deviation is
// initialized.
func newBoundedGaussianMLP(net network.NeuralNet, actionDims int,
	scale, shift []float64, logStdInit float64,
	seed uint64) (*BoundedGaussianMLP, error) {
	g := net.Graph()
	batchForLogProb := net.BatchSize()

	scaleNode := G.NewConstant(
		tensor.New(
			tensor.WithBacking(floatutils.Duplicate(scale)),
			tensor.WithShape(1, actionDims),
		),
		G.WithName("actionScale"),
	)
	shiftNode := G.NewConstant(
		tensor.New(
			tensor.WithBacking(floatutils.Duplicate(shift)),
			tensor.WithShape(1, actionDims),
		),
		G.WithName("actionShift"),
	)

	raw := net.Prediction()[0]
	mean := G.Must(G.BroadcastHadamardProd(raw, scaleNode, nil, []byte{0}))
	mean = G.Must(G.BroadcastAdd(mean, shiftNode, nil, []byte{0}))

	// The log standard deviation is state independent
	logStd := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, actionDims),
		G.WithName("LogStd"),
		G.WithInit(G.ValuesOf(logStdInit)),
	)
	std := G.Must(G.Exp(logStd))

	// Calculate log probability of input actions
	actions := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName("InputActions"),
		G.WithShape(batchForLogProb, actionDims),
		G.WithInit(G.Zeroes()),
	)
	logPdfNode := logPdf(mean, logStd, std, actions)

	// Create standard normal for action selection
	means := make([]float64, actionDims)
	sigmas := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, sigmas, source)
	if !ok {
		return nil, fmt.Errorf("newBoundedGaussianMLP: could not create " +
			"standard normal for action selection")
	}

	pol := &BoundedGaussianMLP{
		net: net,

		mean:   mean,
		logStd: logStd,
		std:    std,

		actions:    actions,
		logPdfNode: logPdfNode,

		normal:          normal,
		actionDims:      actionDims,
		batchForLogProb: batchForLogProb,
		seed:            seed,

		scale: scale,
		shift: shift,
	}

	// Record values of Gorgonia nodes
	G.Read(pol.logPdfNode, &pol.logPdfVal)
	G.Read(mean, &pol.meanVal)
	G.Read(std, &pol.stddevVal)

	// Policy can select actions at each timestep only if using a batch
	// size of 1.
	if batchForLogProb == 1 {
		pol.vm = G.NewTapeMachine(g)
	}

	return pol, nil
}

// logPdf adds nodes to the computational graph for computing the log
// probability of the argument actions under a diagonal Gaussian with
// the argument mean and standard deviation. The std node must have
// shape (1, actionDims) and is broadcast along the batch dimension.
// The returned node holds one log probability per batch row.
func logPdf(mean, logStd, std, actions *G.Node) *G.Node {
	graph := mean.Graph()
	if graph != std.Graph() || graph != actions.Graph() {
		panic("logPdf: all nodes must share the same graph")
	}

	negativeHalf := G.NewConstant(-0.5)
	two := G.NewConstant(2.0)
	halfLog2Pi := G.NewConstant(math.Log(math.Pow(2*math.Pi, 0.5)))

	// Per-dimension log density of the diagonal Gaussian:
	// -0.5 * ((a - μ)/σ)² - log(σ) - 0.5*log(2π)
	z := G.Must(G.Sub(actions, mean))
	z = G.Must(G.BroadcastHadamardDiv(z, std, nil, []byte{0}))
	exponent := G.Must(G.Pow(z, two))
	exponent = G.Must(G.HadamardProd(negativeHalf, exponent))

	perDim := G.Must(G.BroadcastSub(exponent, logStd, nil, []byte{0}))
	perDim = G.Must(G.Sub(perDim, halfLog2Pi))

	// Dimensions are independent, so the joint log probability of each
	// batch row is the sum along the action dimension
	logProb := G.Must(G.Sum(perDim, 1))
	logProb = G.Must(G.Ravel(logProb))

	return logProb
}

// LogPdfOf sets the state and action inputs of the policy's
// computational graph to the argument states and actions (s and a
// respectively) so that when a VM of the policy is run, the log
// probability of actions a taken in states s will be computed and
// stored in the policy's associated log PDF node, which is returned.
//
// The reason this function does not return the log PDF of actions is
// because this would require running the policy's VM, which does
// not contain any loss function. The log PDF of actions is generally
// needed in loss functions, and a separate, external VM will be needed
// to calculate the loss of the policy using the log PDF and update
// the weights accordingly.
func (b *BoundedGaussianMLP) LogPdfOf(s, a []float64) (*G.Node, error) {
	if err := b.Network().SetInput(s); err != nil {
		return nil, fmt.Errorf("logPdfOf: could not set states: %v", err)
	}

	actionsTensor := tensor.NewDense(tensor.Float64,
		[]int{b.batchForLogProb, b.actionDims},
		tensor.WithBacking(a),
	)
	err := G.Let(b.actions, actionsTensor)
	if err != nil {
		return nil, fmt.Errorf("logPdfOf: could not set actions: %v", err)
	}

	return b.LogPdfNode(), nil
}

// SelectAction selects and returns an action at the argument timestep
// t. In training mode the action is sampled from the policy's
// Gaussian distribution; in evaluation mode the mean action is
// returned.
func (b *BoundedGaussianMLP) SelectAction(t timestep.TimeStep) *mat.VecDense {
	if size := b.Network().BatchSize(); size != 1 {
		panic(fmt.Sprintf("selectAction: action selection can only be done "+
			"with a policy with batch size 1 \n\twant(1) \n\thave(%v)", size))
	}

	obs := t.Observation.RawVector().Data
	if err := b.Network().SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectAction: cannot set input: %v", err))
	}

	if err := b.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("selectAction: could not run policy VM: %v", err))
	}
	defer b.vm.Reset()

	mean := mat.NewVecDense(b.actionDims, b.meanVal.Data().([]float64))
	if b.eval {
		return mean
	}

	stddev := mat.NewVecDense(b.actionDims, b.stddevVal.Data().([]float64))
	eps := mat.NewVecDense(b.actionDims, b.normal.Rand(nil))

	stddev.MulElemVec(stddev, eps)
	mean.AddVec(mean, stddev)

	return mean
}

// LogProb computes the log probability of taking the argument action
// given the argument observation under the policy's current
// distribution. The mean is computed by a forward pass of the policy
// network and the log probability is then computed in closed form,
// outside the computational graph. Only policies with batch size 1
// can compute single-action log probabilities.
func (b *BoundedGaussianMLP) LogProb(obs []float64,
	action mat.Vector) (float64, error) {
	if size := b.Network().BatchSize(); size != 1 {
		return 0, fmt.Errorf("logProb: log probabilities of single actions "+
			"can only be computed with a policy with batch size 1 "+
			"\n\twant(1) \n\thave(%v)", size)
	}

	if err := b.Network().SetInput(obs); err != nil {
		return 0, fmt.Errorf("logProb: cannot set input: %v", err)
	}
	if err := b.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("logProb: could not run policy VM: %v", err)
	}
	defer b.vm.Reset()

	mean := b.meanVal.Data().([]float64)
	stddev := b.stddevVal.Data().([]float64)

	logProb := 0.0
	for i := 0; i < b.actionDims; i++ {
		z := (action.AtVec(i) - mean[i]) / stddev[i]
		logProb += -0.5*z*z - math.Log(stddev[i]) -
			0.5*math.Log(2.0*math.Pi)
	}
	return logProb, nil
}

// LogPdfNode returns the node that will hold the log probability
// of actions when the computational graph is run.
func (b *BoundedGaussianMLP) LogPdfNode() *G.Node {
	return b.logPdfNode
}

// LogPdfVal returns the value of the node returned by LogPdfNode()
func (b *BoundedGaussianMLP) LogPdfVal() G.Value {
	return b.logPdfVal
}

// Mean returns the node of the computational graph that holds the
// mean of the policy.
func (b *BoundedGaussianMLP) Mean() *G.Node {
	return b.mean
}

// LogStd returns the learnable node holding the log standard
// deviation of the policy.
func (b *BoundedGaussianMLP) LogStd() *G.Node {
	return b.logStd
}

// Std returns the current standard deviation of the policy along each
// action dimension.
func (b *BoundedGaussianMLP) Std() []float64 {
	logStd := b.logStd.Value().Data().([]float64)
	std := make([]float64, len(logStd))
	for i, l := range logStd {
		std[i] = math.Exp(l)
	}
	return std
}

// Learnables returns the learnable nodes of the policy, which are the
// weights of the mean network together with the log standard
// deviation.
func (b *BoundedGaussianMLP) Learnables() G.Nodes {
	return append(b.net.Learnables(), b.logStd)
}

// Model returns the policy's learnables with their bound gradients.
func (b *BoundedGaussianMLP) Model() []G.ValueGrad {
	return append(b.net.Model(), b.logStd)
}

// Set sets the weights of the policy to those of another
// BoundedGaussianMLP of identical architecture. Both the mean network
// weights and the log standard deviation are copied.
func (b *BoundedGaussianMLP) Set(source *BoundedGaussianMLP) error {
	if err := b.net.Set(source.net); err != nil {
		return fmt.Errorf("set: could not set mean network weights: %v", err)
	}

	logStd := source.logStd.Clone()
	if err := G.Let(b.logStd, logStd.(*G.Node).Value()); err != nil {
		return fmt.Errorf("set: could not set log standard deviation: %v",
			err)
	}
	return nil
}

// Clone clones a BoundedGaussianMLP
func (b *BoundedGaussianMLP) Clone() (agent.NNPolicy, error) {
	return b.CloneWithBatch(b.batchForLogProb)
}

// CloneWithBatch clones a BoundedGaussianMLP to a new computational
// graph with a new input batch size. The cloned policy's weights and
// log standard deviation are initialized to those of the original
// policy.
func (b *BoundedGaussianMLP) CloneWithBatch(batch int) (agent.NNPolicy,
	error) {
	net, err := b.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: could not clone mean "+
			"network: %v", err)
	}

	pol, err := newBoundedGaussianMLP(net, b.actionDims, b.scale, b.shift,
		0.0, b.seed)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: could not construct "+
			"policy: %v", err)
	}

	logStd := b.logStd.Clone()
	err = G.Let(pol.logStd, logStd.(*G.Node).Value())
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: could not copy log "+
			"standard deviation: %v", err)
	}

	return pol, nil
}

// Network returns the network of the BoundedGaussianMLP
func (b *BoundedGaussianMLP) Network() network.NeuralNet {
	return b.net
}

// Save writes the policy's mean network to the file at the argument
// path. The log standard deviation is not persisted.
func (b *BoundedGaussianMLP) Save(filename string) error {
	return network.Save(b.net, filename)
}

// Eval sets the policy to evaluation mode, in which the mean action
// is selected
func (b *BoundedGaussianMLP) Eval() { b.eval = true }

// Train sets the policy to training mode, in which actions are
// sampled from the policy distribution
func (b *BoundedGaussianMLP) Train() { b.eval = false }

// IsEval returns whether the policy is in evaluation mode
func (b *BoundedGaussianMLP) IsEval() bool { return b.eval }

// Close cleans up the policy's VM resources
func (b *BoundedGaussianMLP) Close() error {
	if b.vm != nil {
		return b.vm.Close()
	}
	return nil
}
