package ppo

import (
	"fmt"

	"github.com/samuelfneumann/goppo/agent"
	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/initwfn"
	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/solver"
)

// Config implements a configuration of the PPO agent. Fields are
// exported so that configurations can be JSON serialized.
type Config struct {
	// Policy is the mean network of the Gaussian policy and Critic
	// is the state value network. For index i of each slice,
	// element i determines the number of hidden units, whether a
	// bias unit is used, and the activation of hidden layer i.
	PolicyLayers      []int
	PolicyBiases      []bool
	PolicyActivations []*network.Activation

	CriticLayers      []int
	CriticBiases      []bool
	CriticActivations []*network.Activation

	// Weight initialization scheme for both networks
	InitWFn *initwfn.InitWFn

	// Solver applied jointly to the policy network, the critic
	// network, and the policy's log standard deviation
	Solver *solver.Solver

	// BufferSize is the number of timesteps collected between
	// updates and BatchSize the number of timesteps per gradient
	// step. BufferSize must be evenly divisible by BatchSize so
	// that gradient steps are taken on equally sized minibatches.
	BufferSize int
	BatchSize  int

	// Epochs is the number of passes over the collected timesteps
	// per update
	Epochs int

	Gamma  float64 // Discount factor
	Lambda float64 // GAE decay rate

	// Epsilon is the clipping range of the surrogate objective
	Epsilon float64

	// ValueCoeff scales the value function loss in the total loss
	ValueCoeff float64

	// MaxGradNorm is the maximum global norm that gradients are
	// clipped to before each gradient step. Values <= 0 disable
	// gradient clipping.
	MaxGradNorm float64

	// ClipValueFn determines whether the value function loss clamps
	// the change in value predictions to within Epsilon of the value
	// estimates recorded during collection
	ClipValueFn bool

	// InitialStd is the initial standard deviation of the policy
	// along each action dimension
	InitialStd float64

	Seed uint64
}

// Validate ensures that the configuration is valid, returning an
// error describing the first invalid field found.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.PolicyBiases) ||
		len(c.PolicyLayers) != len(c.PolicyActivations) {
		return fmt.Errorf("validate: policy layers, biases, and " +
			"activations must have equal lengths")
	}
	if len(c.CriticLayers) != len(c.CriticBiases) ||
		len(c.CriticLayers) != len(c.CriticActivations) {
		return fmt.Errorf("validate: critic layers, biases, and " +
			"activations must have equal lengths")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver given")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("validate: buffer size must be positive "+
			"\n\thave(%v)", c.BufferSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize)
	}
	if c.BufferSize%c.BatchSize != 0 {
		return fmt.Errorf("validate: buffer size (%v) must be evenly "+
			"divisible by batch size (%v)", c.BufferSize, c.BatchSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("validate: epochs must be positive \n\thave(%v)",
			c.Epochs)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: GAE decay rate must be in [0, 1] "+
			"\n\thave(%v)", c.Lambda)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("validate: clipping range must be positive "+
			"\n\thave(%v)", c.Epsilon)
	}
	if c.ValueCoeff <= 0 {
		return fmt.Errorf("validate: value loss coefficient must be "+
			"positive \n\thave(%v)", c.ValueCoeff)
	}
	if c.InitialStd <= 0 {
		return fmt.Errorf("validate: initial standard deviation must be "+
			"positive \n\thave(%v)", c.InitialStd)
	}
	return nil
}

// CreateAgent creates and returns a new PPO agent on the argument
// environment as described by the configuration.
func (c Config) CreateAgent(env environment.Environment) (agent.Agent,
	error) {
	return New(env, c)
}
