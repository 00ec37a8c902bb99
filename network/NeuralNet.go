// Package network implements neural network function approximators
// backed by Gorgonia computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network whose forward pass exists on
// some Gorgonia ExprGraph. A NeuralNet does not own a VM for its
// graph; callers construct whatever VM is appropriate for their use
// (prediction, or training with bound dual values).
type NeuralNet interface {
	// Graph returns the computational graph holding the network
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph,
	// changing the batch size of the network's input
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of rows in an input batch
	BatchSize() int

	// Features returns the number of features in a single observation
	Features() int

	// SetInput sets the network input before a VM is run. The input
	// is interpreted in row major order.
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network
	// of identical architecture
	Set(NeuralNet) error

	// Learnables returns the nodes whose values are adjusted by
	// gradient descent
	Learnables() G.Nodes

	// Model returns the learnables with their bound gradients
	Model() []G.ValueGrad

	// Output returns the values of the network predictions after a VM
	// for the network's graph has been run
	Output() []G.Value

	// Prediction returns the nodes of the computational graph that
	// hold the network predictions
	Prediction() []*G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// Both networks must share the same architecture.
func Set(dest, source NeuralNet) error {
	return dest.Set(source)
}
