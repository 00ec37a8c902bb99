// Package checkpointer implements periodic saving of learned agent
// state during an experiment
package checkpointer

import (
	ts "github.com/samuelfneumann/goppo/timestep"
)

// Saveable is an object that can persist itself to a given path
type Saveable interface {
	Save(path string) error
}

// Checkpointer checkpoints/saves Saveable objects based on
// timestep.TimeSteps
type Checkpointer interface {
	Checkpoint(ts.TimeStep) error
}
