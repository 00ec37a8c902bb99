// Package solver wraps Gorgonia Solvers behind JSON-serializable
// configurations so that an experiment, including its optimizer, can
// be described completely by a configuration file.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// registry maps solver type names to their concrete Config structs
// for deserialization
var registry = map[Type]reflect.Type{
	Adam:    reflect.TypeOf(AdamConfig{}),
	Vanilla: reflect.TypeOf(VanillaConfig{}),
}

// Solver wraps a Gorgonia Solver together with the Config that
// created it so that the pair can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: config %T cannot create a %v "+
			"solver", c, t)
	}

	s := &Solver{Type: t, Config: c}
	s.Solver = c.Create()

	return s, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var serialized struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &serialized); err != nil {
		return err
	}

	concrete, ok := registry[serialized.Type]
	if !ok {
		return fmt.Errorf("unmarshalJSON: no such solver type: %v",
			serialized.Type)
	}

	config := reflect.New(concrete).Interface().(Config)
	if err := json.Unmarshal(serialized.Config, config); err != nil {
		return err
	}

	s.Type = serialized.Type
	s.Config = config
	s.Solver = config.Create()

	return nil
}

// Config describes a Gorgonia Solver and can create the Solver it
// describes
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
