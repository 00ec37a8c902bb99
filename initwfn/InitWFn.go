// Package initwfn wraps Gorgonia weight initializers behind
// JSON-serializable configurations so that network initialization
// schemes can be recorded in configuration files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of weight initializers that are
// available
type Type string

// Available weight initializer types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	Zeroes   Type = "Zeroes"
	Ones     Type = "Ones"
	Constant Type = "Constant"
)

// registry maps initializer type names to their concrete Config
// structs for deserialization
var registry = map[Type]reflect.Type{
	GlorotU:  reflect.TypeOf(GlorotUConfig{}),
	GlorotN:  reflect.TypeOf(GlorotNConfig{}),
	Zeroes:   reflect.TypeOf(ZeroesConfig{}),
	Ones:     reflect.TypeOf(OnesConfig{}),
	Constant: reflect.TypeOf(ConstantConfig{}),
}

// InitWFn wraps a Gorgonia InitWFn together with the Config that
// created it so that the pair can be JSON marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn described by the argument Config
func newInitWFn(c Config) *InitWFn {
	return &InitWFn{Type: c.Type(), Config: c, initWFn: c.Create()}
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// String implements the fmt.Stringer interface
func (w *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", w.Type, w.Config)
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (w *InitWFn) UnmarshalJSON(data []byte) error {
	var serialized struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &serialized); err != nil {
		return err
	}

	concrete, ok := registry[serialized.Type]
	if !ok {
		return fmt.Errorf("unmarshalJSON: no such initializer type: %v",
			serialized.Type)
	}

	config := reflect.New(concrete).Interface().(Config)
	if err := json.Unmarshal(serialized.Config, config); err != nil {
		return err
	}

	w.Type = serialized.Type
	w.Config = config
	w.initWFn = config.Create()

	return nil
}

// Config describes a Gorgonia InitWFn and can create the InitWFn it
// describes
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type
}
