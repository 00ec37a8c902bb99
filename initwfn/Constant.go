package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig describes an initializer that sets all weights to 0
type ZeroesConfig struct{}

// NewZeroes returns a new zero weight initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{}), nil
}

// Type returns the type of the weight initializer created using this
// config
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create returns the Gorgonia weight initializer described by this
// config
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// OnesConfig describes an initializer that sets all weights to 1
type OnesConfig struct{}

// NewOnes returns a new ones weight initializer
func NewOnes() (*InitWFn, error) {
	return newInitWFn(OnesConfig{}), nil
}

// Type returns the type of the weight initializer created using this
// config
func (o OnesConfig) Type() Type {
	return Ones
}

// Create returns the Gorgonia weight initializer described by this
// config
func (o OnesConfig) Create() G.InitWFn {
	return G.Ones()
}

// ConstantConfig describes an initializer that sets all weights to a
// fixed value
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a new constant weight initializer
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{Value: value}), nil
}

// Type returns the type of the weight initializer created using this
// config
func (c ConstantConfig) Type() Type {
	return Constant
}

// Create returns the Gorgonia weight initializer described by this
// config
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}
