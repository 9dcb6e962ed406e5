// Package config reads the environment-tunable limits of the virtual
// machine. It exists so that the CLI front-end (and any other embedder)
// does not have to hardcode spec §3.5's default stack/frame bounds: an
// operator running a particularly deep recursive PEX program can raise them
// without a rebuild.
package config

import "github.com/caarlos0/env/v6"

// Limits holds the VM's resource bounds (spec §4.3.1).
type Limits struct {
	MaxStackSize int `env:"PEX_MAX_STACK_SIZE" envDefault:"10000"`
	MaxFrames    int `env:"PEX_MAX_FRAMES" envDefault:"1000"`
}

// LoadLimits reads Limits from the environment, falling back to the core
// spec's defaults (10000 operand slots, 1000 frames) for any variable that
// is unset. A variable that is set but fails to parse is returned as an
// error.
func LoadLimits() (Limits, error) {
	var l Limits
	if err := env.Parse(&l); err != nil {
		return Limits{}, err
	}
	return l, nil
}
