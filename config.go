package esprel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options configures one Context. The zero value is a usable default:
// sloppy mode, no debug tracing, no module root restriction.
type Options struct {
	// Strict forces every top-level Eval into strict mode, as if the
	// source began with a "use strict" directive.
	Strict bool `yaml:"strict"`

	// DebugLevel gates the VM's opcode trace; 0 is silent.
	DebugLevel int `yaml:"debug_level"`

	// ModuleRoot, when set, is the directory the default file-backed
	// module loader (cmd/esprel-repl) resolves specifiers against.
	ModuleRoot string `yaml:"module_root"`

	// StepBudget is read from the options file but not applied: the VM
	// checks for a pending interrupt before every opcode whatever its
	// value.
	StepBudget int `yaml:"step_budget"`
}

// LoadOptions reads a YAML options file, the bootstrap format the
// REPL's --config flag accepts.
func LoadOptions(path string) (Options, error) {
	var opts Options
	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("parsing %s: %w", path, err)
	}
	return opts, nil
}
