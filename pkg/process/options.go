package process

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

type OpOption func(*Op)

type Op struct {
	commandArgs []string
	envs        []string
	outputFile  *os.File
}

func (op *Op) applyOpts(opts []OpOption) error {
	for _, opt := range opts {
		opt(op)
	}

	if len(op.commandArgs) == 0 {
		return errors.New("no command provided")
	}

	foundEnvs := make(map[string]any)
	for _, env := range op.envs {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid environment variable format: %s", env)
		}
		if _, ok := foundEnvs[parts[0]]; ok {
			return fmt.Errorf("duplicate environment variable: %s", parts[0])
		}
		foundEnvs[parts[0]] = parts[1]
	}

	return nil
}

// Sets the command to run.
func WithCommand(args ...string) OpOption {
	return func(op *Op) {
		op.commandArgs = args
	}
}

// Add environment variables for the process,
// in the format of `KEY=VALUE`.
func WithEnvs(envs ...string) OpOption {
	return func(op *Op) {
		op.envs = append(op.envs, envs...)
	}
}

// Sets a file that mirrors the combined stdout/stderr of the process,
// in addition to the in-memory capture.
func WithOutputFile(file *os.File) OpOption {
	return func(op *Op) {
		op.outputFile = file
	}
}
