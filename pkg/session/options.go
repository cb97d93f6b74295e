package session

import (
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runner"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runstore"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/selftest"
)

type OpOption func(*Op)

type Op struct {
	runner     runner.Runner
	selfTester SelfTester
	store      runstore.Store
}

func (op *Op) applyOpts(opts []OpOption) {
	for _, opt := range opts {
		opt(op)
	}
}

// Overrides the mpirun-backed benchmark runner.
func WithRunner(r runner.Runner) OpOption {
	return func(op *Op) {
		op.runner = r
	}
}

// Overrides the loopback RDMA self-tester used for singleton inputs.
func WithSelfTester(s SelfTester) OpOption {
	return func(op *Op) {
		op.selfTester = s
	}
}

// Persists every benchmark run of the session.
func WithStore(s runstore.Store) OpOption {
	return func(op *Op) {
		op.store = s
	}
}

var _ SelfTester = &selftest.Checker{}
