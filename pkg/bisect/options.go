package bisect

import (
	"time"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runner"
)

const (
	DefaultRetryBudget   = 1
	DefaultConcurrency   = 8
	DefaultReferenceWait = time.Minute
)

type OpOption func(*Op)

type Op struct {
	retryBudget   int
	concurrency   int
	referenceWait time.Duration
	onRun         func(*runner.Run)
}

func (op *Op) applyOpts(opts []OpOption) {
	op.retryBudget = DefaultRetryBudget
	op.concurrency = DefaultConcurrency
	op.referenceWait = DefaultReferenceWait

	for _, opt := range opts {
		opt(op)
	}

	if op.concurrency <= 0 {
		op.concurrency = DefaultConcurrency
	}
	if op.retryBudget < 0 {
		op.retryBudget = 0
	}
	if op.referenceWait <= 0 {
		op.referenceWait = DefaultReferenceWait
	}
}

// Number of times an inconclusive group is re-run before the
// conservative unhealthy fallback applies.
func WithRetryBudget(n int) OpOption {
	return func(op *Op) {
		op.retryBudget = n
	}
}

// Bounds the number of concurrently running benchmark launches.
func WithConcurrency(n int) OpOption {
	return func(op *Op) {
		op.concurrency = n
	}
}

// Bounds how long a suspect waits for a confirmed-healthy reference
// node before falling back to an untested partner.
func WithReferenceWait(d time.Duration) OpOption {
	return func(op *Op) {
		op.referenceWait = d
	}
}

// Called for every completed benchmark run, in completion order.
func WithOnRun(fn func(*runner.Run)) OpOption {
	return func(op *Op) {
		op.onRun = fn
	}
}
