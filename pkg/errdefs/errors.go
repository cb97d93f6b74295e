// Package errdefs defines the common errors used throughout the preflight
// packages, to allow retrieving the error type from a wrapped error chain.
package errdefs

import "errors"

var (
	// ErrLaunchFailed signals that the benchmark command could not be
	// started at all (unreachable node, missing binary). It is an
	// infrastructure problem, not a node-health signal.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrRunTimeout signals that a benchmark run exceeded its wall-clock
	// bound. The partial output is still returned for diagnosis.
	ErrRunTimeout = errors.New("run timed out")

	// ErrRegistryConflict signals an invalid node state transition.
	// It must never occur in correct operation.
	ErrRegistryConflict = errors.New("registry conflict")

	// ErrNotEnoughNodes signals that a group is too small to run a
	// multi-node collective test.
	ErrNotEnoughNodes = errors.New("not enough nodes")
)

func IsLaunchFailed(err error) bool {
	return errors.Is(err, ErrLaunchFailed)
}

func IsRunTimeout(err error) bool {
	return errors.Is(err, ErrRunTimeout)
}

func IsRegistryConflict(err error) bool {
	return errors.Is(err, ErrRegistryConflict)
}

func IsNotEnoughNodes(err error) bool {
	return errors.Is(err, ErrNotEnoughNodes)
}
