// Package runner launches one parallel benchmark job across a test
// group's nodes and records the classified result.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/errdefs"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/log"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/process"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/rccl"
)

// Run records one benchmark launch. Immutable once recorded.
type Run struct {
	Group     Group     `json:"group"`
	GroupHash string    `json:"group_hash"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Combined stdout/stderr; partial when the run timed out.
	Output     string `json:"-"`
	OutputPath string `json:"output_path"`

	ExitCode int  `json:"exit_code"`
	TimedOut bool `json:"timed_out"`

	Verdict   rccl.Verdict `json:"verdict"`
	AlgBWGBps float64      `json:"algbw_gbps"`
	Reason    string       `json:"reason"`
}

func (r *Run) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Runner runs the collective benchmark across a group's nodes.
//
// No retry happens at this layer. A LaunchFailed error means the job
// could not start (infrastructure, not node health) and carries no run
// record. A RunTimeout error still returns the run with its partial
// output and an Inconclusive verdict.
type Runner interface {
	Run(ctx context.Context, group Group) (*Run, error)
}

type mpirunRunner struct {
	cfg *config.Config

	// shrunk by tests
	connectRetryInterval time.Duration
	connectAttemptBound  time.Duration
}

func New(cfg *config.Config) Runner {
	return &mpirunRunner{
		cfg:                  cfg,
		connectRetryInterval: 10 * time.Second,
		connectAttemptBound:  time.Minute,
	}
}

func (m *mpirunRunner) Run(ctx context.Context, group Group) (*Run, error) {
	if len(group) < 2 {
		return nil, fmt.Errorf("%w: group %q needs at least 2 nodes", errdefs.ErrNotEnoughNodes, group.String())
	}

	if err := m.checkConnectivity(ctx, group); err != nil {
		return nil, err
	}

	outputPath := filepath.Join(m.cfg.OutputDir, fmt.Sprintf("rccl_test_%s.log", group.Hash()))
	outputFile, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot create output file: %v", errdefs.ErrLaunchFailed, err)
	}
	defer outputFile.Close()

	args := rccl.BenchmarkArgs(m.cfg, group)
	envs := rccl.BenchmarkEnvs(m.cfg, group)
	log.Logger.Infow("launching benchmark",
		"group", group.String(),
		"hash", group.Hash(),
		"output", outputPath,
		"command", strings.Join(args, " "))

	p, err := process.New(
		process.WithCommand(args...),
		process.WithEnvs(envs...),
		process.WithOutputFile(outputFile),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrLaunchFailed, err)
	}

	run := &Run{
		Group:      group,
		GroupHash:  group.Hash(),
		StartTime:  time.Now().UTC(),
		OutputPath: outputPath,
	}

	if err := p.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrLaunchFailed, err)
	}

	timeout := time.Duration(m.cfg.RunTimeoutSeconds) * time.Second
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.Wait():
		run.EndTime = time.Now().UTC()
		run.ExitCode = int(p.ExitCode())
		run.Output = string(p.Output())

	case <-timer.C:
		// Terminate the launcher's process group before returning so no
		// worker is left behind, then record the partial output.
		_ = p.Close(ctx)
		run.EndTime = time.Now().UTC()
		run.TimedOut = true
		run.Output = string(p.Output())
		run.Verdict = rccl.VerdictInconclusive
		run.Reason = fmt.Sprintf("benchmark exceeded the %s bound", timeout)

		observeRun(run)
		return run, fmt.Errorf("%w: group %q after %s", errdefs.ErrRunTimeout, group.String(), timeout)

	case <-ctx.Done():
		_ = p.Close(context.Background())
		return nil, ctx.Err()
	}

	targetSize, err := rccl.ParseSize(m.cfg.MaxBytesForNodes(len(group)))
	if err != nil {
		return nil, fmt.Errorf("invalid max bytes: %w", err)
	}

	c := rccl.Classify(run.Output, run.ExitCode, targetSize, rccl.Threshold(m.cfg, len(group)))
	run.Verdict = c.Verdict
	run.AlgBWGBps = c.AlgBWGBps
	run.Reason = c.Reason

	log.Logger.Infow("benchmark finished",
		"group", group.String(),
		"verdict", run.Verdict,
		"algbw", run.AlgBWGBps,
		"reason", run.Reason,
		"duration", run.Duration())

	observeRun(run)
	return run, nil
}

// checkConnectivity launches one echo per node through the same
// launcher path and requires every node to answer, retrying with
// backoff until the connect bound elapses. A persistent failure is an
// infrastructure fault, not a health verdict.
func (m *mpirunRunner) checkConnectivity(ctx context.Context, group Group) error {
	args := rccl.ConnectivityArgs(m.cfg, group)
	envs := rccl.ConnectivityEnvs(m.cfg)

	deadline := time.Now().Add(time.Duration(m.cfg.ConnectTimeoutSeconds) * time.Second)
	for attempt := 1; ; attempt++ {
		ok, err := m.connectivityAttempt(ctx, args, envs, len(group))
		if ok {
			log.Logger.Debugw("all nodes reachable", "group", group.String(), "attempt", attempt)
			return nil
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: connectivity check failed for group %q", errdefs.ErrLaunchFailed, group.String())
		}

		log.Logger.Warnw("connectivity check failed, retrying",
			"group", group.String(), "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.connectRetryInterval):
		}
	}
}

func (m *mpirunRunner) connectivityAttempt(ctx context.Context, args []string, envs []string, nodeCount int) (bool, error) {
	p, err := process.New(
		process.WithCommand(args...),
		process.WithEnvs(envs...),
	)
	if err != nil {
		return false, err
	}

	cctx, ccancel := context.WithTimeout(ctx, m.connectAttemptBound)
	defer ccancel()

	if err := p.Start(cctx); err != nil {
		return false, err
	}

	select {
	case err := <-p.Wait():
		okCount := strings.Count(string(p.Output()), "OK")
		if err == nil && okCount == nodeCount {
			return true, nil
		}
		return false, fmt.Errorf("%d/%d nodes responded (exit code %d)", okCount, nodeCount, p.ExitCode())

	case <-cctx.Done():
		_ = p.Close(context.Background())
		return false, cctx.Err()
	}
}
