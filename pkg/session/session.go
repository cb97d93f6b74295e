// Package session drives one end-to-end diagnostic pass: it seeds the
// health registry, runs the bisection engine over the candidate nodes,
// resolves singleton inputs with a loopback self-test, and assembles
// the final report.
package session

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/bisect"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/errdefs"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/health"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/log"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/rccl"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runner"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runstore"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/selftest"
)

// SelfTester resolves a node the collective bisection cannot, by
// measuring loopback RDMA bandwidth on the node itself.
type SelfTester interface {
	Check(ctx context.Context, node string) (*selftest.Report, error)
}

// HostInfo identifies the launcher host a session ran from.
type HostInfo struct {
	Hostname      string `json:"hostname"`
	HostID        string `json:"host_id,omitempty"`
	Platform      string `json:"platform,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
}

// Report is the structured outcome of one diagnostic session.
type Report struct {
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Launcher HostInfo `json:"launcher"`

	// Nodes maps every candidate to its final health state.
	Nodes  map[string]health.NodeState `json:"nodes"`
	Counts health.Counts               `json:"counts"`

	// Faulty is the minimal faulty subset, sorted. Ambiguous flags the
	// members whose implication was conservative rather than a clean
	// bisection outcome.
	Faulty    []string `json:"faulty"`
	Ambiguous []string `json:"ambiguous"`

	// LaunchWarnings records infrastructure failures that aborted
	// branches without implicating any node.
	LaunchWarnings []string `json:"launch_warnings,omitempty"`

	OracleCalls int `json:"oracle_calls"`

	// Runs holds every benchmark launch in completion order.
	Runs []*runner.Run `json:"runs"`

	// SelfTests holds loopback reports for singleton inputs.
	SelfTests []*selftest.Report `json:"self_tests,omitempty"`
}

type Session struct {
	cfg        *config.Config
	runner     runner.Runner
	selfTester SelfTester
	store      runstore.Store
}

func New(cfg *config.Config, opts ...OpOption) *Session {
	op := &Op{}
	op.applyOpts(opts)

	if op.runner == nil {
		op.runner = runner.New(cfg)
	}
	if op.selfTester == nil {
		op.selfTester = selftest.New(cfg)
	}

	return &Session{
		cfg:        cfg,
		runner:     op.runner,
		selfTester: op.selfTester,
		store:      op.store,
	}
}

// Run diagnoses the candidate nodes and returns the session report.
// The context bounds the whole session; when it is cancelled, nodes
// that could not be tested are reported unhealthy with the ambiguity
// flag set rather than silently dropped.
func (s *Session) Run(ctx context.Context, nodes []string) (*Report, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no candidate nodes", errdefs.ErrNotEnoughNodes)
	}

	report := &Report{
		SessionID: uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Launcher:  collectHostInfo(ctx),
	}
	log.Logger.Infow("starting diagnostic session",
		"session", report.SessionID,
		"nodes", len(nodes),
		"testType", s.cfg.TestType)

	registry := health.NewRegistry(nodes)

	var runMu sync.Mutex
	engine := bisect.New(s.runner, registry,
		bisect.WithRetryBudget(s.cfg.RetryBudget),
		bisect.WithConcurrency(s.cfg.Concurrency),
		bisect.WithReferenceWait(time.Duration(s.cfg.ReferenceWaitSeconds)*time.Second),
		bisect.WithOnRun(func(run *runner.Run) {
			runMu.Lock()
			report.Runs = append(report.Runs, run)
			runMu.Unlock()
		}),
	)

	res := engine.Diagnose(ctx, nodes)

	report.Faulty = res.Faulty
	report.Ambiguous = res.Ambiguous
	report.LaunchWarnings = res.LaunchWarnings
	report.OracleCalls = res.OracleCalls

	if err := s.applyVerdicts(registry, res); err != nil {
		return nil, err
	}

	for _, node := range res.Escalated {
		if err := s.runSelfTest(ctx, registry, report, node); err != nil {
			return nil, err
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.Nodes = registry.Snapshot()
	report.Counts = registry.Counts()

	if err := s.persist(ctx, report); err != nil {
		// the diagnosis itself succeeded; losing the history is a
		// session-level warning, not a failure
		log.Logger.Errorw("failed to persist run history", "session", report.SessionID, "error", err)
		report.LaunchWarnings = append(report.LaunchWarnings,
			fmt.Sprintf("run history not persisted: %v", err))
	}

	log.Logger.Infow("diagnostic session finished",
		"session", report.SessionID,
		"faulty", len(report.Faulty),
		"ambiguous", len(report.Ambiguous),
		"oracleCalls", report.OracleCalls,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// applyVerdicts moves faulty nodes out of Unknown. A clean implication
// becomes Unhealthy; an ambiguous one is quarantined so a scheduler
// treats it as unusable until an operator re-checks it.
func (s *Session) applyVerdicts(registry *health.Registry, res *bisect.Result) error {
	ambiguous := make(map[string]struct{}, len(res.Ambiguous))
	for _, node := range res.Ambiguous {
		ambiguous[node] = struct{}{}
	}

	for _, node := range res.Faulty {
		if err := registry.Update(node, health.StateUnhealthy); err != nil {
			return err
		}
		if _, ok := ambiguous[node]; ok {
			if err := registry.Update(node, health.StateQuarantined); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) runSelfTest(ctx context.Context, registry *health.Registry, report *Report, node string) error {
	st, err := s.selfTester.Check(ctx, node)
	if err != nil {
		log.Logger.Warnw("self-test could not run", "node", node, "error", err)
		report.LaunchWarnings = append(report.LaunchWarnings,
			fmt.Sprintf("self-test on %s: %v", node, err))
		return nil
	}
	report.SelfTests = append(report.SelfTests, st)

	switch st.Verdict {
	case rccl.VerdictHealthy:
		return registry.Update(node, health.StateHealthy)
	case rccl.VerdictUnhealthy:
		report.Faulty = insertSorted(report.Faulty, node)
		return registry.Update(node, health.StateUnhealthy)
	default:
		// no measurement either way; conservative
		report.Faulty = insertSorted(report.Faulty, node)
		report.Ambiguous = insertSorted(report.Ambiguous, node)
		if err := registry.Update(node, health.StateUnhealthy); err != nil {
			return err
		}
		return registry.Update(node, health.StateQuarantined)
	}
}

func (s *Session) persist(ctx context.Context, report *Report) error {
	if s.store == nil {
		return nil
	}
	for _, run := range report.Runs {
		if err := s.store.Insert(ctx, report.SessionID, run); err != nil {
			return err
		}
	}
	return nil
}

func collectHostInfo(ctx context.Context) HostInfo {
	info := HostInfo{}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if id, err := host.HostIDWithContext(ctx); err == nil {
		info.HostID = id
	}
	if platform, _, version, err := host.PlatformInformationWithContext(ctx); err == nil {
		info.Platform = fmt.Sprintf("%s %s", platform, version)
	}
	if kernel, err := host.KernelVersion(); err == nil {
		info.KernelVersion = kernel
	}
	return info
}

func insertSorted(list []string, node string) []string {
	for _, cur := range list {
		if cur == node {
			return list
		}
	}
	list = append(list, node)
	sort.Strings(list)
	return list
}
