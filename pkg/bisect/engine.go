// Package bisect localizes faulty nodes by divide-and-conquer over
// collective benchmark runs.
//
// A group verdict of Healthy certifies every member, since collective
// correctness implies pairwise correctness for the tested path. An
// Unhealthy verdict implicates at least one member without naming it,
// so the engine keeps halving until a pair remains, then re-tests each
// suspect against a confirmed-healthy reference node to name the
// culprit.
package bisect

import (
	"context"
	"sort"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/errdefs"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/health"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/log"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/rccl"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runner"
)

// Result is the outcome of one bisection pass.
type Result struct {
	// Faulty is the minimal faulty subset found, sorted.
	Faulty []string

	// Ambiguous flags the subset of Faulty whose implication relied on
	// the conservative inconclusive fallback or on pairing without a
	// healthy reference, rather than a clean bisection.
	Ambiguous []string

	// Escalated holds singleton inputs that cannot run a multi-node
	// collective test; the session resolves them with a self-test.
	Escalated []string

	// LaunchWarnings records infrastructure failures (unreachable
	// nodes, missing binaries) that aborted a branch without
	// implicating any node.
	LaunchWarnings []string

	// OracleCalls counts actual benchmark launches, deduplicated
	// submissions excluded.
	OracleCalls int
}

type cachedVerdict struct {
	verdict   rccl.Verdict
	ambiguous bool
}

// Engine drives the recursive diagnosis. Safe for a single Diagnose
// call at a time; branch fan-out inside a call is concurrent.
type Engine struct {
	runner   runner.Runner
	registry *health.Registry

	retryBudget   int
	referenceWait time.Duration
	onRun         func(*runner.Run)

	// bounds concurrent benchmark launches
	sem chan struct{}

	// verdict memoization by group content hash; prevents re-submitting
	// a group with byte-identical membership
	seen *cache.Cache

	// confirmed-healthy nodes available as pairing references
	pool chan string

	mu             sync.Mutex
	pooled         map[string]struct{}
	ambiguous      map[string]struct{}
	launchWarnings []string
	oracleCalls    int
}

func New(r runner.Runner, registry *health.Registry, opts ...OpOption) *Engine {
	op := &Op{}
	op.applyOpts(opts)

	return &Engine{
		runner:   r,
		registry: registry,

		retryBudget:   op.retryBudget,
		referenceWait: op.referenceWait,
		onRun:         op.onRun,

		sem:  make(chan struct{}, op.concurrency),
		seen: cache.New(cache.NoExpiration, 0),

		pooled:    make(map[string]struct{}),
		ambiguous: make(map[string]struct{}),
	}
}

// Diagnose narrows the candidate set down to the minimal faulty subset.
// It always returns: bounded recursion, the retry budget, and the
// conservative fallback guarantee termination.
func (e *Engine) Diagnose(ctx context.Context, nodes []string) *Result {
	if len(nodes) == 0 {
		return &Result{}
	}
	if len(nodes) == 1 {
		// a single node cannot run a multi-node collective test
		return &Result{Escalated: []string{nodes[0]}}
	}

	e.pool = make(chan string, len(nodes))

	faulty := e.recurse(ctx, runner.Group(nodes))

	e.mu.Lock()
	defer e.mu.Unlock()

	res := &Result{
		Faulty:         dedupeSorted(faulty),
		LaunchWarnings: e.launchWarnings,
		OracleCalls:    e.oracleCalls,
	}
	for node := range e.ambiguous {
		res.Ambiguous = append(res.Ambiguous, node)
	}
	sort.Strings(res.Ambiguous)
	return res
}

func (e *Engine) recurse(ctx context.Context, group runner.Group) []string {
	// Session budget exhausted: no new branches. Conservative
	// over-reporting is preferred to silent omission.
	if ctx.Err() != nil {
		log.Logger.Warnw("budget exhausted, reporting remaining nodes unhealthy", "group", group.String())
		e.flagAmbiguous(group...)
		// copied so parent appends never write into the group's backing array
		return append([]string(nil), group...)
	}

	if len(group) == 1 {
		return e.localizeOne(ctx, group[0])
	}

	verdict, ambiguous, err := e.test(ctx, group)
	if err != nil {
		if ctx.Err() != nil {
			// budget ran out mid branch; fall back to over-reporting
			e.flagAmbiguous(group...)
			return append([]string(nil), group...)
		}
		// infrastructure failure aborts the branch without implicating
		// any node; already recorded as a session-level warning
		return nil
	}

	if verdict == rccl.VerdictHealthy {
		e.markHealthy(group...)
		return nil
	}

	if ambiguous {
		log.Logger.Warnw("group treated as unhealthy after inconclusive retries", "group", group.String())
	}

	if len(group) == 2 {
		// both members are provisionally implicated; the tie-break
		// re-tests each against a known-healthy reference
		out := e.localizeOne(ctx, group[0])
		return append(out, e.localizeOne(ctx, group[1])...)
	}

	// near-equal halves, extra node to the first half
	mid := (len(group) + 1) / 2
	a, b := group[:mid], group[mid:]
	log.Logger.Infow("splitting group", "group", group.String(), "a", a.String(), "b", b.String())

	var (
		faultyA, faultyB []string
		eg               errgroup.Group
	)
	eg.Go(func() error {
		faultyA = e.recurse(ctx, a)
		return nil
	})
	eg.Go(func() error {
		faultyB = e.recurse(ctx, b)
		return nil
	})
	_ = eg.Wait()

	return append(faultyA, faultyB...)
}

// localizeOne resolves a single suspect by pairing it with a healthy
// reference when one is available, or with an arbitrary untested node
// otherwise. The latter is a documented precision limit: an unhealthy
// verdict on such a pair cannot be attributed, so the suspect is
// flagged ambiguous.
func (e *Engine) localizeOne(ctx context.Context, node string) []string {
	if ctx.Err() != nil {
		e.flagAmbiguous(node)
		return []string{node}
	}

	if ref, ok := e.takeReference(ctx); ok {
		defer e.returnReference(ref)

		verdict, ambiguous, err := e.test(ctx, runner.Group{node, ref})
		if err != nil {
			if ctx.Err() != nil {
				e.flagAmbiguous(node)
				return []string{node}
			}
			return nil
		}
		if verdict == rccl.VerdictHealthy {
			e.markHealthy(node)
			return nil
		}
		if ambiguous {
			e.flagAmbiguous(node)
		}
		log.Logger.Infow("suspect confirmed faulty against healthy reference", "node", node, "reference", ref)
		return []string{node}
	}

	if other, ok := e.pickUntested(node); ok {
		verdict, _, err := e.test(ctx, runner.Group{node, other})
		if err != nil {
			if ctx.Err() != nil {
				e.flagAmbiguous(node)
				return []string{node}
			}
			return nil
		}
		if verdict == rccl.VerdictHealthy {
			e.markHealthy(node, other)
			return nil
		}
		e.flagAmbiguous(node)
		return []string{node}
	}

	// no reference and no untested partner
	e.flagAmbiguous(node)
	return []string{node}
}

// test returns the verdict for the group, retrying inconclusive runs up
// to the retry budget and then falling back to Unhealthy so the search
// always makes progress. Verdicts are memoized by content hash so a
// group is never launched twice with identical membership.
func (e *Engine) test(ctx context.Context, group runner.Group) (rccl.Verdict, bool, error) {
	hash := group.Hash()
	if v, ok := e.seen.Get(hash); ok {
		cached := v.(cachedVerdict)
		log.Logger.Debugw("reusing verdict", "group", group.String(), "verdict", cached.verdict)
		return cached.verdict, cached.ambiguous, nil
	}

	var verdict rccl.Verdict
	for attempt := 0; ; attempt++ {
		run, err := e.runOnce(ctx, group)
		if err != nil {
			if errdefs.IsLaunchFailed(err) {
				e.recordLaunchWarning(group, err)
				return "", false, err
			}
			if !errdefs.IsRunTimeout(err) {
				return "", false, err
			}
			// timeout: the run record carries partial output and an
			// inconclusive verdict, fall through to the retry policy
		}
		if run == nil {
			return "", false, err
		}
		verdict = run.Verdict

		if verdict != rccl.VerdictInconclusive || attempt >= e.retryBudget {
			break
		}
		log.Logger.Warnw("inconclusive run, retrying",
			"group", group.String(), "attempt", attempt+1, "budget", e.retryBudget)
	}

	ambiguous := false
	if verdict == rccl.VerdictInconclusive {
		verdict = rccl.VerdictUnhealthy
		ambiguous = true
	}

	e.seen.Set(hash, cachedVerdict{verdict: verdict, ambiguous: ambiguous}, cache.NoExpiration)
	return verdict, ambiguous, nil
}

func (e *Engine) runOnce(ctx context.Context, group runner.Group) (*runner.Run, error) {
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	run, err := e.runner.Run(ctx, group)

	if run != nil {
		e.mu.Lock()
		e.oracleCalls++
		e.mu.Unlock()
		if e.onRun != nil {
			e.onRun(run)
		}
	}
	return run, err
}

func (e *Engine) markHealthy(nodes ...string) {
	for _, node := range nodes {
		if err := e.registry.Update(node, health.StateHealthy); err != nil {
			// invalid transitions are programming errors, fail loudly
			log.Logger.Errorw("registry update failed", "node", node, "error", err)
			continue
		}

		e.mu.Lock()
		_, already := e.pooled[node]
		if !already {
			e.pooled[node] = struct{}{}
		}
		e.mu.Unlock()

		if !already {
			select {
			case e.pool <- node:
			default:
			}
		}
	}
}

func (e *Engine) flagAmbiguous(nodes ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, node := range nodes {
		e.ambiguous[node] = struct{}{}
	}
}

func (e *Engine) recordLaunchWarning(group runner.Group, err error) {
	log.Logger.Warnw("branch aborted by launch failure", "group", group.String(), "error", err)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.launchWarnings = append(e.launchWarnings, "group "+group.String()+": "+err.Error())
}

// takeReference borrows a confirmed-healthy node from the pool,
// waiting a bounded time for a sibling branch to produce one.
func (e *Engine) takeReference(ctx context.Context) (string, bool) {
	select {
	case ref := <-e.pool:
		return ref, true
	default:
	}

	timer := time.NewTimer(e.referenceWait)
	defer timer.Stop()

	select {
	case ref := <-e.pool:
		return ref, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

func (e *Engine) returnReference(ref string) {
	select {
	case e.pool <- ref:
	default:
	}
}

// pickUntested returns a node other than the suspect that is still
// Unknown in the registry.
func (e *Engine) pickUntested(suspect string) (string, bool) {
	snap := e.registry.Snapshot()

	candidates := make([]string, 0)
	for node, state := range snap {
		if node != suspect && state == health.StateUnknown {
			candidates = append(candidates, node)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

func dedupeSorted(nodes []string) []string {
	seen := make(map[string]struct{}, len(nodes))
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := seen[node]; ok {
			continue
		}
		seen[node] = struct{}{}
		out = append(out, node)
	}
	sort.Strings(out)
	return out
}
