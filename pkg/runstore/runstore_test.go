package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/rccl"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runner"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/sqlite"
)

func openTestStore(t *testing.T) Store {
	t.Helper()

	file := filepath.Join(t.TempDir(), "runs.db")

	dbRW, err := sqlite.Open(file)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbRW.Close() })

	dbRO, err := sqlite.Open(file, sqlite.WithReadOnly(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbRO.Close() })

	s, err := New(context.Background(), dbRW, dbRO)
	require.NoError(t, err)
	return s
}

func makeRun(nodes []string, start time.Time, verdict rccl.Verdict) *runner.Run {
	group := runner.Group(nodes)
	return &runner.Run{
		Group:      group,
		GroupHash:  group.Hash(),
		StartTime:  start,
		EndTime:    start.Add(42 * time.Second),
		ExitCode:   0,
		Verdict:    verdict,
		AlgBWGBps:  132.18,
		Reason:     "",
		OutputPath: "/tmp/out/rccl_test_" + group.Hash() + ".log",
	}
}

func TestInsertAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	runs := []*runner.Run{
		makeRun([]string{"n1", "n2", "n3", "n4"}, base, rccl.VerdictUnhealthy),
		makeRun([]string{"n1", "n2"}, base.Add(time.Minute), rccl.VerdictHealthy),
		makeRun([]string{"n3", "n4"}, base.Add(2*time.Minute), rccl.VerdictUnhealthy),
	}
	for _, run := range runs {
		require.NoError(t, s.Insert(ctx, "session-a", run))
	}

	records, err := s.List(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.Equal(t, "session-a", rec.SessionID)
		assert.Equal(t, runs[i].GroupHash, rec.GroupHash)
		assert.Equal(t, []string(runs[i].Group), rec.Nodes)
		assert.Equal(t, runs[i].StartTime, rec.StartTime)
		assert.Equal(t, runs[i].EndTime, rec.EndTime)
		assert.Equal(t, string(runs[i].Verdict), rec.Verdict)
		assert.InDelta(t, 132.18, rec.AlgBWGBps, 0.001)
		assert.Equal(t, runs[i].OutputPath, rec.OutputPath)
		assert.False(t, rec.TimedOut)
	}
}

func TestListFiltersBySession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Insert(ctx, "session-a", makeRun([]string{"n1", "n2"}, base, rccl.VerdictHealthy)))
	require.NoError(t, s.Insert(ctx, "session-b", makeRun([]string{"n3", "n4"}, base, rccl.VerdictHealthy)))

	records, err := s.List(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"n1", "n2"}, records[0].Nodes)

	records, err = s.List(ctx, "session-c")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTimedOutRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := makeRun([]string{"n1", "n2"}, time.Now().UTC().Truncate(time.Second), rccl.VerdictInconclusive)
	run.TimedOut = true
	run.ExitCode = -1
	run.AlgBWGBps = 0
	run.Reason = "benchmark exceeded the 5m0s bound"
	require.NoError(t, s.Insert(ctx, "session-a", run))

	records, err := s.List(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].TimedOut)
	assert.Equal(t, -1, records[0].ExitCode)
	assert.Equal(t, run.Reason, records[0].Reason)
}

func TestPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, "session-a", makeRun([]string{"n1", "n2"}, base, rccl.VerdictHealthy)))
	require.NoError(t, s.Insert(ctx, "session-a", makeRun([]string{"n3", "n4"}, base.Add(time.Hour), rccl.VerdictHealthy)))

	purged, err := s.Purge(ctx, base.Add(30*time.Minute).Unix())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	records, err := s.List(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"n3", "n4"}, records[0].Nodes)
}
