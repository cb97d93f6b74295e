package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/rccl"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runner"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runstore"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/sqlite"
)

func seedStateFile(t *testing.T) string {
	t.Helper()

	file := filepath.Join(t.TempDir(), "state.db")
	dbRW, err := sqlite.Open(file)
	require.NoError(t, err)
	defer dbRW.Close()
	dbRO, err := sqlite.Open(file, sqlite.WithReadOnly(true))
	require.NoError(t, err)
	defer dbRO.Close()

	ctx := context.Background()
	store, err := runstore.New(ctx, dbRW, dbRO)
	require.NoError(t, err)

	group := runner.Group([]string{"n1", "n2"})
	old := &runner.Run{
		Group:     group,
		GroupHash: group.Hash(),
		StartTime: time.Now().UTC().Add(-2 * time.Hour),
		EndTime:   time.Now().UTC().Add(-2 * time.Hour),
		Verdict:   rccl.VerdictHealthy,
	}
	recent := &runner.Run{
		Group:     group,
		GroupHash: group.Hash(),
		StartTime: time.Now().UTC(),
		EndTime:   time.Now().UTC(),
		Verdict:   rccl.VerdictHealthy,
	}
	require.NoError(t, store.Insert(ctx, "session-a", old))
	require.NoError(t, store.Insert(ctx, "session-a", recent))
	return file
}

func TestCmdHistoryRetentionPurge(t *testing.T) {
	file := seedStateFile(t)

	err := cmdHistory("info", file, "session-a", 30*time.Minute, "plain")
	require.NoError(t, err)

	dbRW, err := sqlite.Open(file)
	require.NoError(t, err)
	defer dbRW.Close()
	dbRO, err := sqlite.Open(file, sqlite.WithReadOnly(true))
	require.NoError(t, err)
	defer dbRO.Close()

	ctx := context.Background()
	store, err := runstore.New(ctx, dbRW, dbRO)
	require.NoError(t, err)

	records, err := store.List(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.WithinDuration(t, time.Now().UTC(), records[0].StartTime, time.Minute)
}

func TestCmdHistoryZeroRetentionKeepsAll(t *testing.T) {
	file := seedStateFile(t)

	require.NoError(t, cmdHistory("info", file, "session-a", 0, "plain"))

	dbRW, err := sqlite.Open(file)
	require.NoError(t, err)
	defer dbRW.Close()
	dbRO, err := sqlite.Open(file, sqlite.WithReadOnly(true))
	require.NoError(t, err)
	defer dbRO.Close()

	ctx := context.Background()
	store, err := runstore.New(ctx, dbRW, dbRO)
	require.NoError(t, err)

	records, err := store.List(ctx, "session-a")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCmdHistoryMissingFlags(t *testing.T) {
	require.Error(t, cmdHistory("info", "", "session-a", 0, "plain"))
	require.Error(t, cmdHistory("info", "/tmp/state.db", "", 0, "plain"))
}
