package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReadWrite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.db")

	dbRW, err := Open(file)
	require.NoError(t, err)
	defer dbRW.Close()

	ctx := context.Background()
	_, err = dbRW.ExecContext(ctx, "CREATE TABLE nodes (name TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = dbRW.ExecContext(ctx, "INSERT INTO nodes (name) VALUES (?)", "n1")
	require.NoError(t, err)

	dbRO, err := Open(file, WithReadOnly(true))
	require.NoError(t, err)
	defer dbRO.Close()

	var name string
	require.NoError(t, dbRO.QueryRowContext(ctx, "SELECT name FROM nodes").Scan(&name))
	assert.Equal(t, "n1", name)

	// read-only connections must reject writes
	_, err = dbRO.ExecContext(ctx, "INSERT INTO nodes (name) VALUES (?)", "n2")
	assert.Error(t, err)
}

func TestReadDBSize(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.db")

	dbRW, err := Open(file)
	require.NoError(t, err)
	defer dbRW.Close()

	ctx := context.Background()
	_, err = dbRW.ExecContext(ctx, "CREATE TABLE runs (group_hash TEXT NOT NULL)")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err = dbRW.ExecContext(ctx, "INSERT INTO runs (group_hash) VALUES (?)", "0123456789abcdef")
		require.NoError(t, err)
	}

	size, err := ReadDBSize(ctx, dbRW)
	require.NoError(t, err)
	assert.Greater(t, size, uint64(0))
}
