// Package runstore persists benchmark run records in SQLite so that a
// diagnostic session's history survives the process and can be listed
// afterwards.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runner"
)

// suffix with the version, in case the table schema changes
const schemaVersion = "v0_1_0"

const (
	// columnSessionID ties a run to the diagnostic session that issued it.
	columnSessionID = "session_id"

	// columnGroupHash is the short content hash of the sorted node group.
	columnGroupHash = "group_hash"

	// columnNodes is the comma-joined node list of the group.
	columnNodes = "nodes"

	// columnStartTimestamp and columnEndTimestamp are unix seconds.
	columnStartTimestamp = "start_timestamp"
	columnEndTimestamp   = "end_timestamp"

	columnExitCode = "exit_code"
	columnTimedOut = "timed_out"

	// columnVerdict is the classification outcome
	// e.g., "Healthy", "Unhealthy", "Inconclusive".
	columnVerdict = "verdict"

	// columnAlgBW is the measured algorithm bandwidth in GB/s, 0 when
	// no result table was produced.
	columnAlgBW = "algbw_gbps"

	columnReason     = "reason"
	columnOutputPath = "output_path"
)

// Record is one persisted benchmark run.
type Record struct {
	SessionID  string
	GroupHash  string
	Nodes      []string
	StartTime  time.Time
	EndTime    time.Time
	ExitCode   int
	TimedOut   bool
	Verdict    string
	AlgBWGBps  float64
	Reason     string
	OutputPath string
}

// Store appends and lists benchmark run records.
type Store interface {
	Insert(ctx context.Context, sessionID string, run *runner.Run) error
	List(ctx context.Context, sessionID string) ([]Record, error)
	Purge(ctx context.Context, beforeTimestamp int64) (int, error)
}

var _ Store = &store{}

type store struct {
	table string
	dbRW  *sql.DB
	dbRO  *sql.DB
}

// New creates the run table if needed and returns a store over it.
func New(ctx context.Context, dbRW *sql.DB, dbRO *sql.DB) (Store, error) {
	tableName := fmt.Sprintf("preflight_runs_%s", schemaVersion)
	if err := createTable(ctx, dbRW, tableName); err != nil {
		return nil, err
	}
	return &store{
		table: tableName,
		dbRW:  dbRW,
		dbRO:  dbRO,
	}, nil
}

func createTable(ctx context.Context, db *sql.DB, tableName string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s INTEGER NOT NULL,
	%s INTEGER NOT NULL,
	%s INTEGER NOT NULL,
	%s INTEGER NOT NULL,
	%s TEXT NOT NULL,
	%s REAL NOT NULL,
	%s TEXT,
	%s TEXT
);`, tableName,
		columnSessionID,
		columnGroupHash,
		columnNodes,
		columnStartTimestamp,
		columnEndTimestamp,
		columnExitCode,
		columnTimedOut,
		columnVerdict,
		columnAlgBW,
		columnReason,
		columnOutputPath,
	))
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s);`,
		tableName, columnSessionID, tableName, columnSessionID))
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s);`,
		tableName, columnStartTimestamp, tableName, columnStartTimestamp))
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *store) Insert(ctx context.Context, sessionID string, run *runner.Run) error {
	timedOut := 0
	if run.TimedOut {
		timedOut = 1
	}

	_, err := s.dbRW.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))",
		s.table,
		columnSessionID,
		columnGroupHash,
		columnNodes,
		columnStartTimestamp,
		columnEndTimestamp,
		columnExitCode,
		columnTimedOut,
		columnVerdict,
		columnAlgBW,
		columnReason,
		columnOutputPath,
	),
		sessionID,
		run.GroupHash,
		strings.Join(run.Group, ","),
		run.StartTime.UTC().Unix(),
		run.EndTime.UTC().Unix(),
		run.ExitCode,
		timedOut,
		string(run.Verdict),
		run.AlgBWGBps,
		run.Reason,
		run.OutputPath,
	)
	return err
}

// List returns the session's runs in start order (earliest first).
func (s *store) List(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.dbRO.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s FROM %s WHERE %s = ? ORDER BY %s ASC, rowid ASC",
		columnSessionID,
		columnGroupHash,
		columnNodes,
		columnStartTimestamp,
		columnEndTimestamp,
		columnExitCode,
		columnTimedOut,
		columnVerdict,
		columnAlgBW,
		columnReason,
		columnOutputPath,
		s.table,
		columnSessionID,
		columnStartTimestamp,
	), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec        Record
			nodes      string
			startTS    int64
			endTS      int64
			timedOut   int
			reason     sql.NullString
			outputPath sql.NullString
		)
		if err := rows.Scan(
			&rec.SessionID,
			&rec.GroupHash,
			&nodes,
			&startTS,
			&endTS,
			&rec.ExitCode,
			&timedOut,
			&rec.Verdict,
			&rec.AlgBWGBps,
			&reason,
			&outputPath,
		); err != nil {
			return nil, err
		}

		if nodes != "" {
			rec.Nodes = strings.Split(nodes, ",")
		}
		rec.StartTime = time.Unix(startTS, 0).UTC()
		rec.EndTime = time.Unix(endTS, 0).UTC()
		rec.TimedOut = timedOut != 0
		rec.Reason = reason.String
		rec.OutputPath = outputPath.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Purge deletes runs that started before the given unix timestamp.
func (s *store) Purge(ctx context.Context, beforeTimestamp int64) (int, error) {
	res, err := s.dbRW.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE %s < ?", s.table, columnStartTimestamp), beforeTimestamp)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
