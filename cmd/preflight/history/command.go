// Package history implements the history subcommand: lists the
// benchmark runs a past session persisted in the state file.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	cmdcommon "github.com/AMD-AGI/Primus-SaFE-sub001/cmd/preflight/common"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/log"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runstore"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/sqlite"
)

func CreateCommand() func(*cli.Context) error {
	return func(cliContext *cli.Context) error {
		return cmdHistory(
			cliContext.String("log-level"),
			cliContext.String("state-file"),
			cliContext.String("session"),
			cliContext.Duration("retention"),
			cliContext.String("output-format"),
		)
	}
}

func cmdHistory(logLevel string, stateFile string, sessionID string, retention time.Duration, outputFormatRaw string) error {
	zapLvl, err := log.ParseLogLevel(logLevel)
	if err != nil {
		return err
	}
	log.Logger = log.CreateLogger(zapLvl, "")

	outputFormat, err := cmdcommon.ParseOutputFormat(outputFormatRaw)
	if err != nil {
		return err
	}
	if stateFile == "" {
		return errors.New("--state-file is required")
	}
	if sessionID == "" {
		return errors.New("--session is required")
	}

	dbRW, err := sqlite.Open(stateFile)
	if err != nil {
		return fmt.Errorf("failed to open state file %q: %w", stateFile, err)
	}
	defer dbRW.Close()

	dbRO, err := sqlite.Open(stateFile, sqlite.WithReadOnly(true))
	if err != nil {
		return fmt.Errorf("failed to open state file %q: %w", stateFile, err)
	}
	defer dbRO.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := runstore.New(ctx, dbRW, dbRO)
	if err != nil {
		return err
	}

	if retention > 0 {
		purged, err := store.Purge(ctx, time.Now().UTC().Add(-retention).Unix())
		if err != nil {
			return fmt.Errorf("failed to purge runs older than %s: %w", retention, err)
		}
		if purged > 0 {
			log.Logger.Infow("purged old runs", "retention", retention, "purged", purged)
		}
	}

	records, err := store.List(ctx, sessionID)
	if err != nil {
		return err
	}

	if outputFormat == cmdcommon.OutputFormatJSON {
		return cmdcommon.WriteJSON(records)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetHeader([]string{"Started", "Group", "Verdict", "AlgBW", "Exit", "Log"})
	for _, rec := range records {
		bw := "-"
		if rec.AlgBWGBps > 0 {
			bw = fmt.Sprintf("%.2f GB/s", rec.AlgBWGBps)
		}
		table.Append([]string{
			rec.StartTime.Format(time.RFC3339),
			rec.GroupHash,
			rec.Verdict,
			bw,
			fmt.Sprintf("%d", rec.ExitCode),
			rec.OutputPath,
		})
	}
	table.Render()

	fmt.Printf("\n%d runs in session %s\n", len(records), sessionID)

	if size, err := sqlite.ReadDBSize(ctx, dbRO); err == nil {
		fmt.Printf("state file %s (%s)\n", stateFile, humanize.Bytes(size))
	}
	return nil
}
