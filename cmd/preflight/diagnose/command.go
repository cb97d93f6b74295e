// Package diagnose implements the diagnose subcommand: one full
// bisection session over the nodes of a hostfile.
package diagnose

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	cmdcommon "github.com/AMD-AGI/Primus-SaFE-sub001/cmd/preflight/common"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/hostfile"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/log"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/runstore"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/session"
	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/sqlite"
)

func CreateCommand() func(*cli.Context) error {
	return func(cliContext *cli.Context) error {
		return cmdDiagnose(
			cliContext.String("log-level"),
			cliContext.String("log-file"),
			cliContext.String("hostfile"),
			cliContext.String("config"),
			cliContext.String("test-type"),
			cliContext.String("output-dir"),
			cliContext.String("state-file"),
			cliContext.Duration("timeout"),
			cliContext.String("output-format"),
		)
	}
}

func cmdDiagnose(
	logLevel string,
	logFile string,
	hostfilePath string,
	configPath string,
	testType string,
	outputDir string,
	stateFile string,
	timeout time.Duration,
	outputFormatRaw string,
) error {
	zapLvl, err := log.ParseLogLevel(logLevel)
	if err != nil {
		return err
	}
	log.Logger = log.CreateLogger(zapLvl, logFile)

	outputFormat, err := cmdcommon.ParseOutputFormat(outputFormatRaw)
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config %q: %w", configPath, err)
		}
	}
	if testType != "" {
		cfg.TestType = testType
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if stateFile != "" {
		cfg.StateFile = stateFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir %q: %w", cfg.OutputDir, err)
	}

	nodes, err := hostfile.Load(hostfilePath)
	if err != nil {
		return fmt.Errorf("failed to load hostfile %q: %w", hostfilePath, err)
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opts := []session.OpOption{}
	if cfg.StateFile != "" {
		dbRW, err := sqlite.Open(cfg.StateFile)
		if err != nil {
			return fmt.Errorf("failed to open state file %q: %w", cfg.StateFile, err)
		}
		defer dbRW.Close()

		dbRO, err := sqlite.Open(cfg.StateFile, sqlite.WithReadOnly(true))
		if err != nil {
			return fmt.Errorf("failed to open state file %q: %w", cfg.StateFile, err)
		}
		defer dbRO.Close()

		store, err := runstore.New(ctx, dbRW, dbRO)
		if err != nil {
			return err
		}
		opts = append(opts, session.WithStore(store))
	}

	report, err := session.New(cfg, opts...).Run(ctx, nodes)
	if err != nil {
		return err
	}

	if outputFormat == cmdcommon.OutputFormatJSON {
		return cmdcommon.WriteJSON(report)
	}

	report.RenderTable(os.Stdout)
	if len(report.Faulty) == 0 {
		fmt.Printf("\n%s all %d nodes passed\n", cmdcommon.CheckMark, report.Counts.Total)
	} else {
		fmt.Printf("\n%s %d of %d nodes implicated\n", cmdcommon.WarningSign, len(report.Faulty), report.Counts.Total)
	}
	return nil
}
