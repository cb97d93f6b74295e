package command

import (
	"github.com/urfave/cli"

	cmddiagnose "github.com/AMD-AGI/Primus-SaFE-sub001/cmd/preflight/diagnose"
	cmdhistory "github.com/AMD-AGI/Primus-SaFE-sub001/cmd/preflight/history"
	"github.com/AMD-AGI/Primus-SaFE-sub001/version"
)

const usage = `
# to localize faulty nodes in a hostfile
preflight diagnose --hostfile /job/hostfile

# to keep the run history for later inspection
preflight diagnose --hostfile /job/hostfile --state-file /var/lib/preflight/state.db
`

func App() *cli.App {
	app := cli.NewApp()

	app.Name = "preflight"
	app.Version = version.Version
	app.Usage = usage
	app.Description = "GPU cluster fault localization via collective benchmark bisection"

	app.Commands = []cli.Command{
		{
			Name:  "diagnose",
			Usage: "bisect the hostfile's nodes down to the minimal faulty subset",
			UsageText: `# run the default all_reduce sweep
preflight diagnose --hostfile /job/hostfile

# alltoall flavor, machine-readable output
preflight diagnose --hostfile /job/hostfile --test-type alltoall -o json
`,
			Action: cmddiagnose.CreateCommand(),
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "hostfile",
					Usage: "path to the hostfile listing candidate nodes (one per line)",
				},
				&cli.StringFlag{
					Name:  "config,c",
					Usage: "path to a YAML config overriding the defaults",
				},
				&cli.StringFlag{
					Name:  "test-type",
					Usage: "collective benchmark flavor [all_reduce, alltoall]",
				},
				&cli.StringFlag{
					Name:  "output-dir",
					Usage: "directory for per-group benchmark logs",
				},
				&cli.StringFlag{
					Name:  "state-file",
					Usage: "SQLite file persisting the run history (empty disables persistence)",
				},
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "overall session budget; on expiry untested nodes are reported unhealthy and flagged ambiguous",
				},
				&cli.StringFlag{
					Name:  "output-format,o",
					Usage: "output format [plain, json]",
				},
				&cli.StringFlag{
					Name:  "log-level,l",
					Usage: "set the logging level [debug, info, warn, error, fatal, panic, dpanic]",
				},
				&cli.StringFlag{
					Name:  "log-file",
					Usage: "write logs to this file instead of stderr",
				},
			},
		},
		{
			Name:  "history",
			Usage: "list the benchmark runs a past session persisted",
			UsageText: `preflight history --state-file /var/lib/preflight/state.db --session <uuid>
`,
			Action: cmdhistory.CreateCommand(),
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "state-file",
					Usage: "SQLite file the session persisted its runs to",
				},
				&cli.StringFlag{
					Name:  "session",
					Usage: "session id to list",
				},
				&cli.DurationFlag{
					Name:  "retention",
					Usage: "purge runs older than this before listing (0 keeps everything)",
				},
				&cli.StringFlag{
					Name:  "output-format,o",
					Usage: "output format [plain, json]",
				},
				&cli.StringFlag{
					Name:  "log-level,l",
					Usage: "set the logging level [debug, info, warn, error, fatal, panic, dpanic]",
				},
			},
		},
	}

	return app
}
