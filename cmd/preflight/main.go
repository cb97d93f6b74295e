package main

import (
	"fmt"
	"os"

	cmdcommon "github.com/AMD-AGI/Primus-SaFE-sub001/cmd/preflight/common"
	"github.com/AMD-AGI/Primus-SaFE-sub001/cmd/preflight/command"
)

func main() {
	app := command.App()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", cmdcommon.WarningSign, err)
		os.Exit(1)
	}
}
