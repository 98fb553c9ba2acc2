// Command qsync validates GPU queue synchronization scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/qsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
