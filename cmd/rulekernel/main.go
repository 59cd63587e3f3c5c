// Command rulekernel compiles, validates, runs and replays rule trees.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rulekernel/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
