// Package main is the entry point for the provq CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/provgraph/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
