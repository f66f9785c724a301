// Command xpert queries and maintains rows through CUE entity declarations.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/slmyyl/xpert-framework/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
