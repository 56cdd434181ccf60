// hoverctl - Command-line interface for Hoverfly proxies
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/getmockd/hoverfly-go/pkg/cli"
)

// Build-time variables set via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Version = Version
	return cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
