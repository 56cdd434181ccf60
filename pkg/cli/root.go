package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// Version is injected during build.
var Version = "dev"

// globals holds the persistent flags shared by every command.
type globals struct {
	adminURL   string
	token      string
	configPath string
	logLevel   string
	logFormat  string
	jsonOutput bool
}

// NewRootCommand builds the hoverctl command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "hoverctl",
		Short: "hoverctl drives a Hoverfly proxy through its admin API",
		Long: `hoverctl starts Hoverfly proxies and manages their simulations, modes and journals.

Commands that talk to a running proxy use --admin-url, or the admin host and port from
--config and HOVERFLY_* environment variables (default http://localhost:8888).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.adminURL, "admin-url", "", "Admin API base URL (default http://localhost:8888)")
	pf.StringVar(&g.token, "token", "", "Bearer token for the admin API")
	pf.StringVar(&g.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format: text or json")
	pf.BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(
		newStartCmd(g),
		newImportCmd(g),
		newExportCmd(g),
		newModeCmd(g),
		newDestinationCmd(g),
		newJournalCmd(g),
		newHealthCmd(g),
		newValidateCmd(g),
	)
	return root
}

// Execute runs hoverctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", describe(err))
		return 1
	}
	return 0
}

// describe renders err for humans, with a hint for the common failure kinds.
func describe(err error) string {
	var e *errs.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case errs.KindNetwork:
		return err.Error() + "\n\nIs the proxy running? Start one with: hoverctl start"
	case errs.KindBinaryNotFound:
		return err.Error() + "\n\nInstall hoverfly on PATH or set HOVERFLY_BINARY."
	}
	return err.Error()
}
