package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/cli/internal/flags"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/hoverfly"
)

func newStartCmd(g *globals) *cobra.Command {
	var (
		importFile     string
		mode           flags.Mode
		adminPort      int
		proxyPort      int
		binary         string
		captureHeaders flags.StringSlice
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a proxy and keep it running until interrupted",
		Long: `Start spawns the hoverfly binary on free ports (or the ports given), optionally
imports a simulation, prints the admin and proxy URLs and waits for Ctrl+C.`,
		Example: `  hoverctl start
  hoverctl start --mode capture --capture-header Authorization
  hoverctl start --import simulation.json --proxy-port 8500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			extra := []config.Option{config.WithRemote(false)}
			if cmd.Flags().Changed("admin-port") {
				extra = append(extra, config.WithAdminPort(adminPort))
			}
			if cmd.Flags().Changed("proxy-port") {
				extra = append(extra, config.WithProxyPort(proxyPort))
			}
			if mode != "" {
				extra = append(extra, config.WithMode(types.Mode(mode)))
			}
			if binary != "" {
				extra = append(extra, config.WithBinaryLocation(binary))
			}
			if len(captureHeaders) > 0 {
				extra = append(extra, config.WithCaptureHeaders(captureHeaders...))
			}
			cfg, err := g.config(extra...)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			hf := hoverfly.New(cfg, hoverfly.WithLogger(g.logger(cfg, cmd.ErrOrStderr())))
			if err := hf.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = hf.Close() }()

			if importFile != "" {
				if err := hf.ImportSimulation(ctx, hoverfly.FromFile(importFile)); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Admin URL: %s\n", hf.AdminURL())
			fmt.Fprintf(out, "Proxy URL: %s\n", hf.ProxyURL())
			fmt.Fprintf(out, "Mode: %s\n", cfg.Mode())

			<-ctx.Done()
			fmt.Fprintln(out, "Stopping proxy")
			return hf.Close()
		},
	}

	f := cmd.Flags()
	f.StringVar(&importFile, "import", "", "Simulation file to load after start (JSON or YAML)")
	f.Var(&mode, "mode", "Start mode: simulate, capture, spy, synthesize, modify or diff")
	f.IntVar(&adminPort, "admin-port", 0, "Admin port (0 picks a free port)")
	f.IntVar(&proxyPort, "proxy-port", 0, "Proxy port (0 picks a free port)")
	f.StringVar(&binary, "binary", "", "Path to the hoverfly binary")
	f.Var(&captureHeaders, "capture-header", "Header to record in capture mode (repeatable)")
	return cmd
}
