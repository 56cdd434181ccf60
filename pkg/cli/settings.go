package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/cli/internal/flags"
	"github.com/getmockd/hoverfly-go/pkg/cli/internal/output"
)

func newModeCmd(g *globals) *cobra.Command {
	var (
		headers  flags.StringSlice
		stateful bool
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "mode [mode]",
		Short: "Show or switch the proxy's mode",
		Long: `Without an argument, mode prints the current mode. With one, it switches to it.
Capture arguments (--header, --stateful) only apply to capture mode.`,
		Example: `  hoverctl mode
  hoverctl mode capture --header Content-Type --header Authorization
  hoverctl mode simulate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, _, err := g.client(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer client.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				info, err := client.Info(ctx)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return output.JSON(out, map[string]any{"mode": info.Mode, "arguments": info.Arguments})
				}
				fmt.Fprintln(out, info.Mode)
				if hw := info.Arguments.HeadersWhitelist; len(hw) > 0 {
					fmt.Fprintf(out, "Capturing headers: %s\n", strings.Join(hw, ", "))
				}
				return nil
			}

			var mode flags.Mode
			if err := mode.Set(args[0]); err != nil {
				return err
			}
			var modeArgs *types.ModeArguments
			if len(headers) > 0 || stateful || strategy != "" {
				if types.Mode(mode) != types.ModeCapture {
					return errors.New("--header, --stateful and --matching-strategy only apply to capture mode")
				}
				modeArgs = &types.ModeArguments{
					HeadersWhitelist: headers,
					Stateful:         stateful,
					MatchingStrategy: strategy,
				}
			}
			if err := client.SetMode(ctx, types.Mode(mode), modeArgs); err != nil {
				return err
			}
			fmt.Fprintf(out, "Switched to %s mode\n", mode)
			return nil
		},
	}

	f := cmd.Flags()
	f.Var(&headers, "header", "Request header to capture (repeatable, comma-separated)")
	f.BoolVar(&stateful, "stateful", false, "Capture repeated requests as a stateful sequence")
	f.StringVar(&strategy, "matching-strategy", "", "Matching strategy for captured pairs")
	return cmd
}

func newDestinationCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "destination [regex]",
		Short: "Show or set which hosts the proxy intercepts",
		Example: `  hoverctl destination
  hoverctl destination "api\.example\.com"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, _, err := g.client(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer client.Close()

			if len(args) == 1 {
				if err := client.SetDestination(ctx, args[0]); err != nil {
					return err
				}
			}
			info, err := client.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.Destination)
			return nil
		},
	}
}

func newHealthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the proxy's admin API is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := g.client(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer client.Close()

			type healthResult struct {
				Status   string `json:"status"`
				AdminURL string `json:"adminUrl"`
				Error    string `json:"error,omitempty"`
			}
			result := healthResult{Status: "healthy", AdminURL: client.BaseURL()}

			ok, err := client.Health(ctx)
			switch {
			case err != nil:
				result.Status, result.Error = "unhealthy", err.Error()
			case !ok:
				result.Status = "unhealthy"
			}

			out := cmd.OutOrStdout()
			if g.jsonOutput {
				if err := output.JSON(out, result); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, result.Status)
			}
			if result.Status != "healthy" {
				if err != nil {
					return err
				}
				return fmt.Errorf("proxy at %s is not healthy", client.BaseURL())
			}
			return nil
		},
	}
}
