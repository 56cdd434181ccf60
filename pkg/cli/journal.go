package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/cli/internal/output"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

func newJournalCmd(g *globals) *cobra.Command {
	var (
		where    string
		search   string
		limit    int
		offset   int
		sortBy   string
		clearAll bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the requests the proxy has handled",
		Long: `Journal prints the proxy's request journal. --search sends a request matcher
(a JSON file) to the proxy; --where filters the result locally with an expression
over entries, e.g. 'Response.Status >= 500'.`,
		Example: `  hoverctl journal
  hoverctl journal --search matcher.json
  hoverctl journal --where 'Request.Method == "POST"' --json
  hoverctl journal --clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := g.client(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer client.Close()
			out := cmd.OutOrStdout()

			if clearAll {
				if err := client.DeleteJournal(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Journal cleared")
				return nil
			}

			var journal *simulation.Journal
			if search != "" {
				m, err := readMatcher(search)
				if err != nil {
					return err
				}
				journal, err = client.SearchJournal(ctx, m)
				if err != nil {
					return err
				}
			} else {
				journal, err = client.Journal(ctx, &types.JournalQuery{Offset: offset, Limit: limit, Sort: sortBy})
				if err != nil {
					return err
				}
			}
			if where != "" {
				if journal, err = journal.Where(where); err != nil {
					return err
				}
			}

			if g.jsonOutput {
				return output.JSON(out, journal)
			}
			if len(journal.Entries) == 0 {
				fmt.Fprintln(out, "No journal entries")
				return nil
			}
			w := output.Table(out)
			fmt.Fprintln(w, "TIME\tMODE\tMETHOD\tURL\tSTATUS")
			for _, e := range journal.Entries {
				r := e.Request
				target := r.Scheme + "://" + r.Destination + r.Path
				if r.Query != "" {
					target += "?" + r.Query
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.TimeStarted, e.Mode, r.Method, target, e.Response.Status)
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&where, "where", "", "Keep entries matching this expression")
	f.StringVar(&search, "search", "", "JSON file holding a request matcher to search with")
	f.IntVar(&limit, "limit", 0, "Maximum entries to fetch (0 uses the proxy default)")
	f.IntVar(&offset, "offset", 0, "Entries to skip")
	f.StringVar(&sortBy, "sort", "", "Sort order, e.g. timeStarted:desc")
	f.BoolVar(&clearAll, "clear", false, "Delete the journal instead of listing it")
	return cmd
}

// readMatcher reads a request matcher, either bare or wrapped as {"request": ...}.
func readMatcher(path string) (simulation.RequestMatcher, error) {
	var m simulation.RequestMatcher
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	var wrapped struct {
		Request *simulation.RequestMatcher `json:"request"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Request != nil {
		return *wrapped.Request, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
