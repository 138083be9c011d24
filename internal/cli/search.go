package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(st *state) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <brand>",
		Short: "Search the web for brand mentions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := st.App()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = st.cfg.Search.Limit
			}
			query := strings.Join(args, " ")
			results := a.Search.Search(c.Context(), query, limit)
			if a.Feeds != nil {
				results = append(results, a.Feeds.Discover(c.Context(), query, limit)...)
			}

			out := c.OutOrStdout()
			if asJSON {
				return writeJSON(out, results)
			}
			if len(results) == 0 {
				fmt.Fprintf(out, "No results for %q\n", query)
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s [%s]\n   %s\n", i+1, r.Title, r.Source, r.Link)
				if r.Snippet != "" {
					fmt.Fprintf(out, "   %s\n", r.Snippet)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default: search.limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}
