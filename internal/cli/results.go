package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/brandwatch/internal/report"
	"github.com/FranksOps/brandwatch/internal/storage"
)

func newResultsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List, show and delete stored runs",
	}
	cmd.AddCommand(newResultsListCmd(st), newResultsShowCmd(st), newResultsDeleteCmd(st))
	return cmd
}

func newResultsListCmd(st *state) *cobra.Command {
	var (
		brand  string
		since  time.Duration
		limit  int
		offset int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			store, err := st.store(c)
			if err != nil {
				return err
			}
			f := storage.Filter{Brand: brand, Limit: limit, Offset: offset}
			if since > 0 {
				t := time.Now().Add(-since)
				f.Since = &t
			}
			runs, err := store.Query(c.Context(), f)
			if err != nil {
				return err
			}

			out := c.OutOrStdout()
			if asJSON {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No stored runs")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tBRAND\tCREATED\tSEARCH\tSCRAPED\tPLACEHOLDER\tSENTIMENT")
			for _, r := range runs {
				label := "-"
				if r.Sentiment != nil {
					label = string(r.Sentiment.Label)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.Brand, r.CreatedAt.Local().Format(time.DateTime),
					r.Summary.TotalSearchResults, r.Summary.TotalScrapedItems, r.Summary.PlaceholderItems, label)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&brand, "brand", "", "Only runs for this brand")
	f.DurationVar(&since, "since", 0, "Only runs newer than this, e.g. 72h")
	f.IntVarP(&limit, "limit", "n", 20, "Maximum runs (0 = all)")
	f.IntVar(&offset, "offset", 0, "Skip this many runs")
	f.BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newResultsShowCmd(st *state) *cobra.Command {
	var (
		format string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the report for a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			store, err := st.store(c)
			if err != nil {
				return err
			}
			run, err := store.Get(c.Context(), args[0])
			if err != nil {
				return err
			}
			if raw {
				return writeJSON(c.OutOrStdout(), run)
			}
			return writeReport(c.OutOrStdout(), format, report.Build(run))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Report format: text, markdown, json or html")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the stored run as JSON")
	return cmd
}

func newResultsDeleteCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete stored runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			store, err := st.store(c)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := store.Delete(c.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(c.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}

func (st *state) store(c *cobra.Command) (storage.Backend, error) {
	a, err := st.App()
	if err != nil {
		return nil, err
	}
	return a.Store(c.Context())
}
