package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/metrics"
	"github.com/FranksOps/brandwatch/internal/pipeline"
	"github.com/FranksOps/brandwatch/internal/report"
	"github.com/FranksOps/brandwatch/internal/storage"
)

type monitorFlags struct {
	limit         int
	scrape        bool
	platform      string
	urls          []string
	maxScrapeURLs int
	params        []string
	collect       bool
	noSentiment   bool
	noReport      bool
	noSave        bool
	format        string
	output        string
	docx          string
	render        bool
	wordWrap      int
}

func newMonitorCmd(st *state) *cobra.Command {
	fl := &monitorFlags{}
	cmd := &cobra.Command{
		Use:   "monitor <brand>",
		Short: "Run a full monitoring pass and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runMonitor(c, st, fl, strings.Join(args, " "))
		},
	}
	f := cmd.Flags()
	f.IntVarP(&fl.limit, "limit", "n", 0, "Maximum search results (default: search.limit)")
	f.BoolVar(&fl.scrape, "scrape", false, "Scrape mention URLs through the dataset API")
	f.StringVarP(&fl.platform, "platform", "p", "", "Only scrape this platform")
	f.StringArrayVar(&fl.urls, "url", nil, "Scrape this URL instead of search links (repeatable, implies --scrape)")
	f.IntVar(&fl.maxScrapeURLs, "max-scrape-urls", 0, "Maximum URLs scraped per platform (default: scrape.max_urls)")
	f.StringArrayVar(&fl.params, "param", nil, "Extra dataset trigger parameter as key=value (repeatable)")
	f.BoolVar(&fl.collect, "collect", false, "Fetch the top result pages directly and extract mentions")
	f.BoolVar(&fl.noSentiment, "no-sentiment", false, "Skip sentiment analysis")
	f.BoolVar(&fl.noReport, "no-report", false, "Skip the markdown report stored with the run")
	f.BoolVar(&fl.noSave, "no-save", false, "Do not persist the run")
	f.StringVarP(&fl.format, "format", "f", "text", "Report format: "+strings.Join(reportFormats, ", "))
	f.StringVarP(&fl.output, "output", "o", "", "Write the report to this file instead of stdout")
	f.StringVar(&fl.docx, "docx", "", "Also export the report as a Word document")
	f.BoolVar(&fl.render, "render", false, "Render the markdown report in the terminal")
	f.IntVarP(&fl.wordWrap, "word-wrap", "w", 80, "Word wrap width for --render")
	return cmd
}

func runMonitor(c *cobra.Command, st *state, fl *monitorFlags, brand string) error {
	ctx := c.Context()
	a, err := st.App()
	if err != nil {
		return err
	}
	params, err := parseParams(fl.params)
	if err != nil {
		return err
	}

	if port := st.cfg.Metrics.Port; port > 0 {
		srv := metrics.Start(port, st.logger)
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	var store storage.Backend
	if !fl.noSave {
		store, err = a.Store(ctx)
		if err != nil {
			return err
		}
	}

	opts := pipeline.Options{
		Brand:         brand,
		Limit:         fl.limit,
		Scrape:        fl.scrape || len(fl.urls) > 0,
		ScrapeURLs:    fl.urls,
		MaxScrapeURLs: fl.maxScrapeURLs,
		Params:        params,
		Collect:       fl.collect,
		Sentiment:     !fl.noSentiment,
		Report:        !fl.noReport,
		Save:          !fl.noSave,
		Metadata:      map[string]string{"origin": "cli"},
		Progress: func(stage string) {
			st.logger.Info(stage, "brand", brand)
		},
	}
	if opts.Limit <= 0 {
		opts.Limit = st.cfg.Search.Limit
	}
	if opts.MaxScrapeURLs <= 0 {
		opts.MaxScrapeURLs = st.cfg.Scrape.MaxURLs
	}
	if fl.platform != "" {
		opts.Platform = dataset.ParsePlatform(fl.platform)
	}

	run, err := a.Monitor(store).Run(ctx, opts)
	if err != nil {
		return err
	}
	summary := report.Build(run)

	if fl.docx != "" {
		if err := report.WriteDocx(fl.docx, summary); err != nil {
			return err
		}
		st.logger.Info("wrote docx report", "path", fl.docx)
	}
	if fl.render && fl.output == "" {
		return renderMarkdown(c.OutOrStdout(), summary, fl.wordWrap)
	}
	if err := withOutput(c.OutOrStdout(), fl.output, func(w io.Writer) error {
		return writeReport(w, fl.format, summary)
	}); err != nil {
		return err
	}
	if store != nil {
		fmt.Fprintf(c.ErrOrStderr(), "Saved run %s\n", run.ID)
	}
	return nil
}
