package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/pipeline"
)

func newScrapeCmd(st *state) *cobra.Command {
	var (
		platform     string
		sitemap      string
		site         string
		sitemapLimit int
		params       []string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "scrape [urls...]",
		Short: "Scrape platform URLs through the dataset API",
		Long: "scrape submits URLs to the scraping dataset API and prints the records as JSON.\n" +
			"Without an API key, or when the job fails, one placeholder record is returned\n" +
			"per URL and tagged with provenance \"placeholder\".",
		RunE: func(c *cobra.Command, args []string) error {
			a, err := st.App()
			if err != nil {
				return err
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}

			urls := args
			if sitemap != "" {
				expanded, err := a.Sitemaps.Expand(c.Context(), sitemap, sitemapLimit)
				if err != nil {
					return fmt.Errorf("sitemap: %w", err)
				}
				urls = append(urls, expanded...)
			}
			if site != "" {
				discovered, err := a.Sitemaps.Discover(c.Context(), site, sitemapLimit)
				if err != nil {
					return fmt.Errorf("sitemap discovery: %w", err)
				}
				urls = append(urls, discovered...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs provided; pass them as arguments or use --sitemap or --site")
			}

			var records []dataset.Record
			var forced dataset.Platform
			if platform != "" {
				forced = dataset.ParsePlatform(platform)
			}
			for _, req := range pipeline.GroupByPlatform(urls, forced, p) {
				records = append(records, a.Scraper.Scrape(c.Context(), req)...)
			}

			synthetic := 0
			for _, r := range records {
				if r.Provenance().Synthetic() {
					synthetic++
				}
			}
			if synthetic > 0 {
				st.logger.Warn("scrape returned placeholder records", "placeholders", synthetic, "total", len(records))
			}
			return withOutput(c.OutOrStdout(), output, func(w io.Writer) error {
				return writeJSON(w, records)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&platform, "platform", "p", "", "Platform: linkedin, instagram, youtube, x or web (default: detect per URL)")
	f.StringVar(&sitemap, "sitemap", "", "Add the URLs listed in this sitemap")
	f.StringVar(&site, "site", "", "Add the URLs from the sitemaps this site lists in robots.txt")
	f.IntVar(&sitemapLimit, "sitemap-limit", 50, "Maximum URLs taken from --sitemap or --site")
	f.StringArrayVar(&params, "param", nil, "Extra dataset trigger parameter as key=value (repeatable)")
	f.StringVarP(&output, "output", "o", "", "Write records to this file instead of stdout")
	return cmd
}
