package report

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/sentiment"
	"github.com/FranksOps/brandwatch/internal/serp"
	"github.com/FranksOps/brandwatch/internal/storage"
)

// maxListed caps the search results and quotes carried into a report.
const maxListed = 10

// DomainCount is how many search results point at one domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Summary contains everything the writers render for one monitoring run.
type Summary struct {
	RunID       string    `json:"run_id"`
	Brand       string    `json:"brand"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalSearchResults int            `json:"total_search_results"`
	TotalScrapedItems  int            `json:"total_scraped_items"`
	PlaceholderItems   int            `json:"placeholder_items"`
	SearchBySource     map[string]int `json:"search_by_source"`
	RecordsBySource    map[string]int `json:"records_by_source"`
	TopDomains         []DomainCount  `json:"top_domains"`
	TopResults         []serp.Result  `json:"top_results"`

	Sentiment *sentiment.Score `json:"sentiment,omitempty"`

	ExecutiveSummary string   `json:"executive_summary"`
	Findings         []string `json:"key_findings"`
	Recommendations  []string `json:"recommendations"`
	NextSteps        []string `json:"next_steps"`
}

// Build derives a Summary from run. It is deterministic for a given run.
func Build(run *storage.Run) Summary {
	s := Summary{
		RunID:              run.ID,
		Brand:              run.Brand,
		GeneratedAt:        run.CreatedAt,
		TotalSearchResults: len(run.SearchResults),
		TotalScrapedItems:  len(run.ScrapedData),
		SearchBySource:     make(map[string]int),
		RecordsBySource:    make(map[string]int),
		Sentiment:          run.Sentiment,
	}

	domains := make(map[string]int)
	for _, r := range run.SearchResults {
		s.SearchBySource[r.Source.String()]++
		if d := domainOf(r.Link); d != "" {
			domains[d]++
		}
	}
	for _, rec := range run.ScrapedData {
		src := rec.Provenance()
		s.RecordsBySource[src.String()]++
		if src.Synthetic() {
			s.PlaceholderItems++
		}
	}
	s.TopDomains = rankDomains(domains, 5)
	s.TopResults = run.SearchResults
	if len(s.TopResults) > maxListed {
		s.TopResults = s.TopResults[:maxListed]
	}

	s.ExecutiveSummary = executiveSummary(s)
	s.Findings = findings(s)
	s.Recommendations = recommendations(s, run.ScrapedData)
	s.NextSteps = []string{
		fmt.Sprintf("Re-run monitoring for %s weekly to track the trend.", s.Brand),
		"Compare sentiment against the previous run before acting on a single result.",
		"Review the top sources manually and follow up on any mention that needs a response.",
	}
	return s
}

func domainOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func rankDomains(counts map[string]int, n int) []DomainCount {
	out := make([]DomainCount, 0, len(counts))
	for d, c := range counts {
		out = append(out, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func executiveSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monitoring of %s found %d web mention(s)", s.Brand, s.TotalSearchResults)
	if s.TotalScrapedItems > 0 {
		fmt.Fprintf(&b, " and %d scraped item(s)", s.TotalScrapedItems)
	}
	b.WriteString(".")
	if s.Sentiment != nil {
		fmt.Fprintf(&b, " Overall sentiment is %s (score %.2f, confidence %.2f).",
			s.Sentiment.Label, s.Sentiment.Score, s.Sentiment.Confidence)
	} else {
		b.WriteString(" Sentiment was not analyzed.")
	}
	return b.String()
}

func findings(s Summary) []string {
	var out []string
	if s.TotalSearchResults == 0 {
		out = append(out, "No web mentions were found in the past week.")
	} else {
		out = append(out, fmt.Sprintf("%d mention(s) across %d domain(s) in the top results.", s.TotalSearchResults, len(s.TopDomains)))
		if len(s.TopDomains) > 0 {
			out = append(out, fmt.Sprintf("Most mentions come from %s (%d).", s.TopDomains[0].Domain, s.TopDomains[0].Count))
		}
	}
	if n := s.SearchBySource["fallback"]; n > 0 {
		out = append(out, fmt.Sprintf("%d result(s) came from the fallback search provider.", n))
	}
	if n := s.SearchBySource["feed"]; n > 0 {
		out = append(out, fmt.Sprintf("%d mention(s) came from RSS feeds.", n))
	}
	if s.PlaceholderItems > 0 {
		out = append(out, fmt.Sprintf("%d of %d scraped item(s) are placeholders; platform scraping was unavailable.", s.PlaceholderItems, s.TotalScrapedItems))
	}
	if s.Sentiment != nil {
		if len(s.Sentiment.PositiveMentions) > 0 {
			out = append(out, "Positive: "+s.Sentiment.PositiveMentions[0])
		}
		if len(s.Sentiment.NegativeMentions) > 0 {
			out = append(out, "Negative: "+s.Sentiment.NegativeMentions[0])
		}
		if s.Sentiment.SyntheticOnly {
			out = append(out, "Sentiment was scored on placeholder content only and has low confidence.")
		}
	}
	return out
}

func recommendations(s Summary, records []dataset.Record) []string {
	var out []string
	if s.Sentiment != nil {
		switch s.Sentiment.Label {
		case sentiment.Negative:
			out = append(out, "Investigate the negative mentions and prepare a public response where appropriate.")
		case sentiment.Mixed:
			out = append(out, "Address the recurring concerns while amplifying the positive coverage.")
		case sentiment.Positive:
			out = append(out, "Amplify the positive coverage through owned channels.")
		default:
			out = append(out, "Increase brand visibility; current coverage is neutral.")
		}
	}
	if s.TotalSearchResults == 0 {
		out = append(out, "Broaden the query or add RSS feeds to widen coverage.")
	}
	if s.SearchBySource["fallback"] > 0 {
		out = append(out, "Configure BRIGHT_DATA_USERNAME and BRIGHT_DATA_PASSWORD for fuller search coverage.")
	}
	if len(records) > 0 && s.PlaceholderItems == len(records) {
		out = append(out, "Configure BRIGHT_DATA_API_KEY to scrape real platform content.")
	}
	if len(out) == 0 {
		out = append(out, "No action required.")
	}
	return out
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: json: %w", err)
	}
	return nil
}
