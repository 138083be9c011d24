package report

import (
	"fmt"

	"github.com/gingfrederik/docx"
)

// WriteDocx saves the report as a Word document at path.
func WriteDocx(path string, summary Summary) error {
	f := docx.NewFile()

	f.AddParagraph().AddText("Brand Monitoring Report: " + summary.Brand).Size(20)
	meta := f.AddParagraph().AddText("Generated " + summary.GeneratedAt.Format("2006-01-02 15:04 MST"))
	meta.Size(10)
	meta.Color("808080")
	f.AddParagraph() // Spacer

	heading(f, "Executive Summary")
	f.AddParagraph().AddText(summary.ExecutiveSummary)

	heading(f, "Brand Mention Overview")
	f.AddParagraph().AddText(fmt.Sprintf("Search results: %d", summary.TotalSearchResults))
	f.AddParagraph().AddText(fmt.Sprintf("Scraped items: %d (%d placeholder)", summary.TotalScrapedItems, summary.PlaceholderItems))
	for _, r := range summary.TopResults {
		f.AddParagraph().AddText(r.Title)
		link := f.AddParagraph().AddText(r.Link)
		link.Size(10)
		link.Color("0000FF")
	}

	heading(f, "Sentiment Analysis Summary")
	if s := summary.Sentiment; s != nil {
		run := f.AddParagraph().AddText(fmt.Sprintf("%s (score %.2f, confidence %.2f, via %s)", s.Label, s.Score, s.Confidence, s.Source))
		run.Color(labelColor(string(s.Label)))
		if s.Explanation != "" {
			f.AddParagraph().AddText(s.Explanation)
		}
	} else {
		f.AddParagraph().AddText("Sentiment was not analyzed for this run.")
	}

	list(f, "Key Findings", summary.Findings)
	list(f, "Recommendations", summary.Recommendations)
	list(f, "Next Steps", summary.NextSteps)

	if err := f.Save(path); err != nil {
		return fmt.Errorf("report: docx: %w", err)
	}
	return nil
}

func heading(f *docx.File, text string) {
	f.AddParagraph()
	f.AddParagraph().AddText(text).Size(16)
}

func list(f *docx.File, title string, items []string) {
	heading(f, title)
	for _, it := range items {
		f.AddParagraph().AddText("- " + it)
	}
}

func labelColor(label string) string {
	switch label {
	case "positive":
		return "008000"
	case "negative":
		return "C00000"
	default:
		return "808080"
	}
}
