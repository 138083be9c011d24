package report

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"oneline": func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	},
}

const textTmpl = `Brandwatch Report: {{.Brand}}
------------------
Generated:       {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
Search Results:  {{.TotalSearchResults}}
Scraped Items:   {{.TotalScrapedItems}} ({{.PlaceholderItems}} placeholder)
{{- with .Sentiment}}
Sentiment:       {{.Label}} (score {{printf "%.2f" .Score}}, confidence {{pct .Confidence}}, via {{.Source}})
{{- else}}
Sentiment:       not analyzed
{{- end}}

Top Domains:
{{- range .TopDomains}}
  {{.Domain}}: {{.Count}}
{{- else}}
  None
{{- end}}

Sources:
{{- range $src, $count := .SearchBySource}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}

Key Findings:
{{- range .Findings}}
  - {{oneline .}}
{{- end}}

Recommendations:
{{- range .Recommendations}}
  - {{.}}
{{- end}}
`

const markdownTmpl = `# Brand Monitoring Report: {{.Brand}}

_Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}{{if .RunID}} · run ` + "`{{.RunID}}`" + `{{end}}_

## Executive Summary

{{.ExecutiveSummary}}

## Brand Mention Overview

| Metric | Value |
|---|---|
| Search results | {{.TotalSearchResults}} |
| Scraped items | {{.TotalScrapedItems}} |
| Placeholder items | {{.PlaceholderItems}} |
{{- range $src, $count := .SearchBySource}}
| Results from {{$src}} | {{$count}} |
{{- end}}
{{if .TopResults}}
### Top Mentions
{{range $i, $r := .TopResults}}
{{inc $i}}. [{{md .Title}}]({{.Link}}){{if .Snippet}}: {{md (oneline .Snippet)}}{{end}}
{{- end}}
{{end}}
## Sentiment Analysis Summary
{{with .Sentiment}}
**{{.Label}}** · score {{printf "%.2f" .Score}} · confidence {{pct .Confidence}} · source {{.Source}}
{{if .Explanation}}
{{oneline .Explanation}}
{{end}}
{{- if .PositiveMentions}}
**Positive mentions**
{{range .PositiveMentions}}
- {{md (oneline .)}}
{{- end}}
{{end}}
{{- if .NegativeMentions}}
**Negative mentions**
{{range .NegativeMentions}}
- {{md (oneline .)}}
{{- end}}
{{end}}
{{- else}}
Sentiment was not analyzed for this run.
{{end}}
## Key Findings
{{range .Findings}}
- {{md (oneline .)}}
{{- end}}

## Recommendations
{{range .Recommendations}}
- {{.}}
{{- end}}

## Next Steps
{{range $i, $s := .NextSteps}}
{{inc $i}}. {{$s}}
{{- end}}
`

var (
	textTemplate     = template.Must(template.New("textReport").Funcs(funcs).Parse(textTmpl))
	markdownTemplate = template.Must(template.New("markdownReport").Funcs(funcs).Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
		"md":  escapeMarkdown,
	}).Parse(markdownTmpl))
)

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := textTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("report: text: %w", err)
	}
	return nil
}

// WriteMarkdown writes the full report with the Executive Summary, Brand
// Mention Overview, Sentiment Analysis Summary, Key Findings,
// Recommendations and Next Steps sections.
func WriteMarkdown(w io.Writer, summary Summary) error {
	if err := markdownTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("report: markdown: %w", err)
	}
	return nil
}

// Markdown renders the markdown report to a string.
func Markdown(summary Summary) (string, error) {
	var b strings.Builder
	if err := WriteMarkdown(&b, summary); err != nil {
		return "", err
	}
	return b.String(), nil
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`,
	"[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;", "|", `\|`,
)

func escapeMarkdown(s string) string {
	return mdEscaper.Replace(s)
}
