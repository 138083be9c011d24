package report

import (
	"fmt"
	"html/template"
	"io"
)

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Brandwatch Report: {{.Brand}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .positive { color: green; } .negative { color: red; } .mixed { color: darkorange; } .neutral { color: #555; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Brandwatch Report: {{.Brand}}</h1>
  <p><strong>Generated:</strong> {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
  <p>{{.ExecutiveSummary}}</p>

  <div class="stat-card">
    <div>Search Results</div>
    <div class="stat-val">{{.TotalSearchResults}}</div>
  </div>
  <div class="stat-card">
    <div>Scraped Items</div>
    <div class="stat-val">{{.TotalScrapedItems}}</div>
  </div>
  <div class="stat-card">
    <div>Placeholders</div>
    <div class="stat-val" style="color: {{if gt .PlaceholderItems 0}}red{{else}}green{{end}};">{{.PlaceholderItems}}</div>
  </div>
  {{- with .Sentiment}}
  <div class="stat-card">
    <div>Sentiment</div>
    <div class="stat-val {{.Label}}">{{.Label}} ({{printf "%.2f" .Score}})</div>
  </div>
  {{- end}}

  <h3>Top Mentions</h3>
  <table>
    <tr><th>Title</th><th>Snippet</th><th>Source</th></tr>
    {{- range .TopResults}}
    <tr><td><a href="{{.Link}}">{{.Title}}</a></td><td>{{.Snippet}}</td><td>{{.Source}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>

  <h3>Top Domains</h3>
  <table>
    <tr><th>Domain</th><th>Count</th></tr>
    {{- range .TopDomains}}
    <tr><td>{{.Domain}}</td><td>{{.Count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Key Findings</h3>
  <ul>{{range .Findings}}<li>{{.}}</li>{{end}}</ul>

  <h3>Recommendations</h3>
  <ul>{{range .Recommendations}}<li>{{.}}</li>{{end}}</ul>

  <h3>Next Steps</h3>
  <ol>{{range .NextSteps}}<li>{{.}}</li>{{end}}</ol>
</body>
</html>
`

var htmlTemplate = template.Must(template.New("htmlReport").Parse(htmlTmpl))

// WriteHTML writes a standalone HTML report. Scraped text is escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := htmlTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("report: html: %w", err)
	}
	return nil
}
