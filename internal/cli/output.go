package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"charm.land/glamour/v2"

	"github.com/FranksOps/brandwatch/internal/report"
)

// Report formats accepted by --format.
var reportFormats = []string{"text", "markdown", "json", "html"}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReport(w io.Writer, format string, summary report.Summary) error {
	switch strings.ToLower(format) {
	case "", "text":
		return report.WriteText(w, summary)
	case "markdown", "md":
		return report.WriteMarkdown(w, summary)
	case "json":
		return report.WriteJSON(w, summary)
	case "html":
		return report.WriteHTML(w, summary)
	default:
		return fmt.Errorf("unknown format %q, want one of %s", format, strings.Join(reportFormats, ", "))
	}
}

// renderMarkdown renders the markdown report for the terminal.
func renderMarkdown(w io.Writer, summary report.Summary, wordWrap int) error {
	md, err := report.Markdown(summary)
	if err != nil {
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// withOutput calls fn with path opened for writing, or with stdout when
// path is empty.
func withOutput(stdout io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
