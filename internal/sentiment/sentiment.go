package sentiment

import (
	"context"
	"log/slog"
	"strings"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/serp"
)

// Label is the overall polarity of brand mentions.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
	Mixed    Label = "mixed"
)

// ParseLabel normalises free-form labels such as "Positive" or "very negative".
func ParseLabel(s string) Label {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "mixed"):
		return Mixed
	case strings.Contains(s, "pos"):
		return Positive
	case strings.Contains(s, "neg"):
		return Negative
	default:
		return Neutral
	}
}

// PlaceholderConfidenceCap bounds confidence when only synthetic text was scored.
const PlaceholderConfidenceCap = 0.2

// Score is the result of a sentiment analysis.
type Score struct {
	Label            Label    `json:"label"`
	Score            float64  `json:"score"`
	Confidence       float64  `json:"confidence"`
	Explanation      string   `json:"explanation"`
	PositiveMentions []string `json:"positive_mentions,omitempty"`
	NegativeMentions []string `json:"negative_mentions,omitempty"`
	Source           string   `json:"source"`
	// Items is how many search results and records fed the corpus.
	Items int `json:"items"`
	// SyntheticOnly is set when nothing but placeholder text was available.
	SyntheticOnly bool `json:"synthetic_only,omitempty"`
}

// Analyzer scores the sentiment expressed about brand in text.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, brand, text string) (Score, error)
}

// Corpus is the text assembled for scoring.
type Corpus struct {
	Text          string
	Items         int
	SyntheticOnly bool
}

// BuildCorpus joins search snippets and record text into one bulleted
// document. Placeholder records are left out unless nothing else has text.
func BuildCorpus(results []serp.Result, records []dataset.Record) Corpus {
	var real, synthetic []string
	for _, r := range results {
		line := strings.TrimSpace(strings.Join(nonEmpty(r.Title, r.Snippet), ": "))
		if line == "" {
			continue
		}
		if r.Source.Synthetic() {
			synthetic = append(synthetic, line)
		} else {
			real = append(real, line)
		}
	}
	for _, rec := range records {
		text := strings.TrimSpace(rec.Text())
		if text == "" {
			continue
		}
		if rec.Provenance().Synthetic() {
			synthetic = append(synthetic, text)
		} else {
			real = append(real, text)
		}
	}

	lines, syntheticOnly := real, false
	if len(real) == 0 && len(synthetic) > 0 {
		lines, syntheticOnly = synthetic, true
	}
	if len(lines) == 0 {
		return Corpus{}
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(l, "\n", " "))
		b.WriteString("\n")
	}
	return Corpus{Text: b.String(), Items: len(lines), SyntheticOnly: syntheticOnly}
}

// Evaluate builds the corpus and scores it with a. An empty corpus yields a
// neutral zero-confidence score without calling a.
func Evaluate(ctx context.Context, a Analyzer, brand string, results []serp.Result, records []dataset.Record) (Score, error) {
	corpus := BuildCorpus(results, records)
	if corpus.Items == 0 {
		return Score{Label: Neutral, Explanation: "no content mentioning the brand was found", Source: a.Name()}, nil
	}

	score, err := a.Analyze(ctx, brand, corpus.Text)
	if err != nil {
		return Score{}, err
	}
	score.Items = corpus.Items
	if corpus.SyntheticOnly {
		score.SyntheticOnly = true
		if score.Confidence > PlaceholderConfidenceCap {
			score.Confidence = PlaceholderConfidenceCap
		}
	}
	return score, nil
}

// Fallback tries primary and falls back to secondary on error.
type Fallback struct {
	primary   Analyzer
	secondary Analyzer
	logger    *slog.Logger
}

var _ Analyzer = (*Fallback)(nil)

// NewFallback chains two analyzers. primary may be nil.
func NewFallback(primary, secondary Analyzer, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Name() string {
	if f.primary != nil {
		return f.primary.Name()
	}
	return f.secondary.Name()
}

func (f *Fallback) Analyze(ctx context.Context, brand, text string) (Score, error) {
	if f.primary != nil {
		score, err := f.primary.Analyze(ctx, brand, text)
		if err == nil {
			return score, nil
		}
		f.logger.Warn("sentiment analyzer failed, using fallback", "analyzer", f.primary.Name(), "err", err)
	}
	return f.secondary.Analyze(ctx, brand, text)
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
