package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	ErrMissingAPIKey = errors.New("sentiment: api key not configured")
	ErrEmptyReply    = errors.New("sentiment: model returned no choices")
	ErrNoJSON        = errors.New("sentiment: no JSON object in model reply")
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.1
)

// LLMConfig configures the chat-completions analyzer. BaseURL may point at
// any OpenAI-compatible endpoint.
type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// Temperature is sent as given, zero included. Nil means DefaultTemperature.
	Temperature *float64
	Timeout     time.Duration
	MaxRetries  int
	Logger      *slog.Logger
}

// LLM asks a chat model to score the corpus and parses its JSON reply.
type LLM struct {
	cfg    LLMConfig
	client *openai.Client
	logger *slog.Logger
}

var _ Analyzer = (*LLM)(nil)

// NewLLM returns ErrMissingAPIKey when no key is configured.
func NewLLM(cfg LLMConfig) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == nil {
		t := DefaultTemperature
		cfg.Temperature = &t
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &LLM{cfg: cfg, client: &client, logger: cfg.Logger}, nil
}

func (l *LLM) Name() string { return "llm" }

func (l *LLM) Analyze(ctx context.Context, brand, text string) (Score, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: l.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You score brand sentiment and reply with a single JSON object."),
			openai.UserMessage(prompt(brand, text)),
		},
		MaxTokens:   openai.Int(int64(l.cfg.MaxTokens)),
		Temperature: openai.Float(*l.cfg.Temperature),
	})
	if err != nil {
		return Score{}, fmt.Errorf("sentiment: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Score{}, ErrEmptyReply
	}

	score, err := ParseReply(resp.Choices[0].Message.Content)
	if err != nil {
		return Score{}, err
	}
	score.Source = l.Name()
	l.logger.Debug("sentiment scored", "brand", brand, "label", score.Label, "score", score.Score,
		"tokens", resp.Usage.TotalTokens)
	return score, nil
}

func prompt(brand, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the sentiment of the following mentions of the brand %q.\n", brand)
	b.WriteString(`Reply with JSON only, using these keys:
{"sentiment": "positive|negative|neutral|mixed", "score": <number from -1 to 1>,
 "confidence": <number from 0 to 1>, "positive_mentions": [<short quotes>],
 "negative_mentions": [<short quotes>], "summary": "<one paragraph>"}

`)
	b.WriteString(text)
	return b.String()
}

type reply struct {
	Sentiment        string   `json:"sentiment"`
	Score            *float64 `json:"score"`
	Confidence       *float64 `json:"confidence"`
	PositiveMentions []string `json:"positive_mentions"`
	NegativeMentions []string `json:"negative_mentions"`
	Summary          string   `json:"summary"`
}

// ParseReply extracts the first JSON object from a model reply, tolerating
// markdown fences and surrounding prose. Out-of-range numbers are clamped.
func ParseReply(content string) (Score, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Score{}, ErrNoJSON
	}

	var r reply
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return Score{}, fmt.Errorf("sentiment: decode reply: %w", err)
	}

	s := Score{
		Explanation:      strings.TrimSpace(r.Summary),
		PositiveMentions: r.PositiveMentions,
		NegativeMentions: r.NegativeMentions,
		Confidence:       0.5,
	}
	if r.Confidence != nil {
		s.Confidence = clamp(*r.Confidence, 0, 1)
	}

	switch {
	case r.Score != nil:
		s.Score = clamp(*r.Score, -1, 1)
		if r.Sentiment != "" {
			s.Label = ParseLabel(r.Sentiment)
		} else {
			s.Label = labelFor(s.Score, false)
		}
	case r.Sentiment != "":
		s.Label = ParseLabel(r.Sentiment)
		switch s.Label {
		case Positive:
			s.Score = 0.5
		case Negative:
			s.Score = -0.5
		}
	default:
		return Score{}, fmt.Errorf("sentiment: reply has neither sentiment nor score: %w", ErrNoJSON)
	}
	return s, nil
}
