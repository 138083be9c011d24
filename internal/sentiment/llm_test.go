package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func fakeChatServer(t *testing.T, content string, status int) (*httptest.Server, *atomic.Int32, *map[string]any) {
	t.Helper()
	var calls atomic.Int32
	var lastBody map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&lastBody)

		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls, &lastBody
}

func TestLLM_Analyze(t *testing.T) {
	reply := "```json\n" + `{"sentiment":"Positive","score":0.7,"confidence":0.8,` +
		`"positive_mentions":["great support"],"negative_mentions":[],"summary":"Mostly praise."}` + "\n```"
	ts, calls, body := fakeChatServer(t, reply, http.StatusOK)

	llm, err := NewLLM(LLMConfig{APIKey: "test-key", BaseURL: ts.URL + "/v1/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := llm.Analyze(context.Background(), "Acme", "- Acme has great support")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Label != Positive || s.Score != 0.7 || s.Confidence != 0.8 || s.Source != "llm" {
		t.Errorf("unexpected score %+v", s)
	}
	if s.Explanation != "Mostly praise." || len(s.PositiveMentions) != 1 {
		t.Errorf("unexpected details %+v", s)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if (*body)["model"] != DefaultModel || (*body)["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("unexpected request body %v", *body)
	}
}

func TestLLM_Temperature(t *testing.T) {
	zero, warm := 0.0, 0.7
	cases := []struct {
		name string
		set  *float64
		want float64
	}{
		{"unset uses default", nil, DefaultTemperature},
		{"explicit zero", &zero, 0},
		{"explicit value", &warm, 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, _, body := fakeChatServer(t, `{"sentiment":"neutral","score":0,"confidence":0.5}`, http.StatusOK)
			llm, err := NewLLM(LLMConfig{APIKey: "test-key", BaseURL: ts.URL + "/v1/", Temperature: tc.set})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := llm.Analyze(context.Background(), "Acme", "- Acme exists"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := (*body)["temperature"].(float64)
			if !ok || got != tc.want {
				t.Errorf("expected temperature %v in request, got %v", tc.want, (*body)["temperature"])
			}
		})
	}
}

func TestLLM_ErrorStatusFallsBackToLexicon(t *testing.T) {
	ts, calls, _ := fakeChatServer(t, "", http.StatusInternalServerError)

	llm, err := NewLLM(LLMConfig{APIKey: "test-key", BaseURL: ts.URL + "/v1/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := llm.Analyze(context.Background(), "Acme", "text"); err == nil {
		t.Fatal("expected error from 500 response")
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retries, got %d calls", calls.Load())
	}

	s, err := NewFallback(llm, Lexicon{}, nil).Analyze(context.Background(), "Acme", "- Acme is awful")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Source != "lexicon" || s.Label != Negative {
		t.Errorf("expected lexicon negative, got %+v", s)
	}
}

func TestNewLLM_MissingKey(t *testing.T) {
	if _, err := NewLLM(LLMConfig{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		label   Label
		score   float64
		conf    float64
		wantErr bool
	}{
		{"plain", `{"sentiment":"negative","score":-0.4,"confidence":0.6}`, Negative, -0.4, 0.6, false},
		{"prose around", `Here you go: {"sentiment":"neutral","score":0} Hope it helps.`, Neutral, 0, 0.5, false},
		{"clamped", `{"score":3,"confidence":7}`, Positive, 1, 1, false},
		{"label only", `{"sentiment":"Negative"}`, Negative, -0.5, 0.5, false},
		{"no json", `I cannot do that.`, "", 0, 0, true},
		{"broken json", `{"sentiment": }`, "", 0, 0, true},
		{"empty object", `{}`, "", 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseReply(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", s)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Label != tc.label || s.Score != tc.score || s.Confidence != tc.conf {
				t.Errorf("got %+v", s)
			}
		})
	}
}
