package analyzer

import (
	"net/url"
	"strings"
	"unicode"
)

// Mention records where a brand term occurs within a page.
type Mention struct {
	Term      string   `json:"term"`
	URL       string   `json:"url"`
	Domain    string   `json:"domain"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences"`
}

type sentence struct {
	original string
	lower    string
}

// FindMentions scans content for each term, case-insensitively, and returns
// one Mention per term that occurs at least once. Sentences are split on
// '.', '!' and '?' and kept in document order.
func FindMentions(content, pageURL string, terms []string) []Mention {
	if content == "" || len(terms) == 0 {
		return nil
	}

	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = strings.TrimPrefix(u.Hostname(), "www.")
	}

	lowerContent := strings.ToLower(content)
	sentences := splitSentences(content)

	mentions := make([]Mention, 0, len(terms))
	for _, term := range terms {
		lowerTerm := strings.ToLower(strings.TrimSpace(term))
		if lowerTerm == "" {
			continue
		}
		count := strings.Count(lowerContent, lowerTerm)
		if count == 0 {
			continue
		}

		var matched []string
		for _, s := range sentences {
			if strings.Contains(s.lower, lowerTerm) {
				matched = append(matched, s.original)
			}
		}
		mentions = append(mentions, Mention{
			Term:      term,
			URL:       pageURL,
			Domain:    domain,
			Count:     count,
			Sentences: matched,
		})
	}
	return mentions
}

// Sentences flattens the matched sentences of mentions, dropping duplicates
// and stopping after limit entries (limit <= 0 means no cap).
func Sentences(mentions []Mention, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range mentions {
		for _, s := range m.Sentences {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func splitSentences(text string) []sentence {
	// Roughly one sentence per 50 bytes.
	estimated := len(text)/50 + 1
	out := make([]sentence, 0, estimated)

	appendTrimmed := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, sentence{original: s, lower: strings.ToLower(s)})
		}
	}

	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		for end < len(text) && unicode.IsSpace(rune(text[end])) {
			end++
		}
		appendTrimmed(text[start:end])
		start = end
	}
	if start < len(text) {
		appendTrimmed(text[start:])
	}
	return out
}
