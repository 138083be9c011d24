package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/FranksOps/brandwatch/internal/analyzer"
)

var positiveWords = wordSet(`
	amazing awesome best better brilliant delight delighted easy effective
	excellent fantastic fast favorite favourite fine good great happy helpful
	impressive improved incredible innovative love loved loves nice perfect
	pleased powerful praise recommend recommended reliable robust satisfied
	secure seamless smooth solid success successful superb thanks win wins
	wonderful worth`)

var negativeWords = wordSet(`
	angry annoying awful bad broken bug buggy complaint complain complained
	confusing crash crashed crashes disappointed disappointing down expensive
	fail failed failing fails failure frustrating hate hated horrible issue
	issues lawsuit leak outage overpriced poor problem problems refund scam
	slow terrible unreliable useless vulnerable vulnerability waste worse worst`)

var negators = wordSet(`not no never neither nor cannot can't don't doesn't isn't wasn't won't`)

func wordSet(list string) map[string]struct{} {
	fields := strings.Fields(list)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Lexicon scores text offline by counting polarity words in sentences that
// mention the brand. A negator directly before a word flips it.
type Lexicon struct {
	// MaxMentions caps the quoted sentences per polarity (0 = 5).
	MaxMentions int
}

var _ Analyzer = Lexicon{}

func (Lexicon) Name() string { return "lexicon" }

func (l Lexicon) Analyze(_ context.Context, brand, text string) (Score, error) {
	limit := l.MaxMentions
	if limit <= 0 {
		limit = 5
	}

	var sentences []string
	for _, line := range lines(text) {
		sentences = append(sentences, analyzer.Sentences(analyzer.FindMentions(line, "", []string{brand}), 0)...)
	}
	if len(sentences) == 0 {
		sentences = lines(text)
	}

	var pos, neg int
	var s Score
	for _, sentence := range sentences {
		p, n := polarity(sentence)
		pos += p
		neg += n
		switch {
		case p > n && len(s.PositiveMentions) < limit:
			s.PositiveMentions = append(s.PositiveMentions, sentence)
		case n > p && len(s.NegativeMentions) < limit:
			s.NegativeMentions = append(s.NegativeMentions, sentence)
		}
	}

	hits := pos + neg
	if hits > 0 {
		s.Score = float64(pos-neg) / float64(hits)
	}
	s.Label = labelFor(s.Score, pos > 0 && neg > 0)
	s.Confidence = math.Round(float64(hits)/float64(hits+5)*100) / 100
	s.Source = "lexicon"
	s.Explanation = fmt.Sprintf("%d positive and %d negative terms across %d sentences", pos, neg, len(sentences))
	return s, nil
}

func polarity(sentence string) (pos, neg int) {
	words := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for i, w := range words {
		sign := 0
		if _, ok := positiveWords[w]; ok {
			sign = 1
		} else if _, ok := negativeWords[w]; ok {
			sign = -1
		}
		if sign == 0 {
			continue
		}
		if i > 0 {
			if _, ok := negators[words[i-1]]; ok {
				sign = -sign
			}
		}
		if sign > 0 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

func labelFor(score float64, bothPresent bool) Label {
	switch {
	case score > 0.2:
		return Positive
	case score < -0.2:
		return Negative
	case bothPresent:
		return Mixed
	default:
		return Neutral
	}
}

func lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "- "))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
