package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

// KeywordScorer rates tailored text by keyword coverage against the
// posting body. It is deliberately simple: the orchestration contract
// cares that a score report is produced, not that it is clever.
type KeywordScorer struct {
	// MaxKeywords bounds how many posting keywords are considered.
	// Zero uses a default of 20.
	MaxKeywords int
}

// stopwords are skipped during keyword extraction.
var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "their": {}, "there": {}, "these": {},
	"those": {}, "where": {}, "which": {}, "while": {}, "would": {},
	"should": {}, "other": {}, "every": {}, "through": {}, "between": {},
}

func (s *KeywordScorer) Score(ctx context.Context, text string, posting *Posting) (*batch.ScoreReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxKeywords := s.MaxKeywords
	if maxKeywords <= 0 {
		maxKeywords = 20
	}

	keywords := extractKeywords(posting.Body, maxKeywords)
	if len(keywords) == 0 {
		return &batch.ScoreReport{Overall: 0, KeywordCoverage: 0}, nil
	}

	lower := strings.ToLower(text)
	var hit int
	var missing []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hit++
		} else {
			missing = append(missing, kw)
		}
	}

	coverage := float64(hit) / float64(len(keywords))
	return &batch.ScoreReport{
		Overall:         coverage,
		KeywordCoverage: coverage,
		MissingKeywords: missing,
	}, nil
}

// extractKeywords returns the most frequent candidate words in body,
// most frequent first, capped at max.
func extractKeywords(body string, max int) []string {
	counts := make(map[string]int)
	for _, word := range strings.FieldsFunc(strings.ToLower(body), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) < 5 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}

// Compile-time check that KeywordScorer implements Scorer.
var _ Scorer = (*KeywordScorer)(nil)
