package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordScorerFullCoverage(t *testing.T) {
	posting := &Posting{Body: "kubernetes kubernetes golang golang observability"}
	text := "Experience with kubernetes, golang, and observability tooling."

	s := &KeywordScorer{}
	report, err := s.Score(context.Background(), text, posting)
	require.NoError(t, err)

	assert.Equal(t, 1.0, report.Overall)
	assert.Equal(t, 1.0, report.KeywordCoverage)
	assert.Empty(t, report.MissingKeywords)
}

func TestKeywordScorerPartialCoverage(t *testing.T) {
	posting := &Posting{Body: "kubernetes terraform grafana prometheus"}
	text := "Shipped services on kubernetes with prometheus alerting."

	s := &KeywordScorer{}
	report, err := s.Score(context.Background(), text, posting)
	require.NoError(t, err)

	assert.Equal(t, 0.5, report.KeywordCoverage)
	assert.ElementsMatch(t, []string{"terraform", "grafana"}, report.MissingKeywords)
}

func TestKeywordScorerEmptyPosting(t *testing.T) {
	s := &KeywordScorer{}
	report, err := s.Score(context.Background(), "anything", &Posting{Body: ""})
	require.NoError(t, err)
	assert.Zero(t, report.Overall)
	assert.Zero(t, report.KeywordCoverage)
}

func TestKeywordScorerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &KeywordScorer{}
	_, err := s.Score(ctx, "text", &Posting{Body: "kubernetes"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractKeywords(t *testing.T) {
	body := "Golang golang GOLANG kubernetes kubernetes grafana api db it"
	got := extractKeywords(body, 10)

	// Short words are dropped; frequency orders the rest.
	require.Equal(t, []string{"golang", "kubernetes", "grafana"}, got)
}

func TestExtractKeywordsSkipsStopwords(t *testing.T) {
	got := extractKeywords("which would should through kubernetes", 10)
	assert.Equal(t, []string{"kubernetes"}, got)
}

func TestExtractKeywordsCapped(t *testing.T) {
	var b strings.Builder
	words := []string{"alpha1", "bravo2", "charlie", "deltas", "echoes"}
	for i, w := range words {
		// Distinct frequencies keep the order deterministic.
		for j := 0; j <= len(words)-i; j++ {
			b.WriteString(w + " ")
		}
	}
	got := extractKeywords(b.String(), 3)
	assert.Equal(t, []string{"alpha1", "bravo2", "charlie"}, got)
}
