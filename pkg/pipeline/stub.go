package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

// Stub collaborators back the one-shot CLI in local mode and the
// orchestrator tests. They support latency and failure injection so
// the timeout and isolation paths can be exercised deterministically.

// sleepCtx waits for d or until ctx is done, whichever comes first.
// Stubs must remain cancellable so item deadlines propagate through
// them exactly as they would through a real network call.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StubFetcher serves postings from memory.
type StubFetcher struct {
	// Delay is imposed before each fetch.
	Delay time.Duration

	// Postings maps refs to canned postings. Refs not present yield a
	// synthesized posting so local runs need no fixtures.
	Postings map[string]*Posting

	// Fail maps refs to injected errors.
	Fail map[string]error

	// DelayFor overrides Delay per ref.
	DelayFor map[string]time.Duration
}

func (f *StubFetcher) Fetch(ctx context.Context, ref string) (*Posting, error) {
	delay := f.Delay
	if d, ok := f.DelayFor[ref]; ok {
		delay = d
	}
	if err := sleepCtx(ctx, delay); err != nil {
		return nil, err
	}
	if err, ok := f.Fail[ref]; ok {
		return nil, err
	}
	if p, ok := f.Postings[ref]; ok {
		return p, nil
	}
	return &Posting{
		Ref:   ref,
		Title: "Software Engineer",
		Body:  "We are looking for an engineer experienced with distributed systems, golang, kubernetes, and observability tooling.",
	}, nil
}

// StubTransformer fills a fixed resume skeleton with posting facts.
type StubTransformer struct {
	Delay time.Duration
}

func (t *StubTransformer) Transform(ctx context.Context, posting *Posting, profileRef string, mode Mode) (string, error) {
	if err := sleepCtx(ctx, t.Delay); err != nil {
		return "", err
	}

	title := posting.Title
	if title == "" {
		title = "the advertised role"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Tailored Resume\n\n")
	fmt.Fprintf(&b, "## Target\n%s\n\n", title)
	if profileRef != "" {
		fmt.Fprintf(&b, "## Profile\n%s\n\n", profileRef)
	}
	b.WriteString("## Highlights\n")
	for i, kw := range extractKeywords(posting.Body, 8) {
		fmt.Fprintf(&b, "- Delivered results with %s\n", kw)
		if mode != ModeDeep && i >= 4 {
			break
		}
	}
	return b.String(), nil
}

// StubScorer returns a fixed report, optionally failing.
type StubScorer struct {
	Report *batch.ScoreReport
	Err    error
}

func (s *StubScorer) Score(ctx context.Context, text string, posting *Posting) (*batch.ScoreReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Report != nil {
		return s.Report, nil
	}
	return &batch.ScoreReport{Overall: 1, KeywordCoverage: 1}, nil
}

var (
	_ Fetcher     = (*StubFetcher)(nil)
	_ Transformer = (*StubTransformer)(nil)
	_ Scorer      = (*StubScorer)(nil)
)
