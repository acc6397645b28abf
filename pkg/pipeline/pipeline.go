// Package pipeline defines the collaborator interfaces the item
// executor drives for one work item: fetch a job posting, produce
// tailored text, optionally render a document artifact, and optionally
// score the text against the posting.
//
// Implementations are selected once at construction and injected into
// the orchestrator. Each call may fail independently; failures are
// caught at the executor boundary and recorded on the item, never
// raised into the scheduler.
package pipeline

import (
	"context"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

// Mode selects how much work the transformer performs per item.
//
// Deep mode is heavier; batch defaults lower the concurrency cap and
// lengthen the per-item deadline when it is selected.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeDeep     Mode = "deep"
)

// Format identifies the rendered artifact format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

// Posting is a fetched job posting.
type Posting struct {
	// Ref is the descriptor the posting was fetched from.
	Ref string

	Title   string
	Company string

	// Body is the posting text used for tailoring and scoring.
	Body string
}

// Fetcher retrieves a job posting by reference.
//
// Implementations must honor context cancellation: when an item's
// deadline expires, the executor's context reaches the fetch in
// flight.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*Posting, error)
}

// Transformer produces tailored resume text for a posting.
type Transformer interface {
	Transform(ctx context.Context, posting *Posting, profileRef string, mode Mode) (string, error)
}

// Renderer produces a document artifact from tailored text.
type Renderer interface {
	Render(ctx context.Context, text string, template string, format Format) ([]byte, error)
}

// Scorer rates tailored text against the posting it targets.
type Scorer interface {
	Score(ctx context.Context, text string, posting *Posting) (*batch.ScoreReport, error)
}

// Collaborators bundles the pipeline implementations for a batch.
// All fields are required; whether the optional render and score steps
// run is decided by the batch output options, not by nil probing.
type Collaborators struct {
	Fetcher     Fetcher
	Transformer Transformer
	Renderer    Renderer
	Scorer      Scorer
}
