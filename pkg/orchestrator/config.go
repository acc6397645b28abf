package orchestrator

import (
	"fmt"
	"time"

	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

// Default batch parameters. Deep mode is heavier per item, so it gets
// a lower concurrency cap and a longer per-item deadline.
const (
	DefaultConcurrency     = 3
	DefaultDeepConcurrency = 2

	DefaultItemTimeout     = 30 * time.Second
	DefaultDeepItemTimeout = 60 * time.Second

	// DefaultUnderThreshold is the target duration for the
	// under-threshold metric counter.
	DefaultUnderThreshold = 30 * time.Second

	// MaxConcurrency caps operator-supplied concurrency so one batch
	// cannot monopolize collaborator capacity.
	MaxConcurrency = 16
)

// OutputOptions controls the optional render and score pipeline steps.
type OutputOptions struct {
	// Render enables document rendering. When false, the raw tailored
	// markdown text is stored as the artifact.
	Render bool

	// Format is the rendered artifact format. Defaults to markdown.
	Format pipeline.Format

	// Template names the render template. Opaque to the orchestrator.
	Template string

	// Score enables match scoring of the tailored text.
	Score bool
}

// Config carries the per-batch processing parameters.
//
// Zero values are filled from mode-derived defaults; callers only set
// what they want to override.
type Config struct {
	// Mode selects the processing mode. Defaults to standard.
	Mode pipeline.Mode

	// ConcurrencyCap bounds how many items run simultaneously.
	ConcurrencyCap int

	// ItemTimeout is the per-item deadline. Exceeding it is a terminal
	// outcome for the item, not a retryable condition.
	ItemTimeout time.Duration

	// UnderThreshold is the target duration for the under-threshold
	// metric counter.
	UnderThreshold time.Duration

	Output OutputOptions
}

// withDefaults returns cfg with zero values replaced by mode-derived
// defaults and bounds applied.
func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = pipeline.ModeStandard
	}

	if c.ConcurrencyCap <= 0 {
		if c.Mode == pipeline.ModeDeep {
			c.ConcurrencyCap = DefaultDeepConcurrency
		} else {
			c.ConcurrencyCap = DefaultConcurrency
		}
	}
	if c.ConcurrencyCap > MaxConcurrency {
		c.ConcurrencyCap = MaxConcurrency
	}

	if c.ItemTimeout <= 0 {
		if c.Mode == pipeline.ModeDeep {
			c.ItemTimeout = DefaultDeepItemTimeout
		} else {
			c.ItemTimeout = DefaultItemTimeout
		}
	}

	if c.UnderThreshold <= 0 {
		c.UnderThreshold = DefaultUnderThreshold
	}

	if c.Output.Format == "" {
		c.Output.Format = pipeline.FormatMarkdown
	}

	return c
}

// Validate rejects values defaults cannot repair.
func (c Config) Validate() error {
	switch c.Mode {
	case "", pipeline.ModeStandard, pipeline.ModeDeep:
	default:
		return fmt.Errorf("unknown processing mode: %s", c.Mode)
	}

	switch c.Output.Format {
	case "", pipeline.FormatMarkdown, pipeline.FormatText, pipeline.FormatHTML:
	default:
		return fmt.Errorf("unknown output format: %s", c.Output.Format)
	}

	return nil
}
