// Package manifest provides loading and validation of tailorbatch batch manifests.
//
// A batch manifest is a YAML or JSON file describing one batch submission:
// the work items, batch processing parameters, and output options.
//
// Manifests are validated against a JSON Schema before execution. The schema
// enforces strict typing and disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	batch:
//	  label: august-applications
//	  mode: standard
//	  concurrency: 3
//	  item_timeout: 30s
//	items:
//	  - posting_ref: https://jobs.example.com/backend-engineer
//	    profile_ref: profiles/primary.yaml
//	output:
//	  render: true
//	  format: markdown
//	  score: true
package manifest

// Manifest represents a validated batch manifest.
//
// Required fields are Version and Items. Batch and Output are optional
// with sensible defaults.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.tailorforge.dev/tailorbatch/v1.0.0/batch-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Batch configures batch processing parameters (optional).
	Batch BatchConfig `json:"batch,omitempty" yaml:"batch,omitempty"`

	// Items is the ordered list of work items. Item order is the result
	// order; it is preserved regardless of completion order.
	Items []ItemConfig `json:"items" yaml:"items"`

	// Output configures the optional render and score steps and the
	// CLI output destination (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// BatchConfig configures batch processing parameters.
//
// All fields are optional; zero values take mode-derived defaults at
// submission time.
type BatchConfig struct {
	// Label is an operator-supplied name for the batch.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Mode is the processing mode: "standard" or "deep".
	// Default: "standard".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Concurrency bounds how many items run simultaneously.
	// Range: 1-16. Default: mode-derived (3 standard, 2 deep).
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// ItemTimeout is the per-item deadline as a duration string,
	// e.g. "30s". Default: mode-derived (30s standard, 60s deep).
	ItemTimeout string `json:"item_timeout,omitempty" yaml:"item_timeout,omitempty"`

	// UnderThreshold is the target duration for the under-threshold
	// metric counter, e.g. "30s". Default: "30s".
	UnderThreshold string `json:"under_threshold,omitempty" yaml:"under_threshold,omitempty"`
}

// ItemConfig describes one work item.
type ItemConfig struct {
	// PostingRef locates the target job posting (required).
	PostingRef string `json:"posting_ref" yaml:"posting_ref"`

	// ProfileRef locates the candidate profile. Optional; opaque to
	// the orchestrator.
	ProfileRef string `json:"profile_ref,omitempty" yaml:"profile_ref,omitempty"`
}

// OutputConfig configures output behavior.
//
// All fields are optional with sensible defaults applied during loading.
type OutputConfig struct {
	// Render enables document rendering. Default: true.
	Render *bool `json:"render,omitempty" yaml:"render,omitempty"`

	// Format is the rendered artifact format: "markdown", "text", or
	// "html". Default: "markdown".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Template names the render template. Optional.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// Score enables match scoring of the tailored text. Default: false.
	Score bool `json:"score,omitempty" yaml:"score,omitempty"`

	// Destination is the JSONL output target for CLI runs.
	// Values: "stdout" or "file:/path/to/output.jsonl"
	// Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Progress enables progress record emission during the run.
	// Default: true.
	Progress *bool `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultMode is the default processing mode.
	DefaultMode = "standard"

	// DefaultFormat is the default artifact format.
	DefaultFormat = "markdown"

	// DefaultDestination is the default CLI output destination.
	DefaultDestination = "stdout"

	// DefaultRender is the default value for document rendering.
	DefaultRender = true

	// DefaultProgress is the default value for progress emission.
	DefaultProgress = true
)

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest so
// callers don't need to reason about empty strings and nil pointers.
func (m *Manifest) ApplyDefaults() {
	if m.Batch.Mode == "" {
		m.Batch.Mode = DefaultMode
	}
	// Concurrency and timeouts stay zero here; the orchestrator derives
	// them from the mode at submission time.

	if m.Output.Format == "" {
		m.Output.Format = DefaultFormat
	}
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
	if m.Output.Render == nil {
		render := DefaultRender
		m.Output.Render = &render
	}
	if m.Output.Progress == nil {
		progress := DefaultProgress
		m.Output.Progress = &progress
	}
}

// RenderEnabled returns whether document rendering is enabled.
func (o *OutputConfig) RenderEnabled() bool {
	if o.Render == nil {
		return DefaultRender
	}
	return *o.Render
}

// ProgressEnabled returns whether progress records should be emitted.
func (o *OutputConfig) ProgressEnabled() bool {
	if o.Progress == nil {
		return DefaultProgress
	}
	return *o.Progress
}
