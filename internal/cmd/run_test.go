package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorforge/tailorbatch/pkg/manifest"
	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

func loadedManifest(t *testing.T, yaml string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.LoadFromBytes([]byte(yaml), "batch.yaml")
	require.NoError(t, err)
	return m
}

func TestBatchFromManifest(t *testing.T) {
	m := loadedManifest(t, `version: "1.0"
batch:
  mode: deep
  concurrency: 2
  item_timeout: 90s
  under_threshold: 20s
items:
  - posting_ref: https://jobs.example.com/1
    profile_ref: profiles/p.yaml
  - posting_ref: https://jobs.example.com/2
output:
  format: text
  score: true
`)

	specs, cfg, err := batchFromManifest(m)
	require.NoError(t, err)

	require.Len(t, specs, 2)
	assert.Equal(t, "https://jobs.example.com/1", specs[0].PostingRef)
	assert.Equal(t, "profiles/p.yaml", specs[0].ProfileRef)

	assert.Equal(t, pipeline.ModeDeep, cfg.Mode)
	assert.Equal(t, 2, cfg.ConcurrencyCap)
	assert.Equal(t, 90*time.Second, cfg.ItemTimeout)
	assert.Equal(t, 20*time.Second, cfg.UnderThreshold)
	assert.True(t, cfg.Output.Render)
	assert.Equal(t, pipeline.FormatText, cfg.Output.Format)
	assert.True(t, cfg.Output.Score)
}

func TestBatchFromManifestDefaults(t *testing.T) {
	m := loadedManifest(t, `version: "1.0"
items:
  - posting_ref: https://jobs.example.com/1
`)

	specs, cfg, err := batchFromManifest(m)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	// Manifest defaults leave mode-derived values for submission time.
	assert.Equal(t, pipeline.ModeStandard, cfg.Mode)
	assert.Zero(t, cfg.ConcurrencyCap)
	assert.Zero(t, cfg.ItemTimeout)
	assert.True(t, cfg.Output.Render)
	assert.Equal(t, pipeline.FormatMarkdown, cfg.Output.Format)
	assert.False(t, cfg.Output.Score)
}

func TestExitCodeError(t *testing.T) {
	underlying := errors.New("manifest file not found: x.yaml")
	err := exitError(3, "Invalid manifest", underlying)

	assert.Equal(t, "Invalid manifest: manifest file not found: x.yaml", err.Error())
	assert.ErrorIs(t, err, underlying)

	var exitErr *exitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.code)

	bare := exitError(2, "Bad flag", nil)
	assert.Equal(t, "Bad flag", bare.Error())
}
