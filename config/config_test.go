package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesPipelineDefaults(t *testing.T) {
	t.Setenv("PRICE_SERVICE_DATABASE_URL", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, "postgres", cfg.Pipeline.Dialect)
}

func TestLoadPipelineConcurrencyFromEnv(t *testing.T) {
	t.Setenv("PIPELINE_CONCURRENCY", "16")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Pipeline.Concurrency)
}
