package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramkit/engram-go/engine"
)

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_similarity: 0.7\nmax_records_per_scope: 50\n"), 0o644))

	cfg, err := engine.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.MinSimilarity)
	assert.Equal(t, 50, cfg.MaxRecordsPerScope)
	assert.Equal(t, engine.DefaultConfig().DefaultQueryLimit, cfg.DefaultQueryLimit)
	assert.Equal(t, engine.DefaultConfig().IndexOnCreate, cfg.IndexOnCreate)
}

func TestDefaultConfig_ReturnsFreshCopies(t *testing.T) {
	first := engine.DefaultConfig()
	first.MinSimilarity = 0.99
	first.MaxRecordsPerScope = 1

	second := engine.DefaultConfig()
	assert.Equal(t, 0.5, second.MinSimilarity)
	assert.Equal(t, 1000, second.MaxRecordsPerScope)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := engine.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_similarity: [not a number\n"), 0o644))

	_, err := engine.LoadConfig(path)
	assert.Error(t, err)
}
