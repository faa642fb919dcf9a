package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "8080", c.HTTP.Port)
	require.Equal(t, "effortless", c.BigQuery.Dataset)
	require.Equal(t, 8, c.Engine.Workers)
	require.Equal(t, 5*time.Minute, c.Engine.SnapshotRefresh)
	require.Equal(t, 30*24*time.Hour, c.InsightsWindow())
	require.False(t, c.UseBigQuery())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "effortless.yaml")
	content := `
http:
  port: "9090"
engine:
  workers: 2
bigquery:
  project_id: from-file
prefs:
  cache_ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("EFFORTLESS_BIGQUERY_PROJECT_ID", "from-env")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", c.HTTP.Port)
	require.Equal(t, 2, c.Engine.Workers)
	require.Equal(t, "from-env", c.BigQuery.ProjectID)
	require.Equal(t, time.Minute, c.Prefs.CacheTTL)
	require.True(t, c.UseBigQuery())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Config{Engine: EngineConfig{Workers: 0}, Insights: InsightsConfig{WindowDays: 30}, Data: DataConfig{Dir: "x"}}
	require.ErrorContains(t, c.Validate(), "engine.workers")

	c.Engine.Workers = 1
	require.NoError(t, c.Validate())

	c.Data.Dir = ""
	require.Error(t, c.Validate())
}
