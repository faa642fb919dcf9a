package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/effortless/internal/config"
	"github.com/dvloznov/effortless/internal/dispatch"
	"github.com/dvloznov/effortless/internal/insights"
)

func csvConfig() config.Config {
	return config.Config{
		Data:     config.DataConfig{Dir: filepath.Join("..", "..", "data", "sample")},
		Engine:   config.EngineConfig{Workers: 2},
		Insights: config.InsightsConfig{WindowDays: 30},
		Prefs:    config.PrefsConfig{CacheTTL: time.Minute},
	}
}

func TestNew_CSVDataset(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, csvConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, SourceCSV, a.DataSource)
	require.NotNil(t, a.Dataset)
	assert.Nil(t, a.Objects)
	assert.Equal(t, 7, a.Catalog.Current().Len())
	assert.IsType(t, &dispatch.LogDispatcher{}, a.Dispatcher)
	assert.IsType(t, insights.StaticSummarizer{}, a.Summarizer(ctx))

	report, err := a.Enricher.EnrichUser(ctx, "u-1001", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "u-1001", report.UserID)
	assert.Equal(t, 10, report.Processed)
	assert.Equal(t, a.Catalog.Current().Version(), report.CatalogVersion)
}

func TestNew_MissingDataDir(t *testing.T) {
	cfg := csvConfig()
	cfg.Data.Dir = filepath.Join(t.TempDir(), "absent")

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNew_BadPatternsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("merchants: [unterminated"), 0o644))

	cfg := csvConfig()
	cfg.Patterns.File = path

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestWatchCatalog_DisabledReturns(t *testing.T) {
	a, err := New(context.Background(), csvConfig())
	require.NoError(t, err)
	defer a.Close()

	done := make(chan struct{})
	go func() {
		a.WatchCatalog(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchCatalog blocked with refresh disabled")
	}
}
