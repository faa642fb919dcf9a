package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EFFORTLESS_HTTP_PORT.
const EnvPrefix = "EFFORTLESS"

// Config holds application configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Data     DataConfig     `mapstructure:"data"`
	Patterns PatternsConfig `mapstructure:"patterns"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Insights InsightsConfig `mapstructure:"insights"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Mailgun  MailgunConfig  `mapstructure:"mailgun"`
	Prefs    PrefsConfig    `mapstructure:"prefs"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// BigQueryConfig holds warehouse settings. An empty project selects the CSV
// dataset instead.
type BigQueryConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
}

// GCSConfig holds object storage settings.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// DataConfig points at a CSV dataset: a local directory or a gs:// prefix.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// PatternsConfig optionally replaces the built-in enrichment tables.
type PatternsConfig struct {
	File string `mapstructure:"file"`
}

// EngineConfig holds batch processing settings.
type EngineConfig struct {
	Workers         int           `mapstructure:"workers"`
	SnapshotRefresh time.Duration `mapstructure:"snapshot_refresh"`
}

// InsightsConfig holds dashboard and summarizer settings.
type InsightsConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	WindowDays int    `mapstructure:"window_days"`
}

// NotionConfig holds Notion sync settings.
type NotionConfig struct {
	Token             string `mapstructure:"token"`
	DatabaseID        string `mapstructure:"database_id"`
	RewardsDatabaseID string `mapstructure:"rewards_database_id"`
}

// MailgunConfig holds notification e-mail settings.
type MailgunConfig struct {
	Domain     string        `mapstructure:"domain"`
	APIKey     string        `mapstructure:"api_key"`
	Sender     string        `mapstructure:"sender"`
	SenderName string        `mapstructure:"sender_name"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PrefsConfig holds user context caching settings.
type PrefsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from an optional file, a .env file and the
// environment, in increasing order of precedence. path may be empty, in
// which case EFFORTLESS_CONFIG or ./effortless.yaml is tried.
func Load(path string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("effortless")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("Load: reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("Load: unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("Load: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("log.level", "info")
	v.SetDefault("bigquery.project_id", "")
	v.SetDefault("bigquery.dataset", "effortless")
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("data.dir", "data/sample")
	v.SetDefault("patterns.file", "")
	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.snapshot_refresh", 5*time.Minute)
	v.SetDefault("insights.model", "gemini-2.5-flash")
	v.SetDefault("insights.api_key", "")
	v.SetDefault("insights.window_days", 30)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.rewards_database_id", "")
	v.SetDefault("mailgun.domain", "")
	v.SetDefault("mailgun.api_key", "")
	v.SetDefault("mailgun.sender", "")
	v.SetDefault("mailgun.sender_name", "Effortless Rewards")
	v.SetDefault("mailgun.timeout", 20*time.Second)
	v.SetDefault("prefs.cache_ttl", 5*time.Minute)
}

// Validate rejects settings the services cannot start with.
func (c Config) Validate() error {
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Insights.WindowDays < 1 {
		return fmt.Errorf("insights.window_days must be at least 1, got %d", c.Insights.WindowDays)
	}
	if c.BigQuery.ProjectID == "" && c.Data.Dir == "" {
		return errors.New("either bigquery.project_id or data.dir must be set")
	}
	return nil
}

// UseBigQuery reports whether the warehouse is the data source.
func (c Config) UseBigQuery() bool {
	return c.BigQuery.ProjectID != ""
}

// InsightsWindow returns the dashboard aggregation window.
func (c Config) InsightsWindow() time.Duration {
	return time.Duration(c.Insights.WindowDays) * 24 * time.Hour
}
