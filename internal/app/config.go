package app

import (
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the engine.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"development"`
	DataDir string `envconfig:"CB_DATA_DIR" default:"./data"`

	DBFile        string `envconfig:"CB_DB_FILE" default:"counterbook.db"`
	FallbackDir   string `envconfig:"CB_FALLBACK_DIR" default:"fallback"`
	ForceFallback bool   `envconfig:"CB_FORCE_FALLBACK" default:"false"`

	LogFormat   string `envconfig:"LOG_FORMAT" default:"pretty"`
	MetricsAddr string `envconfig:"CB_METRICS_ADDR" default:""`

	DedupWindow     time.Duration `envconfig:"CB_DEDUP_WINDOW" default:"3s"`
	EventBufferLen  int           `envconfig:"CB_EVENT_BUFFER" default:"64"`
	LowStockDefault int           `envconfig:"CB_LOW_STOCK_DEFAULT" default:"10"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DBPath returns the absolute location of the relational store file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// FallbackPath returns the directory used by the fallback key-value store.
func (c *Config) FallbackPath() string {
	return filepath.Join(c.DataDir, c.FallbackDir)
}

// IsProduction returns true when the engine runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
