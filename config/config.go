/*
config.go - Process configuration and root logger

PURPOSE:
  Loads settings from the environment (optionally seeded from a .env file)
  and builds the root zerolog logger every other package derives from.

ENVIRONMENT (prefix LEDGER_):
  DATA_DIR           directory holding one SQLite file per tenant (./data)
  PORT               HTTP port (8080)
  LOG_LEVEL          zerolog level name (info); unknown names fail Load
  LOG_FILE           append logs to this file instead of stdout
  CHART_FILE         YAML chart used to seed new tenants (embedded default)
  DEFAULT_TENANT     tenant used when a request has no X-Tenant-ID (default)
  CORS_ORIGINS       comma-separated allowed origins
  RETRY_MAX_ELAPSED  budget for retrying an entry-number collision (5s)
  READ_TIMEOUT       HTTP read timeout (15s)
  WRITE_TIMEOUT      HTTP write timeout (15s)

SEE ALSO:
  - cmd/server/main.go: flag overrides
  - tenant/tenant.go: consumes DataDir, ChartFile, RetryMaxElapsed
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

const envPrefix = "LEDGER"

// LogLevels are the accepted LOG_LEVEL values.
const LogLevels = "trace debug info warn error fatal panic disabled"

type Config struct {
	DataDir         string        `envconfig:"DATA_DIR" default:"./data" validate:"required"`
	Port            int           `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogFile         string        `envconfig:"LOG_FILE"`
	ChartFile       string        `envconfig:"CHART_FILE"`
	DefaultTenant   string        `envconfig:"DEFAULT_TENANT" default:"default" validate:"required,max=64"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
	RetryMaxElapsed time.Duration `envconfig:"RETRY_MAX_ELAPSED" default:"5s" validate:"gt=0"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s" validate:"gt=0"`
}

// Load reads envFile (if it exists) into the environment, then processes
// LEDGER_* variables. Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	c := &Config{}
	if err := envconfig.Process(envPrefix, c); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	for i, o := range c.CORSOrigins {
		c.CORSOrigins[i] = strings.TrimSpace(o)
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid %s_* configuration: %w", envPrefix, err)
	}
	return c, nil
}

// NewLogger builds the root logger. With a file path, logs are appended to
// that file (a dated name is used when the path has no extension) and the
// returned closer releases it.
func NewLogger(level, file string) (zerolog.Logger, io.Closer, error) {
	lvl := zerolog.InfoLevel
	if level = strings.ToLower(strings.TrimSpace(level)); level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q (want one of %s): %w", level, LogLevels, err)
		}
		lvl = parsed
	}

	var target io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if file != "" {
		path := file
		if filepath.Ext(file) == "" {
			path = file + time.Now().Format("-2006-01-02") + ".log"
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o664)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		target, closer = f, f
	}

	return zerolog.New(target).Level(lvl).With().Timestamp().Logger(), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
