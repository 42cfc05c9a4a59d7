// Package config loads the engine's runtime configuration: database
// connection, dialect, REST pagination bounds, fetch and timeout
// defaults, and metadata pre-warm behavior. Environment variables
// override an optional YAML file, which overrides built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queryreg/engine/internal/dialect"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	HTTPAddr string `yaml:"httpAddr"`

	DatabaseDialect dialect.Name `yaml:"databaseDialect"`
	DatabaseDSN     string       `yaml:"databaseDSN"`

	RESTDefaultPageSize int `yaml:"restDefaultPageSize"`
	RESTMaxPageSize     int `yaml:"restMaxPageSize"`

	JDBCFetchSize    int           `yaml:"jdbcFetchSize"`
	JDBCQueryTimeout time.Duration `yaml:"jdbcQueryTimeout"`

	MetadataCachePrewarm       bool `yaml:"metadataCachePrewarm"`
	MetadataCacheFailOnStartup bool `yaml:"metadataCacheFailOnStartup"`

	Dev bool `yaml:"dev"`
}

// Default returns the built-in configuration before any env or file
// overlay is applied.
func Default() Config {
	return Config{
		HTTPAddr:            ":8080",
		DatabaseDialect:     dialect.Postgres,
		RESTDefaultPageSize: 50,
		RESTMaxPageSize:     500,
		JDBCFetchSize:       100,
		JDBCQueryTimeout:    30 * time.Second,
		MetadataCachePrewarm:       true,
		MetadataCacheFailOnStartup: false,
	}
}

// Load resolves configuration from, in increasing precedence: built-in
// defaults, an optional YAML file at yamlPath (skipped entirely if the
// path is empty or the file does not exist), then environment variables.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: reading %s: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QRE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("QRE_DB_DIALECT"); v != "" {
		cfg.DatabaseDialect = dialect.Name(v)
	}
	if v := os.Getenv("QRE_DB_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := envInt("QRE_REST_DEFAULT_PAGE_SIZE"); v != nil {
		cfg.RESTDefaultPageSize = *v
	}
	if v := envInt("QRE_REST_MAX_PAGE_SIZE"); v != nil {
		cfg.RESTMaxPageSize = *v
	}
	if v := envInt("QRE_JDBC_FETCH_SIZE"); v != nil {
		cfg.JDBCFetchSize = *v
	}
	if v := os.Getenv("QRE_JDBC_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JDBCQueryTimeout = d
		}
	}
	if v := envBool("QRE_METADATA_CACHE_PREWARM"); v != nil {
		cfg.MetadataCachePrewarm = *v
	}
	if v := envBool("QRE_METADATA_CACHE_FAIL_ON_STARTUP"); v != nil {
		cfg.MetadataCacheFailOnStartup = *v
	}
	if v := envBool("QRE_DEV"); v != nil {
		cfg.Dev = *v
	}
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func envBool(key string) *bool {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
