// Package config loads application configuration from config.yaml and the
// DILIGENCE_* environment, and initializes the global zap logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Resolve ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Infer   InferConfig   `yaml:"infer" mapstructure:"infer"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ResolveConfig tunes the reconciliation kernel.
type ResolveConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// InferConfig configures entity inference.
type InferConfig struct {
	DefaultEntity string `yaml:"default_entity" mapstructure:"default_entity"`
	IndicatorFile string `yaml:"indicator_file" mapstructure:"indicator_file"`
}

// IngestConfig configures the candidate-fact ingest runner.
type IngestConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the intake API server.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DILIGENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "diligence.db")
	v.SetDefault("resolve.similarity_threshold", 0.85)
	v.SetDefault("resolve.breaker_threshold", 500)
	v.SetDefault("infer.default_entity", "target")
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration needed for the given run mode
// ("ingest", "serve", or "store"). Errors list every missing or out-of-range
// setting at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkKernel := func() {
		if c.Resolve.SimilarityThreshold <= 0 || c.Resolve.SimilarityThreshold > 1 {
			problems = append(problems, "resolve.similarity_threshold must be in (0, 1]")
		}
		if c.Resolve.BreakerThreshold < 1 {
			problems = append(problems, "resolve.breaker_threshold must be >= 1")
		}
		if _, err := parseDefaultEntity(c.Infer.DefaultEntity); err != nil {
			problems = append(problems, "infer.default_entity must be target or buyer")
		}
	}

	switch mode {
	case "ingest":
		checkKernel()
		if c.Ingest.Workers < 1 || c.Ingest.Workers > 64 {
			problems = append(problems, "ingest.workers must be between 1 and 64")
		}
	case "serve":
		checkKernel()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RateLimit <= 0 {
			problems = append(problems, "server.rate_limit must be > 0")
		}
	case "store":
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func parseDefaultEntity(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "target", "buyer":
		return strings.ToLower(strings.TrimSpace(s)), nil
	default:
		return "", eris.Errorf("config: invalid default entity %q", s)
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
