// Package config loads runtime settings from flags, CATALOG_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "CATALOG"
	configFileEnvName = "CATALOG_CONFIG"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	LogLevel      string        `mapstructure:"log_level"`
	Store         string        `mapstructure:"store"`
	DatabaseURL   string        `mapstructure:"database_url"`
	CacheCapacity int           `mapstructure:"cache_capacity"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`

	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	SessionSecret    string        `mapstructure:"session_secret"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
	LoginWindow      time.Duration `mapstructure:"login_window"`

	OpsAddr      string `mapstructure:"ops_addr"`
	MetricsToken string `mapstructure:"metrics_token"`
}

var defaults = map[string]any{
	"log_level":          "info",
	"store":              StoreMemory,
	"database_url":       "",
	"cache_capacity":     100,
	"query_timeout":      3 * time.Second,
	"session_ttl":        8 * time.Hour,
	"session_secret":     "",
	"login_max_attempts": 5,
	"login_window":       time.Minute,
	"ops_addr":           ":8082",
	"metrics_token":      "",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (env "+configFileEnvName+")")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("store", StoreMemory, "product/user/audit storage: memory or postgres")
	fs.String("database-url", "", "PostgreSQL connection string")
	fs.Int("cache-capacity", 100, "maximum number of cached products")
	fs.String("ops-addr", ":8082", "address of the health/metrics server, empty to disable")
}

// Load resolves the configuration. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return Config{}, err
		}
	}

	if path := configFilePath(fs); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, known := defaults[key]; !known {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func configFilePath(fs *pflag.FlagSet) string {
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			return f.Value.String()
		}
	}
	return os.Getenv(configFileEnvName)
}

func (c Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.CacheCapacity <= 0 {
		errs = append(errs, fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity))
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("query_timeout must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}

	return errors.Join(errs...)
}
