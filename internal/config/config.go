// Package config loads settings from defaults, an optional config file and
// CRUDKIT_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"crudkit/internal/importer"
	"crudkit/internal/infrastructure/source"
)

// EnvPrefix prefixes every environment variable: database.url -> CRUDKIT_DATABASE_URL.
const EnvPrefix = "CRUDKIT"

const (
	SettingDatabaseURL      = "database.url"
	SettingDatabaseMaxConns = "database.max_conns"
	SettingDatabaseMinConns = "database.min_conns"

	SettingHTTPPort            = "http.port"
	SettingHTTPShutdownTimeout = "http.shutdown_timeout"

	SettingLogLevel       = "log.level"
	SettingLogDevelopment = "log.development"

	SettingImportDelimiter      = "import.delimiter"
	SettingImportMaxUploadBytes = "import.max_upload_bytes"

	SettingS3Endpoint  = "s3.endpoint"
	SettingS3AccessKey = "s3.access_key"
	SettingS3SecretKey = "s3.secret_key"
	SettingS3UseSSL    = "s3.use_ssl"
)

// Default is one default value.
type Default struct {
	Key   string
	Value any
}

var defaults = []Default{
	{Key: SettingDatabaseMaxConns, Value: 10},
	{Key: SettingDatabaseMinConns, Value: 1},
	{Key: SettingHTTPPort, Value: 8080},
	{Key: SettingHTTPShutdownTimeout, Value: "30s"},
	{Key: SettingLogLevel, Value: "info"},
	{Key: SettingLogDevelopment, Value: false},
	{Key: SettingImportDelimiter, Value: ","},
	{Key: SettingImportMaxUploadBytes, Value: 32 << 20},
	{Key: SettingS3UseSSL, Value: true},
}

// Config is the typed view of all settings.
type Config struct {
	Database Database
	HTTP     HTTP
	Log      Log
	Import   Import
	S3       source.S3Config
}

type Database struct {
	URL      string
	MaxConns int32
	MinConns int32
}

type HTTP struct {
	Port            int
	ShutdownTimeout time.Duration
}

type Log struct {
	Level       string
	Development bool
}

type Import struct {
	Delimiter      rune
	MaxUploadBytes int64
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	for _, d := range defaults {
		v.SetDefault(d.Key, d.Value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (yaml, json or toml; empty skips the file) and returns the typed config.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper converts and validates settings.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Database: Database{
			URL:      v.GetString(SettingDatabaseURL),
			MaxConns: v.GetInt32(SettingDatabaseMaxConns),
			MinConns: v.GetInt32(SettingDatabaseMinConns),
		},
		HTTP: HTTP{
			Port:            v.GetInt(SettingHTTPPort),
			ShutdownTimeout: v.GetDuration(SettingHTTPShutdownTimeout),
		},
		Log: Log{
			Level:       v.GetString(SettingLogLevel),
			Development: v.GetBool(SettingLogDevelopment),
		},
		Import: Import{
			MaxUploadBytes: v.GetInt64(SettingImportMaxUploadBytes),
		},
		S3: source.S3Config{
			Endpoint:  v.GetString(SettingS3Endpoint),
			AccessKey: v.GetString(SettingS3AccessKey),
			SecretKey: v.GetString(SettingS3SecretKey),
			UseSSL:    v.GetBool(SettingS3UseSSL),
		},
	}

	delim, err := importer.ParseDelimiter(v.GetString(SettingImportDelimiter))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SettingImportDelimiter, err)
	}
	cfg.Import.Delimiter = delim

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return nil, fmt.Errorf("%s: invalid port %d", SettingHTTPPort, cfg.HTTP.Port)
	}
	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return nil, fmt.Errorf("%s must not exceed %s", SettingDatabaseMinConns, SettingDatabaseMaxConns)
	}
	return cfg, nil
}

// RequireDatabase fails when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("%s is required (env %s_DATABASE_URL)", SettingDatabaseURL, EnvPrefix)
	}
	return nil
}
