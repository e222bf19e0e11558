// Package config loads SawitDB's runtime settings from the process
// environment, optionally seeded from a ".env" file.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	envPath        = "SAWITDB_PATH"
	envCachePages  = "SAWITDB_CACHE_PAGES"
	envRecordCache = "SAWITDB_RECORD_CACHE_ENTRIES"
	envLogLevel    = "SAWITDB_LOG_LEVEL"

	defaultCachePages  = 1000
	defaultRecordCache = 4096
)

// Config holds the settings an Engine needs to open a database file.
type Config struct {
	Path               string
	CachePages         int
	RecordCacheEntries int64
	LogLevel           logrus.Level
}

// Load reads a ".env" file if present (missing is not an error) and
// then the process environment, falling back to defaults for anything
// unset. SAWITDB_PATH has no default; callers must supply one either
// way in the environment or via an explicit override.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}

	cfg := Config{
		Path:               os.Getenv(envPath),
		CachePages:         defaultCachePages,
		RecordCacheEntries: defaultRecordCache,
		LogLevel:           logrus.InfoLevel,
	}
	if path != "" {
		cfg.Path = path
	}

	if v := os.Getenv(envCachePages); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CachePages = n
		}
	}
	if v := os.Getenv(envRecordCache); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.RecordCacheEntries = n
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		if lvl, err := logrus.ParseLevel(v); err == nil {
			cfg.LogLevel = lvl
		}
	}

	return cfg, nil
}
