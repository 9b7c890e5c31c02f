// Package config loads server settings from a .env file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables.
const (
	EnvDB          = "MEDSTOCK_DB"
	EnvAddr        = "MEDSTOCK_ADDR"
	EnvAdminUser   = "MEDSTOCK_ADMIN_USER"
	EnvLog         = "MEDSTOCK_LOG"
	EnvJWTSecret   = "MEDSTOCK_JWT_SECRET"
	EnvCORSOrigins = "MEDSTOCK_CORS_ORIGINS"
)

// Defaults.
const (
	DefaultDB        = "medstock.sqlite3"
	DefaultAddr      = ":8080"
	DefaultAdminUser = "admin"
)

// Config holds the server settings.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string
	JWTSecret string
	// CORSOrigins lists allowed browser origins. Empty disables CORS.
	CORSOrigins []string
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then builds a Config from the
// environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv), nil
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) Config {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	return Config{
		DBPath:      get(EnvDB, DefaultDB),
		Addr:        get(EnvAddr, DefaultAddr),
		AdminUser:   get(EnvAdminUser, DefaultAdminUser),
		LogPath:     get(EnvLog, ""),
		JWTSecret:   get(EnvJWTSecret, ""),
		CORSOrigins: splitList(getenv(EnvCORSOrigins)),
	}
}

// RegisterFlags binds the short and long flag of each setting to c, using
// the current values as defaults so that flags override the environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db", c.DBPath, "")
	fs.StringVar(&c.DBPath, "d", c.DBPath, "")

	fs.StringVar(&c.Addr, "addr", c.Addr, "")
	fs.StringVar(&c.Addr, "a", c.Addr, "")

	fs.StringVar(&c.AdminUser, "user", c.AdminUser, "")
	fs.StringVar(&c.AdminUser, "u", c.AdminUser, "")

	fs.StringVar(&c.LogPath, "log", c.LogPath, "")
	fs.StringVar(&c.LogPath, "l", c.LogPath, "")
}

// Validate checks settings that have no sensible fallback.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	if c.AdminUser == "" {
		return errors.New("admin username is required")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("%s must be at least 32 characters", EnvJWTSecret)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
