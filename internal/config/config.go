// Package config loads server settings from the environment.
//
// SOURCES, HIGHEST PRIORITY FIRST:
//  1. Command-line flags the user actually passed (--port, --db-path, ...)
//  2. Environment variables (PORT, DB_PATH, ...)
//  3. A .env file in the working directory, if present
//  4. Defaults below
//
// The .env file only fills variables that are not already set, so a real
// environment always wins over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	FormatText = "text"
	FormatJSON = "json"

	minSecretLength = 16
	minBcryptCost   = 4
	maxBcryptCost   = 14
)

// Config holds every setting the server and CLI read.
type Config struct {
	Port int

	DBDriver    string // "sqlite" or "postgres"
	DBPath      string // sqlite file
	DatabaseURL string // postgres DSN

	JWTSecret     string
	TokenTTL      time.Duration
	CursorSecret  string
	SessionSecret string
	BcryptCost    int
	CookieSecure  bool

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	LogLevel  string
	LogFormat string

	SeedOnStart bool
}

// flagKeys maps cobra flag names to config keys.
var flagKeys = map[string]string{
	"port":      "port",
	"db-driver": "db_driver",
	"db-path":   "db_path",
}

// Load reads the configuration. envFile names the dotenv file to read
// ("" means ".env"); a missing file is not an error. flags may be nil.
//
// Load does not validate; call Validate before using the result.
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
	}

	v := viper.New()
	v.AutomaticEnv() // key "db_path" reads env DB_PATH

	v.SetDefault("port", 8080)
	v.SetDefault("db_driver", DriverSQLite)
	v.SetDefault("db_path", "data/minitwit.db")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("cursor_secret", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("bcrypt_cost", 12)
	v.SetDefault("cookie_secure", false)
	v.SetDefault("github_client_id", "")
	v.SetDefault("github_client_secret", "")
	v.SetDefault("github_callback_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", FormatText)
	v.SetDefault("seed_on_start", false)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: binding flag --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Port:               v.GetInt("port"),
		DBDriver:           strings.ToLower(strings.TrimSpace(v.GetString("db_driver"))),
		DBPath:             v.GetString("db_path"),
		DatabaseURL:        v.GetString("database_url"),
		JWTSecret:          v.GetString("jwt_secret"),
		TokenTTL:           v.GetDuration("token_ttl"),
		CursorSecret:       v.GetString("cursor_secret"),
		SessionSecret:      v.GetString("session_secret"),
		BcryptCost:         v.GetInt("bcrypt_cost"),
		CookieSecure:       v.GetBool("cookie_secure"),
		GitHubClientID:     v.GetString("github_client_id"),
		GitHubClientSecret: v.GetString("github_client_secret"),
		GitHubCallbackURL:  v.GetString("github_callback_url"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          strings.ToLower(v.GetString("log_format")),
		SeedOnStart:        v.GetBool("seed_on_start"),
	}

	// Cursor and session keys fall back to the JWT secret so a single
	// variable is enough for local development.
	if cfg.CursorSecret == "" {
		cfg.CursorSecret = cfg.JWTSecret
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = cfg.JWTSecret
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return cfg, nil
}

// Validate reports the first setting that would stop the server from
// working.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("config: DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}

	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("config: JWT_SECRET must be at least %d characters (try: openssl rand -hex 32)", minSecretLength)
	}
	if len(c.CursorSecret) < minSecretLength {
		return fmt.Errorf("config: CURSOR_SECRET must be at least %d characters", minSecretLength)
	}
	if len(c.SessionSecret) < minSecretLength {
		return fmt.Errorf("config: SESSION_SECRET must be at least %d characters", minSecretLength)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		return fmt.Errorf("config: BCRYPT_COST must be between %d and %d, got %d", minBcryptCost, maxBcryptCost, c.BcryptCost)
	}

	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return errors.New("config: GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.LogFormat != FormatText && c.LogFormat != FormatJSON {
		return fmt.Errorf("config: LOG_FORMAT must be %q or %q, got %q", FormatText, FormatJSON, c.LogFormat)
	}

	return nil
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}
