package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the splitpal configuration, loaded from config.toml.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Auth    AuthConfig    `toml:"auth"`
	Display DisplayConfig `toml:"display"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
	Timeout string `toml:"timeout"` // per-request timeout, Go duration
}

// StorageConfig controls where the SQLite database lives.
// An empty Dir means the splitpal home directory.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// AuthConfig controls session tokens and federated sign-in.
type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	TokenTTL        string `toml:"token_ttl"`
	FederatedSecret string `toml:"federated_secret"` // empty disables federated sign-in
}

// DisplayConfig holds presentation settings passed to clients.
type DisplayConfig struct {
	Currency string `toml:"currency"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8420,
			Metrics: true,
			Timeout: "30s",
		},
		Auth: AuthConfig{
			TokenTTL: "24h",
		},
		Display: DisplayConfig{
			Currency: "USD",
		},
	}
}

// Home returns the splitpal home directory: $SPLITPAL_HOME or ~/.splitpal.
func Home() string {
	if h := os.Getenv("SPLITPAL_HOME"); h != "" {
		return h
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".splitpal"
	}
	return filepath.Join(dir, ".splitpal")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads path over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat %s: %w", path, err)
	}

	applyEnv(&cfg)
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = Home()
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	if s := os.Getenv("SPLITPAL_JWT_SECRET"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if s := os.Getenv("SPLITPAL_FEDERATED_SECRET"); s != "" {
		cfg.Auth.FederatedSecret = s
	}
	if s := os.Getenv("SPLITPAL_PORT"); s != "" {
		if p, err := strconv.Atoi(s); err == nil {
			cfg.API.Port = p
		}
	}
	if s := os.Getenv("SPLITPAL_STORAGE_DIR"); s != "" {
		cfg.Storage.Dir = s
	}
}

// Validate checks value ranges and duration syntax.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if _, err := parseDuration(c.API.Timeout, 30*time.Second); err != nil {
		return fmt.Errorf("api.timeout: %w", err)
	}
	if _, err := parseDuration(c.Auth.TokenTTL, 24*time.Hour); err != nil {
		return fmt.Errorf("auth.token_ttl: %w", err)
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// RequestTimeout returns the parsed API timeout.
func (c Config) RequestTimeout() time.Duration {
	d, _ := parseDuration(c.API.Timeout, 30*time.Second)
	return d
}

// TokenTTL returns the parsed session lifetime.
func (c Config) TokenTTL() time.Duration {
	d, _ := parseDuration(c.Auth.TokenTTL, 24*time.Hour)
	return d
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
