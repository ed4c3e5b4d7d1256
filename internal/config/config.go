// Package config loads client settings from defaults, an optional .env file,
// an optional config file and CAMPUS_* environment variables, in that order of
// increasing precedence.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (CAMPUS_API_ORIGIN, ...).
const EnvPrefix = "CAMPUS"

// Storage backends for the durable session.
const (
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds every tunable of the client.
type Config struct {
	APIOrigin      string // REST origin; requests go to <origin>/api
	RealtimeOrigin string // websocket origin; empty means APIOrigin
	Storage        string // file | redis | memory
	ConfigDir      string // where the file backend keeps session.json
	Profile        string // namespaces the persisted session
	RedisAddr      string
	NATSURL        string // empty disables the event relay
	LogLevel       string
	LogFile        string
	Development    bool
	MetricsAddr    string // empty disables the metrics listener
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		APIOrigin: "http://localhost:5000",
		Storage:   StorageFile,
		ConfigDir: defaultConfigDir(),
		Profile:   "default",
		RedisAddr: "localhost:6379",
		LogLevel:  "info",
	}
}

func defaultConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "campus")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "campus")
}

// Load reads configuration. path may name a yaml/json/toml file; empty skips it.
// A .env file in the working directory (or CAMPUS_ENV_FILE) is loaded first
// when present.
func Load(path string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	def := Default()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_origin", def.APIOrigin)
	v.SetDefault("realtime_origin", def.RealtimeOrigin)
	v.SetDefault("storage", def.Storage)
	v.SetDefault("config_dir", def.ConfigDir)
	v.SetDefault("profile", def.Profile)
	v.SetDefault("redis_addr", def.RedisAddr)
	v.SetDefault("nats_url", def.NATSURL)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("development", def.Development)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "config: read %s", path)
		}
	}

	cfg := Config{
		APIOrigin:      strings.TrimRight(v.GetString("api_origin"), "/"),
		RealtimeOrigin: strings.TrimRight(v.GetString("realtime_origin"), "/"),
		Storage:        strings.ToLower(v.GetString("storage")),
		ConfigDir:      v.GetString("config_dir"),
		Profile:        v.GetString("profile"),
		RedisAddr:      v.GetString("redis_addr"),
		NATSURL:        v.GetString("nats_url"),
		LogLevel:       v.GetString("log_level"),
		LogFile:        v.GetString("log_file"),
		Development:    v.GetBool("development"),
		MetricsAddr:    v.GetString("metrics_addr"),
	}
	return cfg, cfg.Validate()
}

func loadDotEnv() error {
	path := os.Getenv(EnvPrefix + "_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "config: stat %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "config: load %s", path)
	}
	return nil
}

// Validate rejects settings the client cannot start with.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageFile, StorageRedis, StorageMemory:
	default:
		return errors.Errorf("config: unknown storage backend %q", c.Storage)
	}
	if _, err := parseOrigin(c.APIOrigin); err != nil {
		return errors.Wrap(err, "config: api origin")
	}
	if c.RealtimeOrigin != "" {
		if _, err := parseOrigin(c.RealtimeOrigin); err != nil {
			return errors.Wrap(err, "config: realtime origin")
		}
	}
	if c.Profile == "" {
		return errors.New("config: empty profile")
	}
	return nil
}

// APIBaseURL is the prefix every REST call is made under.
func (c Config) APIBaseURL() string {
	return c.APIOrigin + "/api"
}

// RealtimeURL returns the websocket endpoint for userID.
func (c Config) RealtimeURL(userID string) string {
	origin := c.RealtimeOrigin
	if origin == "" {
		origin = c.APIOrigin
	}
	u, err := parseOrigin(origin)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"userId": {userID}}.Encode()
	return u.String()
}

func parseOrigin(origin string) (*url.URL, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, errors.Errorf("unsupported scheme in %q", origin)
	}
	if u.Host == "" {
		return nil, errors.Errorf("missing host in %q", origin)
	}
	return u, nil
}
