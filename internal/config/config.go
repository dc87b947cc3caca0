package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends accepted in storage.backend.
const (
	BackendFS     = "fs"
	BackendRemote = "remote"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CALMERGE_"

// SourceConfig describes one subscription feed for the remote backend.
type SourceConfig struct {
	// Name is the source label used for tagging and styling.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"-"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// StorageConfig selects where feeds are read from and where the merged
// calendar is published.
type StorageConfig struct {
	// Backend is one of "fs", "remote", "redis", "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// Dir holds feed files for "fs" and the merged file for "fs" and
	// "remote".
	Dir        string `yaml:"dir" json:"dir"`
	MergedFile string `yaml:"merged_file" json:"merged_file"`

	// CacheDir keeps the last good body of each remote feed.
	CacheDir     string        `yaml:"cache_dir" json:"cache_dir"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`

	SQLitePath string      `yaml:"sqlite_path" json:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA display zone (e.g. "Europe/Berlin"). Empty means
	// the system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	PrettyLog bool   `yaml:"pretty_log" json:"pretty_log"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// periodic re-merges. Empty disables the schedule.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ExpandRecurrences shows every occurrence of RRULE events in the
	// weekly view instead of only the first.
	ExpandRecurrences bool `yaml:"expand_recurrences" json:"expand_recurrences"`

	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Sources lists subscription feeds for the "remote" backend.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if set with both fields, protects every endpoint except
	// /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            "127.0.0.1:8080",
		Timezone:          "",
		LogLevel:          "info",
		RefreshCron:       "*/15 * * * *",
		ExpandRecurrences: true,
		Storage: StorageConfig{
			Backend:      BackendFS,
			Dir:          "./calendars",
			MergedFile:   "merged_output.ics",
			CacheDir:     "./var/ics-cache",
			FetchTimeout: 15 * time.Second,
			SQLitePath:   "./calmerge.db",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "calmerge:",
			},
		},
		Sources:   []SourceConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = def.LogLevel
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	if c.Storage.MergedFile == "" {
		c.Storage.MergedFile = def.Storage.MergedFile
	}
	if c.Storage.CacheDir == "" {
		c.Storage.CacheDir = def.Storage.CacheDir
	}
	if c.Storage.FetchTimeout <= 0 {
		c.Storage.FetchTimeout = def.Storage.FetchTimeout
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = def.Storage.SQLitePath
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = def.Storage.Redis.Addr
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = def.Storage.Redis.KeyPrefix
	}

	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		c.Sources[i].Name = strings.TrimSpace(c.Sources[i].Name)
		c.Sources[i].URL = strings.TrimSpace(c.Sources[i].URL)
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFS, BackendRedis, BackendSQLite:
	case BackendRemote:
		if len(c.Sources) == 0 {
			return errors.New("config: remote backend needs at least one source")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("config: sources[%d] needs both name and url", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// BasicAuthEnabled reports whether both credentials are set.
func (c *Config) BasicAuthEnabled() bool {
	return c.BasicAuth != nil && c.BasicAuth.Username != "" && c.BasicAuth.Password != ""
}

// ApplyEnv overrides fields from CALMERGE_* variables. Unparseable values
// are ignored.
func (c *Config) ApplyEnv() {
	c.Listen = getenv("LISTEN", c.Listen)
	c.Timezone = getenv("TIMEZONE", c.Timezone)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.PrettyLog = getenvBool("PRETTY_LOG", c.PrettyLog)
	c.RefreshCron = getenv("REFRESH", c.RefreshCron)
	c.ExpandRecurrences = getenvBool("EXPAND_RECURRENCES", c.ExpandRecurrences)

	c.Storage.Backend = getenv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Dir = getenv("STORAGE_DIR", c.Storage.Dir)
	c.Storage.MergedFile = getenv("MERGED_FILE", c.Storage.MergedFile)
	c.Storage.CacheDir = getenv("CACHE_DIR", c.Storage.CacheDir)
	c.Storage.FetchTimeout = getenvDuration("FETCH_TIMEOUT", c.Storage.FetchTimeout)
	c.Storage.SQLitePath = getenv("SQLITE_PATH", c.Storage.SQLitePath)

	c.Storage.Redis.Addr = getenv("REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Username = getenv("REDIS_USERNAME", c.Storage.Redis.Username)
	c.Storage.Redis.Password = getenv("REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.Redis.DB = getenvInt("REDIS_DB", c.Storage.Redis.DB)
	c.Storage.Redis.KeyPrefix = getenv("REDIS_KEY_PREFIX", c.Storage.Redis.KeyPrefix)

	user, pass := os.Getenv(EnvPrefix+"BASIC_AUTH_USERNAME"), os.Getenv(EnvPrefix+"BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded.
//
// In both cases CALMERGE_* overrides are applied, then defaults are
// normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// First run: create default config file.
		cfg := DefaultConfig()
		saveErr := Save(path, cfg)
		cfg.ApplyEnv()
		cfg.Normalize()
		return cfg, saveErr
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.ApplyEnv()
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file + rename, creating the
// parent directory (0700) and leaving the file with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calmerge-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

func getenv(key, def string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
