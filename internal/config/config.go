// Package config загружает конфигурацию сервера.
// Приоритет: значения по умолчанию < YAML файл < переменные BOARDSYNC_* < флаги.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "BOARDSYNC_"

// CVR store backends
const (
	CVRBackendSQLite = "sqlite"
	CVRBackendBolt   = "bolt"
)

// Config конфигурация сервера
type Config struct {
	Log       LogConfig       `yaml:"log"`
	JWT       JWTConfig       `yaml:"jwt"`
	Addr      string          `yaml:"addr"`
	DBPath    string          `yaml:"db_path"`
	CVR       CVRConfig       `yaml:"cvr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   bool            `yaml:"metrics"`
}

// CVRConfig хранилище client view records
type CVRConfig struct {
	Backend string `yaml:"backend"` // sqlite | bolt
	// Path файл bbolt, только для backend=bolt
	Path          string        `yaml:"path"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// JWTConfig параметры access токенов
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// RateLimitConfig лимиты запросов на IP
type RateLimitConfig struct {
	// Auth лимит для register/login
	Auth   int           `yaml:"auth"`
	Sync   int           `yaml:"sync"`
	Window time.Duration `yaml:"window"`
}

// LogConfig параметры логирования
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Addr:   ":8080",
		DBPath: "boardsync.db",
		CVR: CVRConfig{
			Backend:       CVRBackendSQLite,
			Path:          "cvr.db",
			TTL:           7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		JWT: JWTConfig{
			AccessTokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Auth:   10,
			Sync:   600,
			Window: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: true,
	}
}

// Load собирает конфигурацию из файла, окружения и аргументов командной строки.
// getenv обычно os.Getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("boardsync-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configPath = fs.String("config", getenv(envPrefix+"CONFIG"), "path to YAML config file")
		flags      = Default()
	)
	fs.StringVar(&flags.Addr, "addr", flags.Addr, "HTTP listen address")
	fs.StringVar(&flags.DBPath, "db", flags.DBPath, "SQLite database path")
	fs.StringVar(&flags.CVR.Backend, "cvr-backend", flags.CVR.Backend, "CVR store: sqlite or bolt")
	fs.StringVar(&flags.CVR.Path, "cvr-path", flags.CVR.Path, "bbolt file for the bolt CVR store")
	fs.DurationVar(&flags.CVR.TTL, "cvr-ttl", flags.CVR.TTL, "CVR time to live")
	fs.DurationVar(&flags.CVR.SweepInterval, "cvr-sweep-interval", flags.CVR.SweepInterval, "expired CVR sweep interval")
	fs.StringVar(&flags.JWT.Secret, "jwt-secret", flags.JWT.Secret, "HS256 signing secret")
	fs.DurationVar(&flags.JWT.AccessTokenTTL, "jwt-ttl", flags.JWT.AccessTokenTTL, "access token lifetime")
	fs.IntVar(&flags.RateLimit.Auth, "rate-auth", flags.RateLimit.Auth, "auth requests per window per IP")
	fs.IntVar(&flags.RateLimit.Sync, "rate-sync", flags.RateLimit.Sync, "sync requests per window per IP")
	fs.DurationVar(&flags.RateLimit.Window, "rate-window", flags.RateLimit.Window, "rate limit window")
	fs.StringVar(&flags.Log.Level, "log-level", flags.Log.Level, "debug, info, warn or error")
	fs.StringVar(&flags.Log.Format, "log-format", flags.Log.Format, "text or json")
	fs.BoolVar(&flags.Metrics, "metrics", flags.Metrics, "expose /metrics")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	// явно заданные флаги перекрывают файл и окружение
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = flags.Addr
		case "db":
			cfg.DBPath = flags.DBPath
		case "cvr-backend":
			cfg.CVR.Backend = flags.CVR.Backend
		case "cvr-path":
			cfg.CVR.Path = flags.CVR.Path
		case "cvr-ttl":
			cfg.CVR.TTL = flags.CVR.TTL
		case "cvr-sweep-interval":
			cfg.CVR.SweepInterval = flags.CVR.SweepInterval
		case "jwt-secret":
			cfg.JWT.Secret = flags.JWT.Secret
		case "jwt-ttl":
			cfg.JWT.AccessTokenTTL = flags.JWT.AccessTokenTTL
		case "rate-auth":
			cfg.RateLimit.Auth = flags.RateLimit.Auth
		case "rate-sync":
			cfg.RateLimit.Sync = flags.RateLimit.Sync
		case "rate-window":
			cfg.RateLimit.Window = flags.RateLimit.Window
		case "log-level":
			cfg.Log.Level = flags.Log.Level
		case "log-format":
			cfg.Log.Format = flags.Log.Format
		case "metrics":
			cfg.Metrics = flags.Metrics
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v := getenv(envPrefix + name)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v := getenv(envPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("ADDR", &c.Addr)
	str("DB_PATH", &c.DBPath)
	str("CVR_BACKEND", &c.CVR.Backend)
	str("CVR_PATH", &c.CVR.Path)
	str("JWT_SECRET", &c.JWT.Secret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v := getenv(envPrefix + "METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMETRICS: %w", envPrefix, err)
		}
		c.Metrics = b
	}

	return errors.Join(
		dur("CVR_TTL", &c.CVR.TTL),
		dur("CVR_SWEEP_INTERVAL", &c.CVR.SweepInterval),
		dur("JWT_TTL", &c.JWT.AccessTokenTTL),
		dur("RATE_WINDOW", &c.RateLimit.Window),
		num("RATE_AUTH", &c.RateLimit.Auth),
		num("RATE_SYNC", &c.RateLimit.Sync),
	)
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	switch c.CVR.Backend {
	case CVRBackendSQLite:
	case CVRBackendBolt:
		if c.CVR.Path == "" {
			errs = append(errs, errors.New("cvr.path is required for the bolt backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cvr.backend %q", c.CVR.Backend))
	}
	if c.CVR.TTL <= 0 || c.CVR.SweepInterval <= 0 {
		errs = append(errs, errors.New("cvr.ttl and cvr.sweep_interval must be positive"))
	}
	if len(c.JWT.Secret) < 16 {
		errs = append(errs, errors.New("jwt.secret must be at least 16 characters"))
	}
	if c.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("jwt.access_token_ttl must be positive"))
	}
	if c.RateLimit.Auth <= 0 || c.RateLimit.Sync <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SlogLevel переводит строковый уровень в slog.Level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("unknown log.level %q", l.Level)
	}
	return level, nil
}

// NewLogger создает slog логгер согласно конфигурации
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
