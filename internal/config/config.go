package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/purefact/internal/source"
)

const (
	DefaultConfigDir     = ".purefact"
	DefaultConfigFile    = "config.yaml"
	DefaultSourcesFile   = "sources.txt"
	DefaultEnvFile       = ".env"
	DefaultBackend       = BackendFile
	DefaultFilePath      = "processed.txt"
	DefaultSQLitePath    = "purefact.db"
	DefaultFetchTimeout  = 30 * time.Second
	DefaultMinChars      = 100
	DefaultSummarizeMode = "llm"
	DefaultFallback      = "placeholder"
	DefaultLLMKeyEnv     = "GROQ_API_KEY"
	DefaultImageKeyEnv   = "OPENAI_API_KEY"
	DefaultTelegramEnv   = "TELEGRAM_BOT_TOKEN"
	DefaultDeliverTo     = "telegram"
	DefaultDailyAt       = "08:00"
	DefaultTimezone      = "UTC"
	DefaultLivenessAddr  = ":8080"
	DefaultPingInterval  = 10 * time.Minute
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "auto"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Sources   SourcesConfig   `yaml:"sources"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Storage   StorageConfig   `yaml:"storage"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Image     ImageConfig     `yaml:"image"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Ntfy      NtfyConfig      `yaml:"ntfy"`
	Deliver   DeliverConfig   `yaml:"deliver"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Logging   LoggingConfig   `yaml:"logging"`
	Privacy   PrivacyConfig   `yaml:"privacy"`

	// Dir is the config directory relative paths are resolved against.
	Dir string `yaml:"-"`
}

type SourcesConfig struct {
	File string   `yaml:"file"`
	URLs []string `yaml:"urls"`

	// Parsed from File and URLs at load time.
	Specs []source.Spec `yaml:"-"`
}

type FetchConfig struct {
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
	MaxBytes  int64    `yaml:"max_bytes"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type PipelineConfig struct {
	MinChars                int   `yaml:"min_chars"`
	CommitOnDeliveryFailure *bool `yaml:"commit_on_delivery_failure"`
}

type SummarizeConfig struct {
	Mode     string    `yaml:"mode"`
	Fallback string    `yaml:"fallback"`
	LLM      LLMConfig `yaml:"llm"`
}

type LLMConfig struct {
	BaseURL       string   `yaml:"base_url"`
	Model         string   `yaml:"model"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	Temperature   float32  `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
	MaxInputChars int      `yaml:"max_input_chars"`
	Timeout       Duration `yaml:"timeout"`

	// Resolved from env var at load time.
	APIKey string `yaml:"-"`
}

type ImageConfig struct {
	Enabled   bool     `yaml:"enabled"`
	BaseURL   string   `yaml:"base_url"`
	Model     string   `yaml:"model"`
	Size      string   `yaml:"size"`
	APIKeyEnv string   `yaml:"api_key_env"`
	Timeout   Duration `yaml:"timeout"`

	APIKey string `yaml:"-"`
}

type TelegramConfig struct {
	TokenEnv     string  `yaml:"token_env"`
	ChatID       int64   `yaml:"chat_id"`
	ChatIDEnv    string  `yaml:"chat_id_env"`
	AllowedChats []int64 `yaml:"allowed_chats"`

	Token string `yaml:"-"`
}

type NtfyConfig struct {
	Topic    string `yaml:"topic"`
	TokenEnv string `yaml:"token_env"`

	Token string `yaml:"-"`
}

type DeliverConfig struct {
	// To is telegram, ntfy, stdout or all.
	To string `yaml:"to"`
}

type ScheduleConfig struct {
	DailyAt  string   `yaml:"daily_at"`
	Interval Duration `yaml:"interval"`
	Cron     string   `yaml:"cron"`
	Timezone string   `yaml:"timezone"`
}

type LivenessConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr"`
	PingURL      string   `yaml:"ping_url"`
	PingInterval Duration `yaml:"ping_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Builtin  bool     `yaml:"builtin"`
	Patterns []string `yaml:"patterns"`
}

// Load reads config.yaml and the source list from dir, applies defaults,
// resolves env vars, and validates. A .env file in dir is loaded first
// without overriding variables already set.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	if err := loadDotEnv(filepath.Join(dir, DefaultEnvFile)); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Dir = dir

	applyDefaults(&cfg)
	if err := resolveEnv(&cfg); err != nil {
		return nil, err
	}
	if err := loadSources(&cfg); err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sources.File == "" {
		cfg.Sources.File = DefaultSourcesFile
	}
	if cfg.Fetch.Timeout.Duration == 0 {
		cfg.Fetch.Timeout.Duration = DefaultFetchTimeout
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultBackend
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultFilePath
		if cfg.Storage.Backend == BackendSQLite {
			cfg.Storage.Path = DefaultSQLitePath
		}
	}
	if cfg.Pipeline.MinChars == 0 {
		cfg.Pipeline.MinChars = DefaultMinChars
	}
	if cfg.Pipeline.CommitOnDeliveryFailure == nil {
		v := true
		cfg.Pipeline.CommitOnDeliveryFailure = &v
	}
	if cfg.Summarize.Mode == "" {
		cfg.Summarize.Mode = DefaultSummarizeMode
	}
	if cfg.Summarize.Fallback == "" {
		cfg.Summarize.Fallback = DefaultFallback
	}
	if cfg.Summarize.LLM.APIKeyEnv == "" {
		cfg.Summarize.LLM.APIKeyEnv = DefaultLLMKeyEnv
	}
	if cfg.Image.APIKeyEnv == "" {
		cfg.Image.APIKeyEnv = DefaultImageKeyEnv
	}
	if cfg.Telegram.TokenEnv == "" {
		cfg.Telegram.TokenEnv = DefaultTelegramEnv
	}
	if cfg.Deliver.To == "" {
		cfg.Deliver.To = DefaultDeliverTo
	}
	if cfg.Schedule.DailyAt == "" && cfg.Schedule.Interval.Duration == 0 && cfg.Schedule.Cron == "" {
		cfg.Schedule.DailyAt = DefaultDailyAt
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = DefaultTimezone
	}
	if cfg.Liveness.Addr == "" {
		cfg.Liveness.Addr = DefaultLivenessAddr
	}
	if cfg.Liveness.PingInterval.Duration == 0 {
		cfg.Liveness.PingInterval.Duration = DefaultPingInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) error {
	cfg.Summarize.LLM.APIKey = os.Getenv(cfg.Summarize.LLM.APIKeyEnv)
	cfg.Image.APIKey = os.Getenv(cfg.Image.APIKeyEnv)
	cfg.Telegram.Token = os.Getenv(cfg.Telegram.TokenEnv)
	if cfg.Ntfy.TokenEnv != "" {
		cfg.Ntfy.Token = os.Getenv(cfg.Ntfy.TokenEnv)
	}
	if cfg.Telegram.ChatIDEnv != "" {
		if raw := strings.TrimSpace(os.Getenv(cfg.Telegram.ChatIDEnv)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("telegram.chat_id_env %s: %w", cfg.Telegram.ChatIDEnv, err)
			}
			cfg.Telegram.ChatID = id
		}
	}
	return nil
}

func loadSources(cfg *Config) error {
	var specs []source.Spec

	path := cfg.Path(cfg.Sources.File)
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer func() { _ = f.Close() }()
		fromFile, err := source.ParseList(f)
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.Sources.File, err)
		}
		specs = append(specs, fromFile...)
	case errors.Is(err, os.ErrNotExist):
		// Inline URLs alone are enough.
	default:
		return fmt.Errorf("open %s: %w", cfg.Sources.File, err)
	}

	inline, err := source.ParseLines(cfg.Sources.URLs)
	if err != nil {
		return fmt.Errorf("urls: %w", err)
	}
	for _, s := range inline {
		if !containsSpec(specs, s) {
			specs = append(specs, s)
		}
	}

	cfg.Sources.Specs = specs
	return nil
}

func containsSpec(specs []source.Spec, s source.Spec) bool {
	for _, x := range specs {
		if x == s {
			return true
		}
	}
	return false
}

func validate(cfg *Config) error {
	if len(cfg.Sources.Specs) == 0 {
		return errors.New("sources: at least one source must be configured")
	}

	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if cfg.Schedule.DailyAt != "" {
		if _, err := time.Parse("15:04", cfg.Schedule.DailyAt); err != nil {
			return fmt.Errorf("schedule.daily_at: want HH:MM, got %q", cfg.Schedule.DailyAt)
		}
	}
	if cfg.Schedule.Interval.Duration < 0 {
		return errors.New("schedule.interval: must not be negative")
	}

	switch cfg.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q (want file or sqlite)", cfg.Storage.Backend)
	}

	switch cfg.Summarize.Mode {
	case "heuristic", "llm":
	default:
		return fmt.Errorf("summarize.mode: unknown mode %q (want heuristic or llm)", cfg.Summarize.Mode)
	}
	switch cfg.Summarize.Fallback {
	case "placeholder", "heuristic":
	default:
		return fmt.Errorf("summarize.fallback: unknown fallback %q (want placeholder or heuristic)", cfg.Summarize.Fallback)
	}

	switch cfg.Deliver.To {
	case "telegram", "ntfy", "stdout", "all":
	default:
		return fmt.Errorf("deliver.to: unknown channel %q (want telegram, ntfy, stdout or all)", cfg.Deliver.To)
	}
	if (cfg.Deliver.To == "ntfy" || cfg.Deliver.To == "all") && cfg.Ntfy.Topic == "" {
		return errors.New("ntfy.topic: required when delivering to ntfy")
	}

	if cfg.Pipeline.MinChars < 0 {
		return errors.New("pipeline.min_chars: must not be negative")
	}
	switch cfg.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q (want auto, console or json)", cfg.Logging.Format)
	}

	return nil
}

// Path resolves p against the config directory unless it is absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// TelegramReady reports why the Telegram bot cannot start, or nil.
func (c *Config) TelegramReady() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram: bot token not set (export %s)", c.Telegram.TokenEnv)
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram: chat_id is required")
	}
	return nil
}

// CommitOnDeliveryFailure is the resolved pipeline policy.
func (c *Config) CommitOnDeliveryFailure() bool {
	return c.Pipeline.CommitOnDeliveryFailure == nil || *c.Pipeline.CommitOnDeliveryFailure
}

// AllowedChat reports whether chatID may trigger commands. Without an explicit
// list only the configured chat is allowed.
func (c *Config) AllowedChat(chatID int64) bool {
	if len(c.Telegram.AllowedChats) == 0 {
		return chatID == c.Telegram.ChatID
	}
	for _, id := range c.Telegram.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}
