package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ppiankov/purefact/internal/config"
	"github.com/ppiankov/purefact/internal/deliver"
	"github.com/ppiankov/purefact/internal/fetch"
	"github.com/ppiankov/purefact/internal/imagegen"
	"github.com/ppiankov/purefact/internal/ingest"
	"github.com/ppiankov/purefact/internal/logging"
	"github.com/ppiankov/purefact/internal/privacy"
	"github.com/ppiankov/purefact/internal/seen"
	"github.com/ppiankov/purefact/internal/source"
	"github.com/ppiankov/purefact/internal/store"
	"github.com/ppiankov/purefact/internal/summarize"
)

const telegramTimeout = 60 * time.Second

// loadConfig loads the config dir and sets up logging from it.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.Setup(level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// openStore opens the configured seen-set backend.
func openStore(cfg *config.Config) (seen.Store, func() error, error) {
	path := cfg.Path(cfg.Storage.Path)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := store.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return db, db.Close, nil
	default:
		return seen.NewFileStore(path), func() error { return nil }, nil
	}
}

// lockStore claims the seen-set for this process. Writers that would
// otherwise clobber each other's commits fail fast with seen.ErrLocked.
func lockStore(cfg *config.Config) (func() error, error) {
	return seen.Lock(cfg.Path(cfg.Storage.Path))
}

func newSummarizer(cfg *config.Config, logger zerolog.Logger) summarize.Summarizer {
	heuristic := &summarize.HeuristicSummarizer{}
	if cfg.Summarize.Mode == "heuristic" {
		return heuristic
	}

	var fallback summarize.Summarizer
	if cfg.Summarize.Fallback == "heuristic" {
		fallback = heuristic
	}
	llm := cfg.Summarize.LLM
	if llm.APIKey == "" {
		logger.Warn().Str("env", llm.APIKeyEnv).Msg("LLM API key not set, articles will be degraded")
	}
	return summarize.NewLLM(summarize.LLMConfig{
		BaseURL:       llm.BaseURL,
		APIKey:        llm.APIKey,
		Model:         llm.Model,
		Temperature:   llm.Temperature,
		MaxTokens:     llm.MaxTokens,
		MaxInputChars: llm.MaxInputChars,
		Timeout:       llm.Timeout.Duration,
	}, fallback)
}

func newRedactor(cfg *config.Config) (*privacy.Redactor, error) {
	rc := cfg.Privacy.Redact
	if !rc.Enabled {
		return nil, nil
	}
	patterns := append([]string(nil), rc.Patterns...)
	if rc.Builtin {
		patterns = append(patterns, privacy.EmailPattern, privacy.PhonePattern)
	}
	return privacy.New(patterns)
}

// newPipeline wires a pipeline from config. reg may be nil to skip metrics.
func newPipeline(cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*ingest.Pipeline, error) {
	fc := fetch.New(cfg.Fetch.Timeout.Duration, cfg.Fetch.UserAgent)
	if cfg.Fetch.MaxBytes > 0 {
		fc.MaxBytes = cfg.Fetch.MaxBytes
	}

	pc := ingest.Config{
		Lister:                  source.NewLister(fc, logger),
		Fetcher:                 fc,
		Summarizer:              newSummarizer(cfg, logger),
		Logger:                  logger,
		CommitOnDeliveryFailure: cfg.CommitOnDeliveryFailure(),
		MinChars:                cfg.Pipeline.MinChars,
	}

	red, err := newRedactor(cfg)
	if err != nil {
		return nil, fmt.Errorf("privacy: %w", err)
	}
	if red != nil {
		pc.Redactor = red
	}

	if cfg.Image.Enabled {
		if cfg.Image.APIKey == "" {
			logger.Warn().Str("env", cfg.Image.APIKeyEnv).Msg("image API key not set, images disabled")
		} else {
			pc.Images = imagegen.New(imagegen.Config{
				BaseURL: cfg.Image.BaseURL,
				APIKey:  cfg.Image.APIKey,
				Model:   cfg.Image.Model,
				Size:    cfg.Image.Size,
				Timeout: cfg.Image.Timeout.Duration,
			})
		}
	}

	if reg != nil {
		pc.Metrics = ingest.NewMetrics(reg)
	}
	return ingest.New(pc), nil
}

// newChannel builds the delivery channel named by to.
func newChannel(cfg *config.Config, to string, logger zerolog.Logger) (deliver.Channel, error) {
	switch to {
	case "stdout":
		return &deliver.Writer{W: os.Stdout}, nil
	case "telegram":
		return newTelegram(cfg, logger)
	case "ntfy":
		if cfg.Ntfy.Topic == "" {
			return nil, errors.New("ntfy.topic is not set")
		}
		return deliver.NewNtfy(cfg.Ntfy.Topic, cfg.Ntfy.Token, cfg.Fetch.Timeout.Duration, logger), nil
	case "all":
		var multi deliver.Multi
		if cfg.TelegramReady() == nil {
			tg, err := newTelegram(cfg, logger)
			if err != nil {
				return nil, err
			}
			multi = append(multi, tg)
		}
		if cfg.Ntfy.Topic != "" {
			multi = append(multi, deliver.NewNtfy(cfg.Ntfy.Topic, cfg.Ntfy.Token, cfg.Fetch.Timeout.Duration, logger))
		}
		if len(multi) == 0 {
			return nil, errors.New("no delivery channel configured (set a telegram token and chat, or ntfy.topic)")
		}
		return multi, nil
	default:
		return nil, fmt.Errorf("unknown channel %q (want telegram, ntfy, stdout or all)", to)
	}
}

func newTelegram(cfg *config.Config, logger zerolog.Logger) (*deliver.Telegram, error) {
	if err := cfg.TelegramReady(); err != nil {
		return nil, err
	}
	bot, err := deliver.DialTelegram(cfg.Telegram.Token, telegramTimeout)
	if err != nil {
		return nil, err
	}
	return deliver.NewTelegram(bot, cfg.Telegram.ChatID, logger), nil
}

// loadService locks and opens storage and loads the seen-set. dryRun skips
// the lock and keeps the seen-set in memory only.
func loadService(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer, dryRun bool) (*ingest.Service, func() error, error) {
	unlock := func() error { return nil }
	if !dryRun {
		var err error
		if unlock, err = lockStore(cfg); err != nil {
			return nil, nil, err
		}
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		_ = unlock()
		return nil, nil, err
	}
	release := func() error {
		return errors.Join(closeStore(), unlock())
	}
	if dryRun {
		st = seen.Discard(st)
	}

	pipe, err := newPipeline(cfg, logger, reg)
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	state, err := ingest.LoadState(ctx, cfg.Sources.Specs, st)
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	return ingest.NewService(pipe, state), release, nil
}
