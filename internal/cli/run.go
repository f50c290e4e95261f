package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/purefact/internal/bot"
	"github.com/ppiankov/purefact/internal/config"
	"github.com/ppiankov/purefact/internal/deliver"
	"github.com/ppiankov/purefact/internal/health"
	"github.com/ppiankov/purefact/internal/ingest"
	"github.com/ppiankov/purefact/internal/schedule"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Telegram bot, the scan schedule and the liveness server",
	RunE:  runAction,
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.TelegramReady(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, closeStore, err := loadService(ctx, cfg, logger, reg, false)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	api, err := deliver.DialTelegram(cfg.Telegram.Token, telegramTimeout)
	if err != nil {
		return err
	}
	logger.Info().Str("bot", api.Self.UserName).Int64("chat_id", cfg.Telegram.ChatID).Int("sources", svc.Sources()).Msg("purefact starting")
	tg := deliver.NewTelegram(api, cfg.Telegram.ChatID, logger)

	// Scheduled scans go to the configured chat plus ntfy when delivering to all.
	scheduled := deliver.Channel(tg)
	if cfg.Deliver.To == "all" && cfg.Ntfy.Topic != "" {
		scheduled = deliver.Multi{tg, deliver.NewNtfy(cfg.Ntfy.Topic, cfg.Ntfy.Token, cfg.Fetch.Timeout.Duration, logger)}
	}

	sched, err := newScheduler(ctx, cfg, svc, scheduled, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	sched.Start()
	g.Go(func() error {
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	b := bot.New(api, tg, svc, cfg.AllowedChat, logger)
	g.Go(func() error { return b.Run(gctx) })

	if cfg.Liveness.Enabled {
		srv := health.NewServer(cfg.Liveness.Addr, reg, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}
	if cfg.Liveness.PingURL != "" {
		p := &health.Pinger{URL: cfg.Liveness.PingURL, Interval: cfg.Liveness.PingInterval.Duration, Logger: logger}
		g.Go(func() error {
			p.Run(gctx)
			return nil
		})
	}

	err = g.Wait()
	logger.Info().Msg("purefact stopped")
	return err
}

func newScheduler(ctx context.Context, cfg *config.Config, svc *ingest.Service, ch deliver.Channel, logger zerolog.Logger) (*schedule.Scheduler, error) {
	spec, err := schedule.Expression(cfg.Schedule.DailyAt, cfg.Schedule.Interval.Duration, cfg.Schedule.Cron)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return schedule.New(ctx, spec, loc, logger, func(ctx context.Context) {
		if _, err := svc.Scan(ctx, ch); err != nil {
			logger.Warn().Err(err).Msg("scheduled scan interrupted")
		}
	})
}
