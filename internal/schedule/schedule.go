// Package schedule fires scans on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Expression turns the configured schedule into a cron spec. The first
// non-empty of raw, every and dailyAt wins.
func Expression(dailyAt string, every time.Duration, raw string) (string, error) {
	switch {
	case strings.TrimSpace(raw) != "":
		return strings.TrimSpace(raw), nil
	case every < 0:
		return "", errors.New("interval must not be negative")
	case every > 0:
		return "@every " + every.String(), nil
	case dailyAt != "":
		t, err := time.Parse("15:04", dailyAt)
		if err != nil {
			return "", fmt.Errorf("daily_at %q: want HH:MM", dailyAt)
		}
		return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
	default:
		return "", errors.New("no schedule configured")
	}
}

// Scheduler runs job on each firing. A firing that arrives while the
// previous one is still running is skipped. Recover sits inside the skip
// guard so a panicking job still releases it.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	logger zerolog.Logger
	id     cron.EntryID
}

// New validates spec and registers job. The job context is cancelled by Stop.
func New(ctx context.Context, spec string, loc *time.Location, logger zerolog.Logger, job func(context.Context)) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	cl := cronLogger{logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)
	id := c.Schedule(sched, cron.FuncJob(func() { job(ctx) }))

	return &Scheduler{cron: c, spec: spec, logger: logger, id: id}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Time("next", s.Next()).Msg("scheduler started")
}

// Stop halts new firings and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next is the next firing time, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
