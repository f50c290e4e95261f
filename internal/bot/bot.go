// Package bot answers Telegram chat commands by long polling.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ppiankov/purefact/internal/deliver"
	"github.com/ppiankov/purefact/internal/ingest"
)

const pollTimeout = 30 // seconds

const helpText = `PureFact turns new public data files and feed entries into short factual articles.

/scan - check every source now and post new articles here
/status - seen count and the last scan
/help - this message`

// Scanner is the scan service the bot drives.
type Scanner interface {
	Scan(ctx context.Context, ch deliver.Channel) (ingest.Report, error)
	Running() bool
	LastReport() (ingest.Report, bool)
	SeenCount() int
	Sources() int
}

// Updater is the polling half of tgbotapi.BotAPI.
type Updater interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	updates Updater
	out     *deliver.Telegram
	scanner Scanner
	allowed func(chatID int64) bool
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// New returns a bot replying through out. allowed decides which chats may
// use commands.
func New(u Updater, out *deliver.Telegram, s Scanner, allowed func(chatID int64) bool, logger zerolog.Logger) *Bot {
	return &Bot{updates: u, out: out, scanner: s, allowed: allowed, log: logger}
}

// Run polls for updates until ctx is done, then waits for running scans.
func (b *Bot) Run(ctx context.Context) error {
	// Commands queued while the daemon was down are discarded, not replayed.
	if _, err := b.updates.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		b.log.Warn().Err(err).Msg("drop pending updates failed")
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.updates.GetUpdatesChan(cfg)
	defer b.updates.StopReceivingUpdates()

	b.log.Info().Msg("telegram bot polling")
	for {
		select {
		case <-ctx.Done():
			b.Wait()
			return nil
		case u, ok := <-updates:
			if !ok {
				b.Wait()
				return nil
			}
			b.Handle(ctx, u)
		}
	}
}

// Wait blocks until scans started by /scan have finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Handle processes one update. Scans run in the background so polling
// continues while they do.
func (b *Bot) Handle(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	cmd := strings.ToLower(msg.Command())
	log := b.log.With().Int64("chat_id", chatID).Str("command", cmd).Logger()
	reply := b.out.ForChat(chatID)

	if b.allowed != nil && !b.allowed(chatID) {
		log.Warn().Msg("command from unauthorized chat")
		b.say(ctx, log, reply, "This chat is not authorized to use PureFact.")
		return
	}

	switch cmd {
	case "start", "help":
		b.say(ctx, log, reply, helpText)
	case "scan":
		text := "Starting scan…"
		if b.scanner.Running() {
			text = "A scan is already running. Yours will start when it finishes."
		}
		b.say(ctx, log, reply, text)

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			r, err := b.scanner.Scan(ctx, reply)
			if err != nil {
				log.Warn().Err(err).Msg("manual scan interrupted")
				return
			}
			log.Info().Str("scan_id", r.ScanID).Int("delivered", r.Delivered).Msg("manual scan finished")
		}()
	case "status":
		b.say(ctx, log, reply, b.status())
	default:
		b.say(ctx, log, reply, "Unknown command. Try /help.")
	}
}

func (b *Bot) status() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sources: %d\n", b.scanner.Sources())
	fmt.Fprintf(&sb, "Seen items: %s\n", humanize.Comma(int64(b.scanner.SeenCount())))
	if b.scanner.Running() {
		sb.WriteString("A scan is running now.\n")
	}
	r, ok := b.scanner.LastReport()
	if !ok {
		sb.WriteString("No scan yet since start.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Last scan: %s (%d new, %d skipped, %d failed)",
		humanize.Time(r.Finished), r.Delivered, r.Skipped, r.Failed)
	return sb.String()
}

func (b *Bot) say(ctx context.Context, log zerolog.Logger, ch *deliver.Telegram, text string) {
	if err := ch.Notify(ctx, text); err != nil {
		log.Warn().Err(err).Msg("reply failed")
	}
}
