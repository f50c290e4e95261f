package deliver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// TelegramMaxText stays under the API limit of 4096 UTF-16 code units.
	TelegramMaxText    = 4000
	telegramMaxCaption = 1024
	// Telegram allows about one message per second per chat.
	telegramRate = 1
)

// Sender is the part of tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// DialTelegram authenticates a bot token and returns the API client.
func DialTelegram(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return bot, nil
}

// Telegram delivers to one chat.
type Telegram struct {
	bot     Sender
	chatID  int64
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewTelegram(bot Sender, chatID int64, logger zerolog.Logger) *Telegram {
	return &Telegram{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(telegramRate), 3),
		log:     logger,
	}
}

// ForChat returns a channel that targets another chat and shares the rate limiter.
func (t *Telegram) ForChat(chatID int64) *Telegram {
	c := *t
	c.chatID = chatID
	return &c
}

func (t *Telegram) Name() string { return "telegram" }

// ChatID is the destination chat.
func (t *Telegram) ChatID() int64 { return t.chatID }

func (t *Telegram) Deliver(ctx context.Context, m Message) error {
	if len(m.Image) > 0 {
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{Name: "article.png", Bytes: m.Image})
		photo.Caption = truncateUTF16(m.Title, telegramMaxCaption)
		if err := t.send(ctx, photo); err != nil {
			// Text still goes out without the illustration.
			t.log.Warn().Err(err).Int64("chat_id", t.chatID).Msg("telegram photo failed")
		}
	}
	return t.sendText(ctx, m.Text())
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	return t.sendText(ctx, text)
}

func (t *Telegram) sendText(ctx context.Context, text string) error {
	for i, chunk := range ChunkUTF16(text, TelegramMaxText) {
		msg := tgbotapi.NewMessage(t.chatID, chunk)
		msg.DisableWebPagePreview = true
		if err := t.send(ctx, msg); err != nil {
			return fmt.Errorf("telegram chunk %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.Send(c)
	return err
}
