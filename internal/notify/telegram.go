package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramAPI is the subset of *tgbotapi.BotAPI used for delivery.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers text messages under a shared rate limit.
type TelegramSender struct {
	api     TelegramAPI
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegramSender connects to the Bot API with token.
func NewTelegramSender(token string, perSecond float64, burst int, logger zerolog.Logger) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramSenderWithAPI(api, rate.NewLimiter(rate.Limit(perSecond), burst), logger), nil
}

// NewTelegramSenderWithAPI allows injecting a fake API in tests.
func NewTelegramSenderWithAPI(api TelegramAPI, limiter *rate.Limiter, logger zerolog.Logger) *TelegramSender {
	return &TelegramSender{
		api:     api,
		limiter: limiter,
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

// Send waits for the limiter and sends text to chatID. A 429 with retry_after is
// retried once after the requested delay.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.api.Send(msg)
	if wait, ok := retryAfter(err); ok {
		s.logger.Warn().Dur("retry_after", wait).Int64("chat_id", chatID).Msg("rate limited by telegram")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		_, err = s.api.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

func retryAfter(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.Code == http.StatusTooManyRequests && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second, true
	}
	return 0, false
}
