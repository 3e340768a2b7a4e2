package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "gopkg.in/telegram-bot-api.v4"
)

// TelegramConfig holds the bot token used to deliver messages. An empty
// token leaves the provider in mock-success mode.
type TelegramConfig struct {
	BotToken string
}

// telegramBotAPI is the subset of *tgbotapi.BotAPI the provider calls,
// narrowed so tests can substitute a stub without hitting the network.
type telegramBotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramProvider sends notifications via the Telegram Bot API. The
// recipient string is the chat ID.
type TelegramProvider struct {
	bot        telegramBotAPI
	configured bool
}

// NewTelegramProvider builds a TelegramProvider, constructing a real bot
// client when a token is present.
func NewTelegramProvider(cfg TelegramConfig) (*TelegramProvider, error) {
	if cfg.BotToken == "" {
		return &TelegramProvider{}, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot api: %w", err)
	}

	return &TelegramProvider{bot: bot, configured: true}, nil
}

// newTelegramProviderWithBot builds a TelegramProvider around a caller
// supplied bot client, used by tests to avoid hitting the network.
func newTelegramProviderWithBot(bot telegramBotAPI) *TelegramProvider {
	return &TelegramProvider{bot: bot, configured: true}
}

// ChannelTag implements Provider.
func (p *TelegramProvider) ChannelTag() Channel { return ChannelTelegram }

// Send implements Provider. recipient must parse as an int64 chat ID.
func (p *TelegramProvider) Send(ctx context.Context, recipient, body string) SendResult {
	if !p.configured {
		return SendResult{Success: true}
	}

	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return SendResult{Success: false, Cause: fmt.Errorf("telegram: invalid chat id %q: %w", recipient, err)}
	}

	done := make(chan SendResult, 1)
	go func() {
		msg := tgbotapi.NewMessage(chatID, body)
		if _, sendErr := p.bot.Send(msg); sendErr != nil {
			done <- SendResult{Success: false, Cause: fmt.Errorf("telegram send: %w", sendErr)}
			return
		}
		done <- SendResult{Success: true}
	}()

	const timeout = 10 * time.Second
	select {
	case <-ctx.Done():
		return SendResult{Success: false, Cause: ctx.Err()}
	case <-time.After(timeout):
		return SendResult{Success: false, Cause: fmt.Errorf("telegram send: timed out after %s", timeout)}
	case result := <-done:
		return result
	}
}
