package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"insta-relay/internal/models"
)

// BotInterface defines the methods required for Telegram bot interactions.
type BotInterface interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Relayer answers inbound messages.
type Relayer interface {
	Handle(ctx context.Context, msg models.InboundMessage) models.Result
}
