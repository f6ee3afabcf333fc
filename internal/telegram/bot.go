package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"insta-relay/internal/config"
	"insta-relay/internal/dialog"
	"insta-relay/internal/models"
	"insta-relay/internal/queue"
	"insta-relay/internal/utils"
)

const maxMediaGroup = 10

// BotManager connects the Telegram update stream to the relay.
type BotManager struct {
	bot   BotInterface
	cfg   *config.TelegramConfig
	relay Relayer
	queue *queue.Queue
	logMu sync.Mutex
}

// NewBot creates the Telegram API client with its own HTTP client.
func NewBot(cfg *config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			ForceAttemptHTTP2:   true,
		},
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logrus.Infof(color.GreenString("Telegram bot @%s authorised"), bot.Self.UserName)
	return bot, nil
}

// NewBotManager builds the manager and its worker queue.
func NewBotManager(bot BotInterface, cfg *config.Config, relay Relayer) *BotManager {
	m := &BotManager{
		bot:   bot,
		cfg:   &cfg.Telegram,
		relay: relay,
	}
	m.queue = queue.NewQueue(cfg.Relay.QueueSize, cfg.Relay.Workers, m.process)
	return m
}

// Start polls updates until ctx is done, then drains the queue.
func (m *BotManager) Start(ctx context.Context) error {
	m.queue.Start(ctx)
	defer m.queue.Stop()
	go m.failureLogMaintenance(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = m.cfg.UpdateTimeout
	updates := m.bot.GetUpdatesChan(u)
	logrus.Info(color.GreenString("Telegram polling started"))

	for {
		select {
		case <-ctx.Done():
			m.bot.StopReceivingUpdates()
			logrus.Info(color.YellowString("Telegram polling stopped"))
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			m.HandleUpdate(update)
		}
	}
}

// HandleUpdate filters one update and enqueues it for the relay.
func (m *BotManager) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		m.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		m.handleCallback(update.CallbackQuery)
	}
}

func (m *BotManager) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if !m.isAllowed(chatID, msg.From) {
		return
	}

	logrus.WithFields(logrus.Fields{
		"chat_id": chatID,
		"user_id": msg.From.ID,
	}).Debugf("Received message: %s", text)

	in := models.InboundMessage{
		RequestID:  uuid.New().String(),
		ChatID:     chatID,
		UserID:     msg.From.ID,
		UserName:   msg.From.UserName,
		Text:       text,
		ReceivedAt: msg.Time(),
	}
	if msg.IsCommand() {
		in.Command = strings.ToLower(msg.Command())
		in.Args = strings.Fields(msg.CommandArguments())
	}

	switch err := m.queue.Enqueue(queue.Task{Message: in}); {
	case errors.Is(err, queue.ErrDuplicate):
		m.sendText(chatID, "⏳ 正在处理，请稍候。\nStill working on it, please wait.")
	case errors.Is(err, queue.ErrQueueFull):
		m.sendText(chatID, "系统繁忙，请稍后重试。\nThe bot is busy, please try again later.")
	case err != nil:
		logrus.WithField("request_id", in.RequestID).Warnf("Message dropped: %v", err)
	}
}

func (m *BotManager) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		m.answerCallback(cq.ID, "")
		return
	}
	chatID := cq.Message.Chat.ID
	if !m.isAllowed(chatID, cq.From) {
		m.answerCallback(cq.ID, "无权限 / Not allowed")
		return
	}

	in := models.InboundMessage{
		RequestID:    uuid.New().String(),
		ChatID:       chatID,
		UserID:       cq.From.ID,
		UserName:     cq.From.UserName,
		CallbackID:   cq.ID,
		CallbackData: cq.Data,
		ReceivedAt:   time.Now(),
	}

	switch err := m.queue.Enqueue(queue.Task{Message: in}); {
	case err == nil:
		m.answerCallback(cq.ID, "")
	case errors.Is(err, queue.ErrDuplicate):
		m.answerCallback(cq.ID, "正在处理 / Working on it")
	case errors.Is(err, queue.ErrQueueFull):
		m.answerCallback(cq.ID, "系统繁忙 / Busy, try again later")
	default:
		m.answerCallback(cq.ID, "")
	}
}

// NotifyDialogExpired tells the user their pending command was dropped.
func (m *BotManager) NotifyDialogExpired(s dialog.DialogState) {
	m.sendText(s.ChatID, "对话已超时，请重新发送命令。\nDialog timed out, please send the command again.")
}

func (m *BotManager) process(ctx context.Context, task queue.Task) {
	res := m.relay.Handle(ctx, task.Message)
	if err := m.deliver(task.Message.ChatID, res); err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": res.RequestID,
			"chat_id":    task.Message.ChatID,
		}).Errorf("Failed to deliver reply: %v", err)
		if logErr := m.logToFile(err.Error(), task.Message.ChatID, res); logErr != nil {
			logrus.Errorf("Failed to record undelivered reply: %v", logErr)
		}
	}
}

// deliver sends the photos first, then the text with the keyboard below it.
// Photo failures are logged only; Instagram CDN links are not always
// fetchable by Telegram.
func (m *BotManager) deliver(chatID int64, res models.Result) error {
	photos := res.Photos
	if len(photos) > maxMediaGroup {
		photos = photos[:maxMediaGroup]
	}
	switch len(photos) {
	case 0:
	case 1:
		if _, err := m.bot.Send(tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photos[0]))); err != nil {
			logrus.WithField("request_id", res.RequestID).Warnf("Failed to send photo: %v", err)
		}
	default:
		files := make([]interface{}, 0, len(photos))
		for _, p := range photos {
			files = append(files, tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(p)))
		}
		if _, err := m.bot.Request(tgbotapi.NewMediaGroup(chatID, files)); err != nil {
			logrus.WithField("request_id", res.RequestID).Warnf("Failed to send media group: %v", err)
		}
	}

	msg := tgbotapi.NewMessage(chatID, res.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb := buildKeyboard(res.Buttons); kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := m.bot.Send(msg)
	return err
}

func buildKeyboard(buttons []models.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, b := range buttons {
		if b.URL != "" {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
		} else {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		if len(row) == 2 || i == len(buttons)-1 {
			rows = append(rows, row)
			row = nil
		}
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (m *BotManager) isAllowed(chatID int64, from *tgbotapi.User) bool {
	if len(m.cfg.AllowedChats) > 0 && !utils.Contains(m.cfg.AllowedChats, chatID) {
		logrus.Debugf("Ignoring chat %d: not in allowed_chats", chatID)
		return false
	}
	if len(m.cfg.AllowedUsers) > 0 && !utils.Contains(m.cfg.AllowedUsers, from.UserName) {
		logrus.Warnf("User not allowed: %s (%d)", from.UserName, from.ID)
		return false
	}
	return true
}

func (m *BotManager) sendText(chatID int64, text string) {
	if _, err := m.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to send message: %v", err)
	}
}

func (m *BotManager) answerCallback(id, text string) {
	if _, err := m.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		logrus.Warnf("Failed to answer callback %s: %v", id, err)
	}
}
