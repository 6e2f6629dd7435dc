package tg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client wraps the Bot API. Every outbound call waits on a shared limiter so a
// burst of deletions or renders stays under Telegram's global flood limit.
type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     *zap.Logger
}

type Options struct {
	// Endpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server.
	Endpoint string
	// RPS caps outbound calls per second; 30 when zero.
	RPS    int
	Logger *zap.Logger
}

func NewClient(token string, opts Options) (*Client, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 30
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 45 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

func (c *Client) Username() string {
	return c.api.Self.UserName
}

type InlineKeyboardButton struct {
	Text              string
	URL               string
	CallbackData      string
	SwitchInlineQuery *string
}

func StrPtr(s string) *string { return &s }

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton
}

func NewInlineKeyboardMarkup(rows [][]InlineKeyboardButton) InlineKeyboardMarkup {
	return InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (m *InlineKeyboardMarkup) toAPI() *tgbotapi.InlineKeyboardMarkup {
	if m == nil || len(m.InlineKeyboard) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(m.InlineKeyboard))
	for _, r := range m.InlineKeyboard {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			btn := tgbotapi.InlineKeyboardButton{Text: b.Text}
			switch {
			case b.URL != "":
				btn.URL = StrPtr(b.URL)
			case b.SwitchInlineQuery != nil:
				btn.SwitchInlineQuery = StrPtr(*b.SwitchInlineQuery)
			default:
				btn.CallbackData = StrPtr(b.CallbackData)
			}
			row = append(row, btn)
		}
		rows = append(rows, row)
	}
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

type SendMessageRequest struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

// SendMessage returns the id of the sent message.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(req.ChatID, req.Text)
	msg.ParseMode = req.ParseMode
	msg.DisableWebPagePreview = true
	if kb := req.ReplyMarkup.toAPI(); kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram sendMessage: %w", err)
	}
	return sent.MessageID, nil
}

type SendPhotoRequest struct {
	ChatID      int64
	Photo       string
	Caption     string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

func (c *Client) SendPhoto(ctx context.Context, req SendPhotoRequest) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	photo := tgbotapi.NewPhoto(req.ChatID, tgbotapi.FileURL(req.Photo))
	photo.Caption = req.Caption
	photo.ParseMode = req.ParseMode
	if kb := req.ReplyMarkup.toAPI(); kb != nil {
		photo.ReplyMarkup = *kb
	}
	sent, err := c.api.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("telegram sendPhoto: %w", err)
	}
	return sent.MessageID, nil
}

type EditMessageTextRequest struct {
	ChatID      int64
	MessageID   int
	Text        string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(req.ChatID, req.MessageID, req.Text)
	edit.ParseMode = req.ParseMode
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = req.ReplyMarkup.toAPI()
	if _, err := c.api.Request(edit); err != nil {
		return fmt.Errorf("telegram editMessageText: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("telegram deleteMessage: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackQueryID, text)); err != nil {
		return fmt.Errorf("telegram answerCallbackQuery: %w", err)
	}
	return nil
}

// ChatMemberStatus returns the membership status of userID in chat, where chat
// is a numeric chat id or an @username.
func (c *Client) ChatMemberStatus(ctx context.Context, chat string, userID int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	ref, err := chatRef(chat, userID)
	if err != nil {
		return "", err
	}
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: ref})
	if err != nil {
		return "", fmt.Errorf("telegram getChatMember %s: %w", chat, err)
	}
	return member.Status, nil
}

func chatRef(chat string, userID int64) (tgbotapi.ChatConfigWithUser, error) {
	chat = strings.TrimSpace(chat)
	if strings.HasPrefix(chat, "@") {
		return tgbotapi.ChatConfigWithUser{SuperGroupUsername: chat, UserID: userID}, nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return tgbotapi.ChatConfigWithUser{}, fmt.Errorf("invalid chat reference %q", chat)
	}
	return tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userID}, nil
}

type Command struct {
	Command     string
	Description string
}

func (c *Client) SetCommands(ctx context.Context, cmds []Command) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	out := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, tgbotapi.BotCommand{Command: cmd.Command, Description: cmd.Description})
	}
	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(out...)); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	return nil
}

// Updates starts long polling. The webhook is dropped first, Telegram refuses
// getUpdates while one is set.
func (c *Client) Updates(ctx context.Context) (tgbotapi.UpdatesChannel, error) {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return nil, fmt.Errorf("telegram deleteWebhook: %w", err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}
	return c.api.GetUpdatesChan(u), nil
}

func (c *Client) StopUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *Client) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook url: %w", err)
	}
	wh.AllowedUpdates = []string{"message", "callback_query"}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	return nil
}

// IsMessageGone reports whether err says the target message no longer exists
// or cannot be touched by the bot any more.
func IsMessageGone(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		return strings.Contains(msg, "message to delete not found") ||
			strings.Contains(msg, "message can't be deleted") ||
			strings.Contains(msg, "message to edit not found")
	}
	return false
}
