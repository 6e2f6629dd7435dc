package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/bot"
	"github.com/Devendrasinghadiya/dekhomovie/internal/metrics"
	"github.com/Devendrasinghadiya/dekhomovie/internal/storage"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

// Replier is the transport the router answers through directly.
type Replier interface {
	SendMessage(ctx context.Context, req tg.SendMessageRequest) (int, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
}

// Journal backs user tracking and the admin commands.
type Journal interface {
	TouchUser(ctx context.Context, userID int64, username string) error
	Stats(ctx context.Context) (storage.Stats, error)
	ListRecent(ctx context.Context, limit int) ([]storage.SearchRecord, error)
}

type Options struct {
	AdminChatID int64
	Journal     Journal
	Sessions    *bot.SessionStore
	// Timeout bounds the handling of one update; 30s when zero.
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Handler routes updates to the coordinator. Every update runs in its own
// goroutine; a panic in one is logged and does not affect the others.
type Handler struct {
	coord    *bot.Coordinator
	reply    Replier
	journal  Journal
	sessions *bot.SessionStore
	admin    int64
	timeout  time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics

	wg sync.WaitGroup
}

func New(coord *bot.Coordinator, reply Replier, opts Options) *Handler {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		coord:    coord,
		reply:    reply,
		journal:  opts.Journal,
		sessions: opts.Sessions,
		admin:    opts.AdminChatID,
		timeout:  timeout,
		log:      log,
		metrics:  opts.Metrics,
	}
}

// Dispatch handles u in the background.
func (h *Handler) Dispatch(u tgbotapi.Update) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		h.HandleUpdate(ctx, u)
	}()
}

// Wait blocks until every dispatched update has been handled.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Poll dispatches updates until ctx is done or the channel closes.
func (h *Handler) Poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.Dispatch(u)
		}
	}
}

// ServeHTTP accepts webhook deliveries.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		h.log.Debug("bad webhook payload", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.Dispatch(u)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	log := h.log.With(zap.String("trace_id", uuid.NewString()), zap.Int("update_id", u.UpdateID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("update handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		h.metrics.Update("callback")
		h.handleCallback(ctx, log, u.CallbackQuery)
	case u.Message != nil:
		h.metrics.Update("message")
		h.handleMessage(ctx, log, u.Message)
	default:
		h.metrics.Update("other")
	}
}

func (h *Handler) handleMessage(ctx context.Context, log *zap.Logger, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	userID, chatID := msg.From.ID, msg.Chat.ID
	h.touch(userID, msg.From.UserName)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if !msg.IsCommand() {
		log.Debug("search", zap.Int64("user_id", userID), zap.String("query", text))
		h.coord.StartSearch(ctx, userID, chatID, text)
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch cmd := msg.Command(); cmd {
	case "start":
		h.coord.Welcome(ctx, chatID)
	case "help":
		h.coord.Help(ctx, chatID)
	case "movie":
		h.coord.SearchKind(ctx, userID, chatID, tmdb.KindMovie, args)
	case "tv":
		h.coord.SearchKind(ctx, userID, chatID, tmdb.KindTV, args)
	case "id":
		h.lookupID(ctx, userID, chatID, args)
	case "stats":
		if h.isAdmin(chatID) {
			h.stats(ctx, chatID)
		}
	case "recent":
		if h.isAdmin(chatID) {
			h.recent(ctx, chatID, args)
		}
	default:
		log.Debug("unknown command", zap.String("command", cmd))
		h.send(ctx, chatID, "🤔 Unknown command. Send /help to see what I can do.")
	}
}

func (h *Handler) handleCallback(ctx context.Context, log *zap.Logger, cq *tgbotapi.CallbackQuery) {
	toast := ""
	defer func() {
		if err := h.reply.AnswerCallbackQuery(ctx, cq.ID, toast); err != nil {
			log.Debug("answer callback failed", zap.Error(err))
		}
	}()
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	userID, chatID, msgID := cq.From.ID, cq.Message.Chat.ID, cq.Message.MessageID
	h.touch(userID, cq.From.UserName)

	cb, ok := bot.ParseCallback(cq.Data)
	if !ok {
		log.Debug("unknown callback", zap.String("data", cq.Data))
		return
	}
	switch cb.Action {
	case bot.ActionSelect:
		toast = h.coord.SelectItem(ctx, userID, chatID, cb.Kind, cb.ID)
	case bot.ActionPage:
		toast = h.coord.ChangePage(ctx, userID, chatID, msgID, cb.Page)
	case bot.ActionCheckMembership:
		toast = h.coord.RecheckMembership(ctx, userID, chatID, msgID)
	case bot.ActionClose:
		toast = h.coord.Close(ctx, userID, chatID, msgID)
	}
}

const usageID = "❌ Usage: /id <movie|tv> <id>\nExample: /id movie 27205"

func (h *Handler) lookupID(ctx context.Context, userID, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		h.send(ctx, chatID, usageID)
		return
	}
	kind, ok := tmdb.ParseKind(fields[0])
	if !ok {
		h.send(ctx, chatID, usageID)
		return
	}
	h.coord.LookupID(ctx, userID, chatID, kind, fields[1])
}

func (h *Handler) isAdmin(chatID int64) bool {
	return h.admin != 0 && chatID == h.admin
}

func (h *Handler) stats(ctx context.Context, chatID int64) {
	if h.journal == nil {
		h.send(ctx, chatID, "Journal not configured")
		return
	}
	st, err := h.journal.Stats(ctx)
	if err != nil {
		h.log.Warn("stats failed", zap.Error(err))
		h.send(ctx, chatID, "Stats unavailable")
		return
	}
	live := 0
	if h.sessions != nil {
		live = h.sessions.Len()
	}
	h.send(ctx, chatID, fmt.Sprintf("👥 Users: %d\n🔎 Searches: %d\n🗂 Live sessions: %d", st.Users, st.Searches, live))
}

func (h *Handler) recent(ctx context.Context, chatID int64, args string) {
	if h.journal == nil {
		h.send(ctx, chatID, "Journal not configured")
		return
	}
	limit := 10
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 {
		limit = n
	}
	items, err := h.journal.ListRecent(ctx, limit)
	if err != nil {
		h.log.Warn("recent searches failed", zap.Error(err))
		h.send(ctx, chatID, "Recent searches unavailable")
		return
	}
	if len(items) == 0 {
		h.send(ctx, chatID, "Empty")
		return
	}
	b := strings.Builder{}
	for _, it := range items {
		b.WriteString(fmt.Sprintf("%s %d %s %q (%d)\n", it.CreatedAt.UTC().Format("01-02 15:04"), it.UserID, it.Kind, it.Query, it.Results))
	}
	h.send(ctx, chatID, strings.TrimSpace(b.String()))
}

// touch records the user in the journal without holding up the update.
func (h *Handler) touch(userID int64, username string) {
	if h.journal == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.journal.TouchUser(ctx, userID, username); err != nil {
			h.log.Debug("touch user failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if _, err := h.reply.SendMessage(ctx, tg.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		h.log.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
