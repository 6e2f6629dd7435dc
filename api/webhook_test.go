package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/bot"
	"github.com/Devendrasinghadiya/dekhomovie/internal/storage"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

const (
	userID  = int64(501)
	adminID = int64(-1001)
)

type fakeBot struct {
	mu      sync.Mutex
	nextID  int
	texts   []string
	photos  []string
	answers map[string]string
}

func (f *fakeBot) SendMessage(_ context.Context, req tg.SendMessageRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, req.Text)
	return f.nextID, nil
}

func (f *fakeBot) SendPhoto(_ context.Context, req tg.SendPhotoRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.photos = append(f.photos, req.Photo)
	return f.nextID, nil
}

func (f *fakeBot) EditMessageText(context.Context, tg.EditMessageTextRequest) error { return nil }

func (f *fakeBot) DeleteMessage(context.Context, int64, int) error { return nil }

func (f *fakeBot) AnswerCallbackQuery(_ context.Context, id string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers == nil {
		f.answers = make(map[string]string)
	}
	f.answers[id] = text
	return nil
}

func (f *fakeBot) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeBot) Answer(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.answers[id]
	return text, ok
}

type fakeMeta struct {
	mu      sync.Mutex
	queries []string
	panics  bool
}

func (f *fakeMeta) note(q string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
}

func (f *fakeMeta) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeMeta) Search(_ context.Context, kind tmdb.Kind, query string, _ int) (*tmdb.Page, error) {
	f.note(string(kind) + ":" + query)
	return &tmdb.Page{Page: 1, TotalPages: 1, Results: []tmdb.Media{{Kind: kind, ID: 1, Title: query, Poster: "/p.jpg"}}}, nil
}

func (f *fakeMeta) SearchMulti(_ context.Context, query string, _ int) (*tmdb.Page, error) {
	f.note("multi:" + query)
	return &tmdb.Page{Page: 1, TotalPages: 1}, nil
}

func (f *fakeMeta) Lookup(_ context.Context, kind tmdb.Kind, id int) (*tmdb.Media, error) {
	if f.panics {
		panic("boom")
	}
	f.note("lookup:" + string(kind))
	return &tmdb.Media{Kind: kind, ID: id, Title: "Found", Poster: "/p.jpg"}, nil
}

func (f *fakeMeta) FindByExternalID(context.Context, string) (*tmdb.Media, error) {
	return nil, tmdb.ErrNotFound
}

type fakeJournal struct {
	mu      sync.Mutex
	touched []int64
}

func (f *fakeJournal) TouchUser(_ context.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeJournal) Stats(context.Context) (storage.Stats, error) {
	return storage.Stats{Users: 3, Searches: 12}, nil
}

func (f *fakeJournal) ListRecent(_ context.Context, limit int) ([]storage.SearchRecord, error) {
	return []storage.SearchRecord{{UserID: userID, Query: "dune", Kind: "multi", Results: 4, CreatedAt: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)}}, nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeBot, *fakeMeta, *fakeJournal) {
	t.Helper()
	fb := &fakeBot{}
	meta := &fakeMeta{}
	journal := &fakeJournal{}
	coord := bot.NewCoordinator(bot.Config{SiteURL: "https://cineflow.example"}, bot.Deps{
		Messenger: fb,
		Metadata:  meta,
		Logger:    zap.NewNop(),
	})
	h := New(coord, fb, Options{AdminChatID: adminID, Journal: journal, Logger: zap.NewNop()})
	return h, fb, meta, journal
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "neo"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func plain(text string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}}
}

func callback(id, data string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 3, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      id,
		From:    &tgbotapi.User{ID: userID},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: userID}},
	}}
}

func TestCommands(t *testing.T) {
	cases := []struct {
		text  string
		query string
		reply string
	}{
		{"/start", "", "👋 Welcome to Cineflow Bot!"},
		{"/help", "", "Send any title"},
		{"/movie Inception", "movie:Inception", ""},
		{"/tv Dark", "tv:Dark", ""},
		{"/id movie 27205", "lookup:movie", ""},
		{"/id", "", "❌ Usage: /id"},
		{"/id person 3", "", "❌ Usage: /id"},
		{"/nope", "", "🤔 Unknown command"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			h, fb, meta, _ := newTestHandler(t)
			h.HandleUpdate(context.Background(), command(userID, tc.text))

			if tc.query != "" {
				assert.Equal(t, []string{tc.query}, meta.Queries())
			} else {
				assert.Empty(t, meta.Queries())
			}
			if tc.reply != "" {
				texts := fb.Texts()
				require.Len(t, texts, 1)
				assert.True(t, strings.HasPrefix(texts[0], tc.reply), texts[0])
			}
		})
	}
}

func TestFreeTextStartsSearch(t *testing.T) {
	h, fb, meta, journal := newTestHandler(t)

	h.HandleUpdate(context.Background(), plain("  batman  "))

	assert.Equal(t, []string{"multi:batman"}, meta.Queries())
	assert.Len(t, fb.Texts(), 1)
	assert.Eventually(t, func() bool {
		journal.mu.Lock()
		defer journal.mu.Unlock()
		return len(journal.touched) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAdminCommandsOnlyInAdminChat(t *testing.T) {
	h, fb, _, _ := newTestHandler(t)

	h.HandleUpdate(context.Background(), command(userID, "/stats"))
	assert.Empty(t, fb.Texts())

	h.HandleUpdate(context.Background(), command(adminID, "/stats"))
	h.HandleUpdate(context.Background(), command(adminID, "/recent 5"))
	texts := fb.Texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "👥 Users: 3\n🔎 Searches: 12\n🗂 Live sessions: 0", texts[0])
	assert.Equal(t, `10-16 09:30 501 multi "dune" (4)`, texts[1])
}

func TestCallbacksAreAnswered(t *testing.T) {
	h, _, meta, _ := newTestHandler(t)
	ctx := context.Background()

	h.HandleUpdate(ctx, callback("a", "select_tv_1399"))
	text, ok := replies(h).Answer("a")
	assert.True(t, ok)
	assert.Empty(t, text)
	assert.Equal(t, []string{"lookup:tv"}, meta.Queries())

	h.HandleUpdate(ctx, callback("b", "garbage"))
	_, ok = replies(h).Answer("b")
	assert.True(t, ok)

	h.HandleUpdate(ctx, callback("c", "search_next_2"))
	text, _ = replies(h).Answer("c")
	assert.Equal(t, "⌛ This search has expired. Send a new query.", text)
}

func TestPanicIsContained(t *testing.T) {
	h, _, meta, _ := newTestHandler(t)
	meta.panics = true

	assert.NotPanics(t, func() {
		h.HandleUpdate(context.Background(), callback("p", "select_movie_1"))
	})
	_, ok := replies(h).Answer("p")
	assert.True(t, ok)
}

func TestServeHTTP(t *testing.T) {
	h, fbot, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"update_id":9,"message":{"message_id":1,"date":0,"from":{"id":501,"is_bot":false,"first_name":"N"},` +
		`"chat":{"id":501,"type":"private"},"text":"/start","entities":[{"type":"bot_command","offset":0,"length":6}]}}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.Wait()
	texts := fbot.Texts()
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0], "👋 Welcome"))
}

func TestPollStopsWithContext(t *testing.T) {
	h, fbot, _, _ := newTestHandler(t)
	updates := make(chan tgbotapi.Update, 1)
	updates <- command(userID, "/help")
	close(updates)

	h.Poll(context.Background(), updates)
	h.Wait()
	assert.Len(t, fbot.Texts(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Poll(ctx, make(chan tgbotapi.Update))
}

func replies(h *Handler) *fakeBot {
	return h.reply.(*fakeBot)
}
