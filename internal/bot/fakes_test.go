package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type manualTimer struct {
	parent *manualTimers
	d      time.Duration
	f      func()
	active bool
}

func (t *manualTimer) Stop() bool {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

// manualTimers replaces time.AfterFunc; nothing fires until the test says so.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualTimers) afterFunc(d time.Duration, f func()) stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{parent: m, d: d, f: f, active: true}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualTimers) active() []*manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualTimer
	for _, t := range m.timers {
		if t.active {
			out = append(out, t)
		}
	}
	return out
}

func (m *manualTimers) fireAll() {
	for _, t := range m.active() {
		m.mu.Lock()
		t.active = false
		m.mu.Unlock()
		t.f()
	}
}

func newTestScheduler(d Deleter) (*Scheduler, *manualTimers) {
	s := NewScheduler(d, zap.NewNop(), nil)
	mt := &manualTimers{}
	s.afterFunc = mt.afterFunc
	s.now = func() time.Time { return t0 }
	return s, mt
}

type sentMessage struct {
	ChatID   int64
	ID       int
	Text     string
	Photo    string
	Keyboard *tg.InlineKeyboardMarkup
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMessage
	edits   []tg.EditMessageTextRequest
	deleted []MessageRef

	sendErr   error
	photoErr  error
	editErr   error
	deleteErr error
}

func (f *fakeMessenger) SendMessage(_ context.Context, req tg.SendMessageRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: req.ChatID, ID: f.nextID, Text: req.Text, Keyboard: req.ReplyMarkup})
	return f.nextID, nil
}

func (f *fakeMessenger) SendPhoto(_ context.Context, req tg.SendPhotoRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoErr != nil {
		return 0, f.photoErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: req.ChatID, ID: f.nextID, Text: req.Caption, Photo: req.Photo, Keyboard: req.ReplyMarkup})
	return f.nextID, nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, req tg.EditMessageTextRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, req)
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, MessageRef{ChatID: chatID, MessageID: messageID})
	return f.deleteErr
}

func (f *fakeMessenger) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeMessenger) Edits() []tg.EditMessageTextRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tg.EditMessageTextRequest(nil), f.edits...)
}

func (f *fakeMessenger) Deleted() []MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MessageRef(nil), f.deleted...)
}

type fakeMetadata struct {
	mu sync.Mutex

	multi  func(query string, page int) (*tmdb.Page, error)
	search func(kind tmdb.Kind, query string, page int) (*tmdb.Page, error)
	lookup func(kind tmdb.Kind, id int) (*tmdb.Media, error)
	find   func(id string) (*tmdb.Media, error)

	multiCalls  int
	lookupCalls int
	findCalls   int
}

var errNotStubbed = errors.New("not stubbed")

func (f *fakeMetadata) SearchMulti(_ context.Context, query string, page int) (*tmdb.Page, error) {
	f.mu.Lock()
	f.multiCalls++
	fn := f.multi
	f.mu.Unlock()
	if fn == nil {
		return nil, errNotStubbed
	}
	return fn(query, page)
}

func (f *fakeMetadata) Search(_ context.Context, kind tmdb.Kind, query string, page int) (*tmdb.Page, error) {
	if f.search == nil {
		return nil, errNotStubbed
	}
	return f.search(kind, query, page)
}

func (f *fakeMetadata) Lookup(_ context.Context, kind tmdb.Kind, id int) (*tmdb.Media, error) {
	f.mu.Lock()
	f.lookupCalls++
	f.mu.Unlock()
	if f.lookup == nil {
		return nil, errNotStubbed
	}
	return f.lookup(kind, id)
}

func (f *fakeMetadata) FindByExternalID(_ context.Context, id string) (*tmdb.Media, error) {
	f.mu.Lock()
	f.findCalls++
	f.mu.Unlock()
	if f.find == nil {
		return nil, errNotStubbed
	}
	return f.find(id)
}

func (f *fakeMetadata) MultiCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.multiCalls
}

type fakeChecker struct {
	mu       sync.Mutex
	statuses map[string]string
	errs     map[string]error
	calls    []string
}

func (f *fakeChecker) ChatMemberStatus(_ context.Context, chat string, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chat)
	if err := f.errs[chat]; err != nil {
		return "", err
	}
	return f.statuses[chat], nil
}

func (f *fakeChecker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
