package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/metrics"
)

// MemberChecker resolves a user's membership status in a chat.
type MemberChecker interface {
	ChatMemberStatus(ctx context.Context, chat string, userID int64) (string, error)
}

// Gate restricts the bot to members of at least one configured chat.
// A nil *Gate, or one with no chats, lets everybody through.
type Gate struct {
	checker MemberChecker
	chats   []string
	allow   map[int64]struct{}
	log     *zap.Logger
	metrics *metrics.Metrics

	memoTTL time.Duration
	now     func() time.Time

	mu   sync.Mutex
	memo map[int64]time.Time
}

type GateOptions struct {
	Chats   []string
	Allow   []int64
	MemoTTL time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func NewGate(checker MemberChecker, opts GateOptions) *Gate {
	allow := make(map[int64]struct{}, len(opts.Allow))
	for _, id := range opts.Allow {
		allow[id] = struct{}{}
	}
	memoTTL := opts.MemoTTL
	if memoTTL <= 0 {
		memoTTL = time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		checker: checker,
		chats:   opts.Chats,
		allow:   allow,
		log:     log,
		metrics: opts.Metrics,
		memoTTL: memoTTL,
		now:     time.Now,
		memo:    make(map[int64]time.Time),
	}
}

func (g *Gate) Enabled() bool {
	return g != nil && len(g.chats) > 0
}

// Authorize reports whether userID may use the bot. Lookup failures deny.
func (g *Gate) Authorize(ctx context.Context, userID int64) bool {
	if !g.Enabled() {
		return true
	}
	if _, ok := g.allow[userID]; ok {
		return true
	}
	if g.remembered(userID) {
		return true
	}
	for _, chat := range g.chats {
		status, err := g.checker.ChatMemberStatus(ctx, chat, userID)
		if err != nil {
			g.log.Warn("membership lookup failed",
				zap.String("chat", chat),
				zap.Int64("user_id", userID),
				zap.Error(err))
			continue
		}
		if isMember(status) {
			g.remember(userID)
			return true
		}
	}
	g.metrics.Unauthorized()
	return false
}

// Forget drops a memoized positive result so the next Authorize asks again.
func (g *Gate) Forget(userID int64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.memo, userID)
	g.mu.Unlock()
}

func (g *Gate) remembered(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.memo[userID]
	if !ok {
		return false
	}
	if !g.now().Before(until) {
		delete(g.memo, userID)
		return false
	}
	return true
}

func (g *Gate) remember(userID int64) {
	g.mu.Lock()
	g.memo[userID] = g.now().Add(g.memoTTL)
	g.mu.Unlock()
}

func isMember(status string) bool {
	switch status {
	case "creator", "administrator", "member":
		return true
	}
	return false
}
