package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/metrics"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

// Messenger is the part of the Bot API the coordinator renders through.
type Messenger interface {
	Deleter
	SendMessage(ctx context.Context, req tg.SendMessageRequest) (int, error)
	SendPhoto(ctx context.Context, req tg.SendPhotoRequest) (int, error)
	EditMessageText(ctx context.Context, req tg.EditMessageTextRequest) error
}

type Metadata interface {
	Search(ctx context.Context, kind tmdb.Kind, query string, page int) (*tmdb.Page, error)
	SearchMulti(ctx context.Context, query string, page int) (*tmdb.Page, error)
	Lookup(ctx context.Context, kind tmdb.Kind, id int) (*tmdb.Media, error)
	FindByExternalID(ctx context.Context, externalID string) (*tmdb.Media, error)
}

// Journal records searches for the admin commands. Writes are best effort.
type Journal interface {
	RecordSearch(ctx context.Context, userID int64, query string, kind string, results int) error
}

const parseHTML = "HTML"

const (
	textSlowDown  = "⏳ Slow down! Please wait a moment before searching again."
	textNoResults = "❌ No results found. Please try again with a full name."
	textFailed    = "⚠️ Something went wrong. Try again later."
	textBlocked   = "🚫 The movie database refused our request. Try again later."
	textJoin      = "🔒 This bot is for community members only.\n\nJoin using the link below, then tap \"I've joined\"."
	textNotFound  = "❌ Sorry, no details are available for that title."

	toastSlowDown = "⏳ Slow down!"
	toastExpired  = "⌛ This search has expired. Send a new query."
	toastLoading  = "⏳ Loading…"
	toastNoMore   = "❌ No more results."
	toastFailed   = "⚠️ Something went wrong."
	toastJoin     = "🔒 Join first"
	toastNotYet   = "❌ You haven't joined yet."
	toastJoined   = "✅ Thanks for joining!"
)

type Config struct {
	SiteURL     string
	SiteName    string
	NoticeTTL   time.Duration
	MaxPages    int
	InviteLinks []string
}

type Deps struct {
	Messenger Messenger
	Metadata  Metadata
	Limiter   *RateLimiter
	Gate      *Gate
	Sessions  *SessionStore
	Scheduler *Scheduler
	Journal   Journal
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Coordinator drives search sessions: it renders result pages, moves between
// them and answers item selections. A user has at most one live results
// message; starting a new search deletes the previous one.
type Coordinator struct {
	cfg   Config
	links links

	msgr     Messenger
	meta     Metadata
	limiter  *RateLimiter
	gate     *Gate
	sessions *SessionStore
	sched    *Scheduler
	journal  Journal
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewCoordinator(cfg Config, d Deps) *Coordinator {
	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	if cfg.SiteName == "" {
		cfg.SiteName = "Cineflow"
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = 15 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limiter := d.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(0, 0)
	}
	sched := d.Scheduler
	if sched == nil {
		sched = NewScheduler(d.Messenger, log, d.Metrics)
	}
	sessions := d.Sessions
	if sessions == nil {
		sessions = NewSessionStore(sched, 0)
	}
	return &Coordinator{
		cfg:      cfg,
		links:    links{site: cfg.SiteURL, name: cfg.SiteName},
		msgr:     d.Messenger,
		meta:     d.Metadata,
		limiter:  limiter,
		gate:     d.Gate,
		sessions: sessions,
		sched:    sched,
		journal:  d.Journal,
		log:      log,
		metrics:  d.Metrics,
	}
}

// StartSearch runs a multi-kind search for query and renders its first page
// as the user's new session.
func (c *Coordinator) StartSearch(ctx context.Context, userID, chatID int64, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	if !c.admit(ctx, userID, chatID) {
		return
	}

	ticket, prev := c.sessions.Begin(userID)
	if prev != nil {
		c.sched.DeleteNow(ctx, prev.Message)
	}

	res, err := c.meta.SearchMulti(ctx, query, 1)
	if err != nil {
		c.sessions.Abandon(userID, ticket)
		c.metrics.Search("error")
		c.log.Warn("search failed",
			zap.Int64("user_id", userID),
			zap.String("query", query),
			zap.Error(err))
		c.send(ctx, chatID, failureText(err))
		return
	}
	c.record(userID, query, "multi", len(res.Results))
	if len(res.Results) == 0 {
		c.sessions.Abandon(userID, ticket)
		c.metrics.Search("empty")
		c.notice(ctx, chatID, textNoResults)
		return
	}
	if !c.sessions.IsCurrent(userID, ticket) {
		c.metrics.Search("superseded")
		return
	}

	sess := &Session{
		Owner:      userID,
		Query:      query,
		Page:       1,
		TotalPages: c.capPages(res.TotalPages),
		Results:    res.Results,
	}
	msgID, err := c.msgr.SendMessage(ctx, tg.SendMessageRequest{
		ChatID:      chatID,
		Text:        resultsHeader(sess.Query, sess.Page, sess.TotalPages),
		ParseMode:   parseHTML,
		ReplyMarkup: ResultsKeyboard(sess.Results, sess.Page, sess.TotalPages),
	})
	if err != nil {
		c.sessions.Abandon(userID, ticket)
		c.log.Warn("send results failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	sess.Message = MessageRef{ChatID: chatID, MessageID: msgID}
	if !c.sessions.Commit(sess, ticket) {
		// a newer search won while this one was rendering
		c.metrics.Search("superseded")
		c.sched.DeleteNow(ctx, sess.Message)
		return
	}
	c.metrics.Search("ok")
}

// ChangePage renders page of the session shown in messageID. The returned
// text is meant for the callback answer.
func (c *Coordinator) ChangePage(ctx context.Context, userID, chatID int64, messageID, page int) string {
	if !c.limiter.Admit(userID) {
		c.metrics.Limited()
		return toastSlowDown
	}
	if !c.gate.Authorize(ctx, userID) {
		c.promptJoin(ctx, chatID)
		return toastJoin
	}

	ref := MessageRef{ChatID: chatID, MessageID: messageID}
	ticket, prev, ok := c.sessions.BeginFrom(userID, ref)
	if !ok {
		if c.sessions.InFlight(userID) {
			return toastLoading
		}
		return toastExpired
	}
	if page < 1 || page > prev.TotalPages {
		c.restore(ctx, prev, ticket)
		return ""
	}

	res, err := c.meta.SearchMulti(ctx, prev.Query, page)
	if err != nil {
		c.log.Warn("page fetch failed",
			zap.Int64("user_id", userID),
			zap.String("query", prev.Query),
			zap.Int("page", page),
			zap.Error(err))
		c.metrics.Search("error")
		c.restore(ctx, prev, ticket)
		return toastFailed
	}
	if len(res.Results) == 0 {
		c.restore(ctx, prev, ticket)
		return toastNoMore
	}
	if !c.sessions.IsCurrent(userID, ticket) {
		c.metrics.Search("superseded")
		c.sched.DeleteNow(ctx, ref)
		return ""
	}

	sess := &Session{
		Owner:      userID,
		Query:      prev.Query,
		Page:       page,
		TotalPages: c.capPages(res.TotalPages),
		Results:    res.Results,
		Message:    ref,
	}
	text := resultsHeader(sess.Query, sess.Page, sess.TotalPages)
	kb := ResultsKeyboard(sess.Results, sess.Page, sess.TotalPages)
	err = c.msgr.EditMessageText(ctx, tg.EditMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   parseHTML,
		ReplyMarkup: kb,
	})
	if err != nil {
		c.log.Debug("edit results failed, sending a new message", zap.Error(err))
		msgID, sendErr := c.msgr.SendMessage(ctx, tg.SendMessageRequest{
			ChatID:      chatID,
			Text:        text,
			ParseMode:   parseHTML,
			ReplyMarkup: kb,
		})
		if sendErr != nil {
			c.log.Warn("send results failed", zap.Int64("chat_id", chatID), zap.Error(sendErr))
			c.restore(ctx, prev, ticket)
			return toastFailed
		}
		c.sched.DeleteNow(ctx, ref)
		sess.Message = MessageRef{ChatID: chatID, MessageID: msgID}
	}
	if !c.sessions.Commit(sess, ticket) {
		c.metrics.Search("superseded")
		c.sched.DeleteNow(ctx, sess.Message)
		return ""
	}
	c.metrics.Search("page")
	return ""
}

// SelectItem renders the detail card of one result. The session and its
// expiry are left alone.
func (c *Coordinator) SelectItem(ctx context.Context, userID, chatID int64, kind tmdb.Kind, id int) string {
	if !c.limiter.Admit(userID) {
		c.metrics.Limited()
		return toastSlowDown
	}
	if !c.gate.Authorize(ctx, userID) {
		c.promptJoin(ctx, chatID)
		return toastJoin
	}

	m, err := c.meta.Lookup(ctx, kind, id)
	switch {
	case err == nil:
		c.sendCard(ctx, chatID, *m)
	case errors.Is(err, tmdb.ErrNotFound):
		c.send(ctx, chatID, textNotFound)
	default:
		c.log.Warn("lookup failed",
			zap.String("kind", string(kind)),
			zap.Int("id", id),
			zap.Error(err))
		c.send(ctx, chatID, failureText(err))
	}
	return ""
}

// SearchKind answers /movie and /tv: the exact title match wins, otherwise
// the first result.
func (c *Coordinator) SearchKind(ctx context.Context, userID, chatID int64, kind tmdb.Kind, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		c.send(ctx, chatID, fmt.Sprintf("❌ Please enter a %s name. Example:\n/%s RRR", strings.ToLower(kind.Label()), kind))
		return
	}
	if !c.admit(ctx, userID, chatID) {
		return
	}

	res, err := c.meta.Search(ctx, kind, query, 1)
	if err != nil {
		c.metrics.Search("error")
		c.log.Warn("search failed",
			zap.Int64("user_id", userID),
			zap.String("kind", string(kind)),
			zap.String("query", query),
			zap.Error(err))
		c.send(ctx, chatID, failureText(err))
		return
	}
	c.record(userID, query, string(kind), len(res.Results))
	if len(res.Results) == 0 {
		c.metrics.Search("empty")
		c.send(ctx, chatID, textNoResults)
		return
	}
	c.metrics.Search("ok")
	c.sendCard(ctx, chatID, bestMatch(res.Results, query))
}

// LookupID answers /id. Numeric ids go to the kind's lookup and fall back to
// the external id search when that has no title; anything else is treated as
// an IMDb id.
func (c *Coordinator) LookupID(ctx context.Context, userID, chatID int64, kind tmdb.Kind, ref string) {
	if !c.admit(ctx, userID, chatID) {
		return
	}
	ref = strings.TrimSpace(ref)
	notFound := fmt.Sprintf("❌ No %s found with ID %s. Please check the ID and try again.", kind, ref)

	var (
		m   *tmdb.Media
		err error
	)
	if id, convErr := strconv.Atoi(ref); convErr == nil && id > 0 {
		m, err = c.meta.Lookup(ctx, kind, id)
		if errors.Is(err, tmdb.ErrNoTitle) {
			m, err = c.meta.FindByExternalID(ctx, ref)
			if err != nil {
				c.log.Debug("external id fallback failed", zap.String("id", ref), zap.Error(err))
				err = tmdb.ErrNotFound
			}
		}
	} else {
		m, err = c.meta.FindByExternalID(ctx, ref)
	}

	c.record(userID, ref, "id", boolCount(err == nil))
	switch {
	case err == nil:
		c.sendCard(ctx, chatID, *m)
	case errors.Is(err, tmdb.ErrNotFound):
		c.send(ctx, chatID, notFound)
	default:
		c.log.Warn("lookup failed", zap.String("kind", string(kind)), zap.String("id", ref), zap.Error(err))
		c.send(ctx, chatID, failureText(err))
	}
}

// RecheckMembership re-runs the gate for the join prompt in messageID.
func (c *Coordinator) RecheckMembership(ctx context.Context, userID, chatID int64, messageID int) string {
	if !c.limiter.Admit(userID) {
		c.metrics.Limited()
		return toastSlowDown
	}
	c.gate.Forget(userID)
	if !c.gate.Authorize(ctx, userID) {
		return toastNotYet
	}
	c.sched.DeleteNow(ctx, MessageRef{ChatID: chatID, MessageID: messageID})
	c.Welcome(ctx, chatID)
	return toastJoined
}

// Close removes messageID. When it shows the user's session, the session ends
// with it.
func (c *Coordinator) Close(ctx context.Context, userID, chatID int64, messageID int) string {
	ref := MessageRef{ChatID: chatID, MessageID: messageID}
	if ticket, _, ok := c.sessions.BeginFrom(userID, ref); ok {
		c.sessions.Abandon(userID, ticket)
	}
	c.sched.DeleteNow(ctx, ref)
	return ""
}

func (c *Coordinator) Welcome(ctx context.Context, chatID int64) {
	c.send(ctx, chatID, fmt.Sprintf("👋 Welcome to %s Bot!\n\n"+
		"🎥 Search movies & TV shows and watch them directly on %s.\n\n"+
		"Just send a title, or use:\n"+
		"/movie <movie name>\n"+
		"/tv <tv show name>\n"+
		"/id <movie/tv> <tmdb_id>", c.cfg.SiteName, c.cfg.SiteName))
}

func (c *Coordinator) Help(ctx context.Context, chatID int64) {
	c.send(ctx, chatID, "Send any title to get a list of matching movies and shows. "+
		"Tap a result for details; the list disappears after a few minutes.\n\n"+
		"/movie <movie name> - best movie match\n"+
		"/tv <tv show name> - best show match\n"+
		"/id <movie/tv> <tmdb_id> - open a title by TMDB or IMDb id")
}

// admit applies the rate limit and the membership gate to a message,
// answering the user when either refuses.
func (c *Coordinator) admit(ctx context.Context, userID, chatID int64) bool {
	if !c.limiter.Admit(userID) {
		c.metrics.Limited()
		c.notice(ctx, chatID, textSlowDown)
		return false
	}
	if !c.gate.Authorize(ctx, userID) {
		c.promptJoin(ctx, chatID)
		return false
	}
	return true
}

func (c *Coordinator) promptJoin(ctx context.Context, chatID int64) {
	_, err := c.msgr.SendMessage(ctx, tg.SendMessageRequest{
		ChatID:      chatID,
		Text:        textJoin,
		ReplyMarkup: JoinKeyboard(c.cfg.InviteLinks),
	})
	if err != nil {
		c.log.Warn("send join prompt failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// restore puts back a session whose page change did not render. If a newer
// search got in meanwhile, the old message goes instead.
func (c *Coordinator) restore(ctx context.Context, prev *Session, ticket uint64) {
	if !c.sessions.Commit(prev, ticket) {
		c.sched.DeleteNow(ctx, prev.Message)
	}
}

func (c *Coordinator) sendCard(ctx context.Context, chatID int64, m tmdb.Media) {
	caption := cardCaption(m)
	kb := c.links.cardKeyboard(m)
	if photo := tmdb.ImageURL(m.Poster); photo != "" {
		_, err := c.msgr.SendPhoto(ctx, tg.SendPhotoRequest{
			ChatID:      chatID,
			Photo:       photo,
			Caption:     caption,
			ParseMode:   parseHTML,
			ReplyMarkup: kb,
		})
		if err == nil {
			return
		}
		c.log.Warn("send photo failed, falling back to text",
			zap.String("kind", string(m.Kind)),
			zap.Int("id", m.ID),
			zap.Error(err))
	}
	_, err := c.msgr.SendMessage(ctx, tg.SendMessageRequest{
		ChatID:      chatID,
		Text:        caption,
		ParseMode:   parseHTML,
		ReplyMarkup: kb,
	})
	if err != nil {
		c.log.Warn("send card failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *Coordinator) send(ctx context.Context, chatID int64, text string) (MessageRef, bool) {
	msgID, err := c.msgr.SendMessage(ctx, tg.SendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		c.log.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return MessageRef{}, false
	}
	return MessageRef{ChatID: chatID, MessageID: msgID}, true
}

// notice sends text and deletes it after NoticeTTL.
func (c *Coordinator) notice(ctx context.Context, chatID int64, text string) {
	if ref, ok := c.send(ctx, chatID, text); ok {
		c.sched.Schedule(ref, c.cfg.NoticeTTL)
	}
}

func (c *Coordinator) record(userID int64, query, kind string, results int) {
	if c.journal == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.journal.RecordSearch(ctx, userID, query, kind, results); err != nil {
			c.log.Debug("record search failed", zap.Error(err))
		}
	}()
}

func (c *Coordinator) capPages(total int) int {
	if total < 1 {
		return 1
	}
	if total > c.cfg.MaxPages {
		return c.cfg.MaxPages
	}
	return total
}

func bestMatch(results []tmdb.Media, query string) tmdb.Media {
	for _, m := range results {
		if strings.EqualFold(m.Title, query) {
			return m
		}
	}
	return results[0]
}

func failureText(err error) string {
	if errors.Is(err, tmdb.ErrUnauthorized) {
		return textBlocked
	}
	return textFailed
}

func boolCount(ok bool) int {
	if ok {
		return 1
	}
	return 0
}
