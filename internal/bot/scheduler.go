package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/metrics"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
)

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type stopper interface {
	Stop() bool
}

type pendingDeletion struct {
	id       uint64
	deadline time.Time
	timer    stopper
	after    func()
}

// Scheduler removes messages after a delay. There is at most one pending
// deletion per message; scheduling again replaces the previous one.
type Scheduler struct {
	mu      sync.Mutex
	pending map[MessageRef]*pendingDeletion
	seq     uint64

	deleter Deleter
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper
}

func NewScheduler(deleter Deleter, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		pending: make(map[MessageRef]*pendingDeletion),
		deleter: deleter,
		log:     log,
		metrics: m,
		timeout: 10 * time.Second,
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Schedule arms a deletion of ref after ttl.
func (s *Scheduler) Schedule(ref MessageRef, ttl time.Duration) {
	s.ScheduleFunc(ref, ttl, nil)
}

// ScheduleFunc is Schedule with a hook that runs after the deletion was
// attempted. The hook does not run when the deletion is cancelled or replaced.
func (s *Scheduler) ScheduleFunc(ref MessageRef, ttl time.Duration, after func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[ref]; ok {
		p.timer.Stop()
	}
	s.seq++
	id := s.seq
	p := &pendingDeletion{id: id, deadline: s.now().Add(ttl), after: after}
	s.pending[ref] = p
	// fire takes s.mu, so it cannot observe p before timer is set
	p.timer = s.afterFunc(ttl, func() { s.fire(ref, id) })
}

// Cancel drops the pending deletion of ref. It reports whether one was
// pending; cancelling a fired or unknown deletion is a no-op.
func (s *Scheduler) Cancel(ref MessageRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[ref]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, ref)
	return true
}

func (s *Scheduler) Pending(ref MessageRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[ref]
	return ok
}

// Deadline returns when the pending deletion of ref fires.
func (s *Scheduler) Deadline(ref MessageRef) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[ref]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// DeleteNow cancels any pending deletion of ref and deletes it right away.
func (s *Scheduler) DeleteNow(ctx context.Context, ref MessageRef) {
	if ref.IsZero() {
		return
	}
	s.Cancel(ref)
	s.delete(ctx, ref)
}

// Stop cancels every pending deletion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, ref)
	}
}

func (s *Scheduler) fire(ref MessageRef, id uint64) {
	s.mu.Lock()
	p, ok := s.pending[ref]
	if !ok || p.id != id {
		// replaced or cancelled after the timer already started
		s.mu.Unlock()
		return
	}
	delete(s.pending, ref)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.delete(ctx, ref)
	if p.after != nil {
		p.after()
	}
}

func (s *Scheduler) delete(ctx context.Context, ref MessageRef) {
	err := s.deleter.DeleteMessage(ctx, ref.ChatID, ref.MessageID)
	switch {
	case err == nil:
		s.metrics.Deletion("ok")
	case tg.IsMessageGone(err):
		s.metrics.Deletion("gone")
		s.log.Debug("message already gone", zap.Int64("chat_id", ref.ChatID), zap.Int("message_id", ref.MessageID))
	default:
		s.metrics.Deletion("error")
		s.log.Warn("delete message failed",
			zap.Int64("chat_id", ref.ChatID),
			zap.Int("message_id", ref.MessageID),
			zap.Error(err))
	}
}
