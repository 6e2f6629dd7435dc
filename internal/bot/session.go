package bot

import (
	"sync"
	"time"

	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

// Session is a user's live paginated search.
type Session struct {
	Owner      int64
	Query      string
	Page       int
	TotalPages int
	Results    []tmdb.Media
	Message    MessageRef

	seq uint64
}

// SessionStore holds at most one session per user. Every search or page
// change first takes a ticket with Begin; only the holder of the newest
// ticket may Commit, so a slow render for a superseded ticket is rejected.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	// current is the newest ticket per owner, kept while a render is in
	// flight or its session is live
	current map[int64]uint64
	seq     uint64

	sched    *Scheduler
	ttl      time.Duration
	onChange func(n int)
}

func NewSessionStore(sched *Scheduler, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 180 * time.Second
	}
	return &SessionStore{
		sessions: make(map[int64]*Session),
		current:  make(map[int64]uint64),
		sched:    sched,
		ttl:      ttl,
	}
}

// OnChange registers a hook called with the live session count after every
// change. It is called with the store lock held and must not call back into
// the store.
func (s *SessionStore) OnChange(f func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = f
}

// Begin supersedes the owner's session. The previous session, if any, is
// removed and its expiry cancelled; it is returned so the caller can reuse or
// delete its message.
func (s *SessionStore) Begin(owner int64) (uint64, *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(owner)
}

// BeginFrom is Begin for a callback coming from ref. It fails without
// touching anything unless ref is the message of the owner's live session.
func (s *SessionStore) BeginFrom(owner int64, ref MessageRef) (uint64, *Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[owner]
	if !ok || cur.Message != ref {
		return 0, nil, false
	}
	ticket, prev := s.begin(owner)
	return ticket, prev, true
}

func (s *SessionStore) begin(owner int64) (uint64, *Session) {
	s.seq++
	ticket := s.seq
	s.current[owner] = ticket

	prev, ok := s.sessions[owner]
	if !ok {
		return ticket, nil
	}
	delete(s.sessions, owner)
	s.changed()
	if s.sched != nil && !prev.Message.IsZero() {
		s.sched.Cancel(prev.Message)
	}
	cp := *prev
	return ticket, &cp
}

// IsCurrent reports whether ticket is still the owner's newest.
func (s *SessionStore) IsCurrent(owner int64, ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[owner] == ticket
}

// InFlight reports whether the owner has a render in progress and no live
// session yet.
func (s *SessionStore) InFlight(owner int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, live := s.sessions[owner]
	_, claimed := s.current[owner]
	return claimed && !live
}

// Commit installs sess under ticket and arms its expiry. It returns false,
// leaving the store untouched, when ticket has been superseded.
func (s *SessionStore) Commit(sess *Session, ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := sess.Owner
	if s.current[owner] != ticket {
		return false
	}
	cp := *sess
	cp.seq = ticket
	s.sessions[owner] = &cp
	s.changed()
	if s.sched != nil {
		s.sched.ScheduleFunc(cp.Message, s.ttl, func() { s.expire(owner, ticket) })
	}
	return true
}

// Abandon releases ticket when its render produced no session.
func (s *SessionStore) Abandon(owner int64, ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current[owner] == ticket {
		if _, live := s.sessions[owner]; !live {
			delete(s.current, owner)
		}
	}
}

// Get returns a copy of the owner's live session.
func (s *SessionStore) Get(owner int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[owner]
	if !ok {
		return nil
	}
	cp := *sess
	return &cp
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) expire(owner int64, ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[owner]
	if !ok || sess.seq != ticket {
		return
	}
	delete(s.sessions, owner)
	if s.current[owner] == ticket {
		delete(s.current, owner)
	}
	s.changed()
}

func (s *SessionStore) changed() {
	if s.onChange != nil {
		s.onChange(len(s.sessions))
	}
}
