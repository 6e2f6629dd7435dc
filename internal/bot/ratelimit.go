package bot

import (
	"sync"
	"time"
)

// sweepThreshold is the number of tracked identities above which expired
// windows are dropped before a new identity is added.
const sweepThreshold = 4096

type rateState struct {
	windowStart time.Time
	count       int
}

// RateLimiter admits at most burst requests per identity inside a fixed
// window that starts at the identity's first request. It is advisory and
// process local.
type RateLimiter struct {
	mu     sync.Mutex
	states map[int64]*rateState
	window time.Duration
	burst  int
	now    func() time.Time
}

func NewRateLimiter(window time.Duration, burst int) *RateLimiter {
	if window <= 0 {
		window = 2 * time.Second
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimiter{
		states: make(map[int64]*rateState),
		window: window,
		burst:  burst,
		now:    time.Now,
	}
}

func (r *RateLimiter) Admit(id int64) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[id]
	if !ok {
		if len(r.states) >= sweepThreshold {
			r.sweep(now)
		}
		st = &rateState{}
		r.states[id] = st
	}
	if !ok || now.Sub(st.windowStart) >= r.window {
		st.windowStart = now
		st.count = 1
		return true
	}
	if st.count >= r.burst {
		return false
	}
	st.count++
	return true
}

func (r *RateLimiter) sweep(now time.Time) {
	for id, st := range r.states {
		if now.Sub(st.windowStart) >= r.window {
			delete(r.states, id)
		}
	}
}
