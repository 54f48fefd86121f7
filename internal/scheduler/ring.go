package scheduler

import (
	"sync"
	"time"
)

// Activity is one recent cycle outcome kept for the notifier summary and
// operator inspection.
type Activity struct {
	Time   time.Time
	Coin   string
	Action string
	Detail string
}

// activityRing is a fixed-capacity ring of recent activities, newest first
// on read.
type activityRing struct {
	mu   sync.Mutex
	buf  []Activity
	next int
	full bool
}

func newActivityRing(capacity int) *activityRing {
	if capacity <= 0 {
		capacity = 32
	}
	return &activityRing{buf: make([]Activity, capacity)}
}

func (r *activityRing) add(a Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = a
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *activityRing) recent() []Activity {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]Activity, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
