package sessions

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultIdleTTL is the sliding idle window applied when no override is
// configured. An origin with no forwarded traffic for this long is ended.
const DefaultIdleTTL = 60 * time.Second

// EndFunc is invoked when an origin's idle window elapses. It runs on the
// timer's goroutine and must not call back into the Tracker.
type EndFunc func(origin string)

// Option configures a Tracker.
type Option func(*Tracker)

// WithIdleTTL overrides the sliding idle window. Non-positive values are
// ignored.
func WithIdleTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock substitutes the time source. Nil values are ignored.
func WithClock(clk clock.Clock) Option {
	return func(t *Tracker) {
		if clk != nil {
			t.clk = clk
		}
	}
}

// WithLogger sets the logger used for expiry events. Nil values are
// ignored.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// Tracker owns one pending idle timer per origin. Refreshing an origin
// replaces its timer; expiry removes the entry and reports the origin to
// the end callback.
type Tracker struct {
	ttl time.Duration
	clk clock.Clock
	end EndFunc
	log *slog.Logger

	mu     sync.Mutex
	timers map[string]*clock.Timer
}

// NewTracker builds a Tracker that reports idle origins to end.
func NewTracker(end EndFunc, opts ...Option) *Tracker {
	t := &Tracker{
		ttl:    DefaultIdleTTL,
		clk:    clock.New(),
		end:    end,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		timers: make(map[string]*clock.Timer),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	return t
}

// Extend restarts the origin's idle window. Any pending timer for the
// origin is cancelled and a fresh one armed for the full TTL.
func (t *Tracker) Extend(origin string) {
	if origin == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[origin]; ok {
		old.Stop()
	}

	var tm *clock.Timer
	tm = t.clk.AfterFunc(t.ttl, func() {
		t.expire(origin, tm)
	})
	t.timers[origin] = tm
}

// expire runs on the timer goroutine. A timer that fired concurrently
// with an Extend that replaced it finds a different entry in the map and
// abandons the expiry.
func (t *Tracker) expire(origin string, tm *clock.Timer) {
	t.mu.Lock()
	if t.timers[origin] != tm {
		t.mu.Unlock()
		return
	}
	delete(t.timers, origin)
	t.mu.Unlock()

	t.log.Debug("session expired idle", slog.String("origin", origin))

	if t.end != nil {
		t.end(origin)
	}
}

// Forget cancels the origin's pending timer without invoking the end
// callback. It is a no-op for unknown origins.
func (t *Tracker) Forget(origin string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tm, ok := t.timers[origin]; ok {
		tm.Stop()
		delete(t.timers, origin)
	}
}

// Stop cancels every pending timer. No end callbacks fire; the tracker
// simply stops watching.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for origin, tm := range t.timers {
		tm.Stop()
		delete(t.timers, origin)
	}
}

// Pending reports the number of origins with a live idle timer.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.timers)
}
