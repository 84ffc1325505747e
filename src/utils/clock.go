package utils

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time so timers can be driven virtually in tests.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker
}

type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// -----------------------------------------------------------------------------
// Real clock
// -----------------------------------------------------------------------------

type realClock struct{}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time { return r.t.C }
func (r *realTimer) Stop() bool          { return r.t.Stop() }

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// -----------------------------------------------------------------------------
// Fake clock
// -----------------------------------------------------------------------------

// FakeClock only moves when Advance is called.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	clock    *FakeClock
	deadline time.Time
	period   time.Duration // zero for one-shot timers
	ch       chan time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) NewTimer(d time.Duration) Timer {
	return f.add(d, 0)
}

func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("utils: non-positive ticker interval")
	}
	return tickerAdapter{f.add(d, d)}
}

func (f *FakeClock) add(d, period time.Duration) *fakeWaiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{clock: f, deadline: f.now.Add(d), period: period, ch: make(chan time.Time, 1)}
	if d <= 0 {
		w.fire(f.now)
		if period == 0 {
			return w
		}
	}
	f.waiters = append(f.waiters, w)
	return w
}

// Advance moves time forward by d and fires every timer whose deadline has
// passed, in deadline order.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.now.Add(d)
	for {
		sort.SliceStable(f.waiters, func(i, j int) bool {
			return f.waiters[i].deadline.Before(f.waiters[j].deadline)
		})
		if len(f.waiters) == 0 || f.waiters[0].deadline.After(target) {
			break
		}
		w := f.waiters[0]
		f.now = w.deadline
		w.fire(f.now)
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
		} else {
			f.waiters = f.waiters[1:]
		}
	}
	f.now = target
}

// Waiters returns the number of armed timers and tickers.
func (f *FakeClock) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil waits (in real time, up to timeout) for at least n armed waiters.
func (f *FakeClock) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.Waiters() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return f.Waiters() >= n
}

func (f *FakeClock) remove(w *fakeWaiter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.waiters {
		if cur == w {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// fire delivers without blocking; a tick is dropped if the last is unread.
func (w *fakeWaiter) fire(now time.Time) {
	select {
	case w.ch <- now:
	default:
	}
}

func (w *fakeWaiter) C() <-chan time.Time { return w.ch }

func (w *fakeWaiter) Stop() bool {
	return w.clock.remove(w)
}

var _ Ticker = tickerAdapter{}

// tickerAdapter lets *fakeWaiter satisfy Ticker, whose Stop has no result.
type tickerAdapter struct{ *fakeWaiter }

func (t tickerAdapter) Stop() { t.fakeWaiter.Stop() }
