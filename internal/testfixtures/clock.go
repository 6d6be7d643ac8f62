package testfixtures

import (
	"sync"
	"time"

	"github.com/assetflow/handover-service/internal/clock"
)

// ReferenceTime is the shared starting instant for deterministic tests.
func ReferenceTime() time.Time {
	return time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
}

// Clock provides a controllable time source for tests. Tickers created from
// it fire only when Advance moves time past their next deadline.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*manualTicker
}

var _ clock.Clock = (*Clock)(nil)

// NewClock returns a clock initialised to the supplied time. When start is the
// zero value, the shared ReferenceTime is used.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set updates the clock to the provided time without firing tickers.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by the provided duration, fires any ticker
// whose deadline elapsed, and returns the updated time. Like time.Ticker,
// ticks that find the channel full are dropped.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	tickers := append([]*manualTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
	return now
}

// NewTicker returns a ticker driven by Advance.
func (c *Clock) NewTicker(d time.Duration) clock.Ticker {
	if d <= 0 {
		panic("testfixtures: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     c.current.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Tickers reports how many live tickers were created from the clock.
func (c *Clock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := 0
	for _, t := range c.tickers {
		if !t.isStopped() {
			live++
		}
	}
	return live
}

type manualTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *manualTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !t.next.After(now) {
		t.next = t.next.Add(t.interval)
	}
	select {
	case t.ch <- now:
	default:
	}
}
