// Package quota tracks daily upstream API usage against a fixed ceiling.
//
// The tracker is advisory: callers must check CanCall before dispatching a
// request, the tracker never intercepts anything itself.
package quota

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// historyDays is how many daily windows are retained for reporting.
	historyDays = 7
	// warningThreshold marks a window as near its limit at 80% usage.
	warningThreshold = 0.8
	dateLayout       = "2006-01-02"
)

// Window is one calendar day of usage. A window is created lazily on the
// first access of its day and never mutated after the day rolls over.
type Window struct {
	Date      string    `json:"date"`
	CallCount int       `json:"callCount"`
	Ceiling   int       `json:"ceiling"`
	ResetAt   time.Time `json:"resetAt"`
}

// Stats is a point-in-time view of today's window.
type Stats struct {
	Window       Window        `json:"window"`
	UsagePercent int           `json:"usagePercent"`
	NearLimit    bool          `json:"nearLimit"`
	Exceeded     bool          `json:"exceeded"`
	UntilReset   time.Duration `json:"untilReset"`
}

// Tracker counts calls per calendar day against a fixed ceiling.
type Tracker struct {
	mu      sync.Mutex
	ceiling int
	windows map[string]*Window
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock, letting tests cross day boundaries.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates a tracker with the given daily ceiling.
func New(ceiling int, opts ...Option) *Tracker {
	t := &Tracker{
		ceiling: ceiling,
		windows: make(map[string]*Window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CanCall reports whether today's window still has quota left.
func (t *Tracker) CanCall() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.today().CallCount < t.ceiling
}

// Record counts one upstream call against today's window.
func (t *Tracker) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.today()
	w.CallCount++

	if w.CallCount >= t.ceiling {
		slog.Error("Daily API quota exceeded", "date", w.Date, "calls", w.CallCount, "ceiling", t.ceiling)
	} else if float64(w.CallCount) >= float64(t.ceiling)*warningThreshold {
		slog.Warn("Daily API quota nearing limit", "date", w.Date, "calls", w.CallCount, "ceiling", t.ceiling)
	}
}

// Remaining returns how many calls today's window has left, floored at zero.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if left := t.ceiling - t.today().CallCount; left > 0 {
		return left
	}
	return 0
}

// Stats returns today's usage snapshot.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.today()
	percent := 0
	if t.ceiling > 0 {
		percent = int(float64(w.CallCount) / float64(t.ceiling) * 100)
	}
	return Stats{
		Window:       *w,
		UsagePercent: percent,
		NearLimit:    float64(w.CallCount) >= float64(t.ceiling)*warningThreshold,
		Exceeded:     w.CallCount >= t.ceiling,
		UntilReset:   w.ResetAt.Sub(t.now()),
	}
}

// History returns the last days windows oldest first, synthesizing empty
// windows for days with no recorded calls.
func (t *Tracker) History(days int) []Window {
	if days <= 0 {
		days = historyDays
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Window, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := t.now().AddDate(0, 0, -i)
		key := day.Format(dateLayout)
		if w, ok := t.windows[key]; ok {
			result = append(result, *w)
		} else {
			result = append(result, t.emptyWindow(key, day))
		}
	}
	return result
}

// Cleanup discards windows older than the retained history.
// Returns the number of windows removed.
func (t *Tracker) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().AddDate(0, 0, -historyDays).Format(dateLayout)
	removed := 0
	for key := range t.windows {
		if key < cutoff {
			delete(t.windows, key)
			removed++
		}
	}
	return removed
}

// today returns the current day's window, creating it if absent.
// Callers must hold t.mu.
func (t *Tracker) today() *Window {
	now := t.now()
	key := now.Format(dateLayout)
	if w, ok := t.windows[key]; ok {
		return w
	}
	w := t.emptyWindow(key, now)
	t.windows[key] = &w
	return t.windows[key]
}

func (t *Tracker) emptyWindow(key string, day time.Time) Window {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).AddDate(0, 0, 1)
	return Window{
		Date:    key,
		Ceiling: t.ceiling,
		ResetAt: midnight,
	}
}
