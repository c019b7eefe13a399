package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// speed is not reported until this much time has passed
const warmup = time.Second

// State is a point-in-time view of a download's progress.
type State struct {
	Current        int64
	Total          int64
	Speed          float64 // bytes per second transferred in this run
	LastChunk      int64
	AverageChunk   float64
	EstimatedTotal int64 // chunk count times average chunk size, for unknown totals
	ETA            time.Duration
	Elapsed        time.Duration
}

func (s State) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Current) / float64(s.Total) * 100
}

func (s State) String() string {
	var b strings.Builder
	if s.ETA > 0 {
		if left := FormatSeconds(int64(s.ETA.Round(time.Second).Seconds())); left != "" {
			b.WriteString(left + " left - ")
		}
	}
	b.WriteString(humanize.IBytes(uint64(max(s.Current, 0))))
	if s.Total > 0 {
		b.WriteString(" of " + humanize.IBytes(uint64(s.Total)))
	}
	if s.Speed > 0 {
		b.WriteString(" (" + humanize.IBytes(uint64(s.Speed)) + "/s)")
	}
	return b.String()
}

// Aggregator collects byte counts from concurrent fetches.
type Aggregator struct {
	mu      sync.Mutex
	count   int
	total   int64
	current int64
	seeded  int64
	chunks  int
	chunked int64
	last    int64
	start   time.Time
	now     func() time.Time
}

type Option func(*Aggregator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// New returns an aggregator for a download made of count units.
func New(count int, opts ...Option) *Aggregator {
	a := &Aggregator{count: count, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	return a
}

func (a *Aggregator) SetTotal(total int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = total
}

// Seed records bytes already on disk from an earlier run. They count toward
// Current but not toward Speed.
func (a *Aggregator) Seed(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current += n
	a.seeded += n
}

// Add counts streamed bytes. n may be negative to withdraw a failed attempt.
func (a *Aggregator) Add(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current += n
}

// RecordChunk notes the size of a completed unit for averaging.
func (a *Aggregator) RecordChunk(size int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks++
	a.chunked += size
	a.last = size
}

func (a *Aggregator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	elapsed := a.now().Sub(a.start)
	st := State{
		Current:   a.current,
		Total:     a.total,
		LastChunk: a.last,
		Elapsed:   elapsed,
	}
	if a.chunks > 0 {
		st.AverageChunk = float64(a.chunked) / float64(a.chunks)
		st.EstimatedTotal = int64(st.AverageChunk * float64(a.count))
	}
	if elapsed > warmup {
		st.Speed = float64(a.current-a.seeded) / elapsed.Seconds()
	}
	target := st.Total
	if target <= 0 {
		target = st.EstimatedTotal
	}
	if st.Speed > 0 && target > st.Current {
		st.ETA = time.Duration(float64(target-st.Current) / st.Speed * float64(time.Second))
	}
	return st
}

// FormatSeconds renders a duration like "1h 0m 5s", "2m 30s" or "42s".
func FormatSeconds(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours), fmt.Sprintf("%dm", minutes))
	} else if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}
