package metrics

import (
	"sync"
	"time"

	"github.com/veridata/gopromote/internal/logger"
)

// progressLogEvery bounds how often Update emits a progress log line,
// measured in completed units, so batch loops cannot flood the log.
const progressLogEvery = 10000

// windowSize is the number of recent samples used for throughput. A short
// moving window tracks the current rate instead of the lifetime average.
const windowSize = 20

type sample struct {
	at        time.Time
	completed int64
}

// ProgressTracker computes throughput and ETA for a long-running operation
// from a moving window of updates. Update is cheap enough to call per row.
type ProgressTracker struct {
	name  string
	total int64

	mu         sync.Mutex
	completed  int64
	window     [windowSize]sample
	head       int
	count      int
	started    time.Time
	lastLogged int64
	log        *logger.Logger
}

// NewProgressTracker creates a tracker for total units of work.
func NewProgressTracker(log *logger.Logger, name string, total int64) *ProgressTracker {
	if log == nil {
		log = logger.NewDefault()
	}
	pt := &ProgressTracker{
		name:    name,
		total:   total,
		started: time.Now(),
		log:     log,
	}
	pt.push(sample{at: pt.started, completed: 0})
	return pt
}

// Update records the absolute number of completed units. It logs a progress
// line only when another progressLogEvery units have completed since the
// last line.
func (pt *ProgressTracker) Update(completed int64) {
	pt.mu.Lock()
	pt.completed = completed
	pt.push(sample{at: time.Now(), completed: completed})

	shouldLog := completed-pt.lastLogged >= progressLogEvery || (completed >= pt.total && pt.lastLogged < pt.total)
	if shouldLog {
		pt.lastLogged = completed
	}
	rate := pt.throughputLocked()
	eta := pt.etaLocked(rate)
	pct := pt.percentLocked()
	pt.mu.Unlock()

	if shouldLog {
		pt.log.Infow("Progress",
			"operation", pt.name,
			"completed", completed,
			"total", pt.total,
			"percent", pct,
			"rows_per_sec", rate,
			"eta_seconds", eta.Seconds(),
		)
	}
}

// Throughput returns the current rate in units per second over the window.
func (pt *ProgressTracker) Throughput() float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.throughputLocked()
}

// ETA returns the estimated remaining duration at the current rate.
// It returns zero when the rate is unknown or the work is done.
func (pt *ProgressTracker) ETA() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.etaLocked(pt.throughputLocked())
}

// Percent returns completion as 0-100.
func (pt *ProgressTracker) Percent() float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.percentLocked()
}

// Completed returns the last reported unit count.
func (pt *ProgressTracker) Completed() int64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.completed
}

func (pt *ProgressTracker) push(s sample) {
	pt.window[pt.head] = s
	pt.head = (pt.head + 1) % windowSize
	if pt.count < windowSize {
		pt.count++
	}
}

func (pt *ProgressTracker) oldest() sample {
	if pt.count < windowSize {
		return pt.window[0]
	}
	return pt.window[pt.head]
}

func (pt *ProgressTracker) throughputLocked() float64 {
	if pt.count < 2 {
		return 0
	}
	old := pt.oldest()
	newest := pt.window[(pt.head+windowSize-1)%windowSize]
	elapsed := newest.at.Sub(old.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(newest.completed-old.completed) / elapsed
}

func (pt *ProgressTracker) etaLocked(rate float64) time.Duration {
	remaining := pt.total - pt.completed
	if remaining <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / rate * float64(time.Second))
}

func (pt *ProgressTracker) percentLocked() float64 {
	if pt.total <= 0 {
		return 0
	}
	pct := float64(pt.completed) / float64(pt.total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
