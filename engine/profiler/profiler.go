package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Profiler tracks mutation throughput and memory statistics of a host.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	mu             sync.Mutex
	applied        int
	failed         int
	totalApplied   int
	totalFailed    int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	now            func() time.Time
}

// NewProfiler creates a new Profiler with the given options applied.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: a variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		now:            time.Now,
	}
	for _, option := range options {
		option(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per handled mutation.
// Logs throughput statistics when the update interval has elapsed.
// Statistics include: mutations per second, failures, heap usage, allocation rate, GC count/pause times.
//
// Parameters:
//   - applied: whether the mutation was applied
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(applied bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if applied {
		p.applied++
		p.totalApplied++
	} else {
		p.failed++
		p.totalFailed++
	}

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	rate := float64(p.applied+p.failed) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	glog.Infof("[Profiler] Mutations: %.2f/s (applied: %d, failed: %d) | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs)",
		rate, p.applied, p.failed, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs)

	p.applied = 0
	p.failed = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Totals returns the number of mutations ticked since the profiler was created.
//
// Returns:
//   - int: the applied mutations
//   - int: the failed mutations
func (p *Profiler) Totals() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalApplied, p.totalFailed
}
