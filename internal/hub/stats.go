package hub

import (
	"slices"
	"sync"
	"time"
)

// ToolStats is a snapshot of one tool's call history.
type ToolStats struct {
	Name      string  `json:"name"`
	Calls     int64   `json:"calls"`
	Failures  int64   `json:"failures"`
	P50Ms     int64   `json:"p50_ms"`
	P99Ms     int64   `json:"p99_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// callWindow keeps the latencies and outcomes of the last N calls to a tool
// in a ring buffer. Unlike a plain error counter it forgets failures as they
// fall out of the window, so the error rate describes recent behaviour only.
type callWindow struct {
	mu       sync.Mutex
	latency  []int64
	failed   []bool
	pos      int
	filled   int
	calls    int64
	failures int64
}

func newCallWindow(size int) *callWindow {
	if size <= 0 {
		size = 100
	}
	return &callWindow{
		latency: make([]int64, size),
		failed:  make([]bool, size),
	}
}

// record adds one finished call. Failures are any outcome other than a
// successful envelope.
func (w *callWindow) record(d time.Duration, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.latency[w.pos] = d.Milliseconds()
	w.failed[w.pos] = failed
	w.pos = (w.pos + 1) % len(w.latency)
	if w.filled < len(w.latency) {
		w.filled++
	}
	w.calls++
	if failed {
		w.failures++
	}
}

func (w *callWindow) snapshot(name string) ToolStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := ToolStats{Name: name, Calls: w.calls, Failures: w.failures}
	if w.filled == 0 {
		return s
	}
	sorted := slices.Clone(w.latency[:w.filled])
	slices.Sort(sorted)
	s.P50Ms = sorted[len(sorted)/2]
	s.P99Ms = sorted[int(float64(len(sorted)-1)*0.99)]

	var recentFailures int
	for _, f := range w.failed[:w.filled] {
		if f {
			recentFailures++
		}
	}
	s.ErrorRate = float64(recentFailures) / float64(w.filled)
	return s
}
