package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// StageStats summarizes the most recent runs of one pipeline stage.
type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	Failures    int     `json:"failures"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	BudgetMS    float64 `json:"budget_ms,omitempty"`
	OverBudget  bool    `json:"over_budget,omitempty"`
	LastFailure string  `json:"last_failure_at,omitempty"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// stageBudgets are the p95 latencies a healthy run stays under.
var stageBudgets = map[string]time.Duration{
	"check_existing":   300 * time.Millisecond,
	"select_category":  500 * time.Millisecond,
	"generate_text":    8 * time.Second,
	"persist_text":     300 * time.Millisecond,
	"synthesize_voice": 15 * time.Second,
	"publish_audio":    3 * time.Second,
	"persist_audio":    300 * time.Millisecond,
}

type stageSample struct {
	took   time.Duration
	failed bool
	at     time.Time
}

// stageWindow keeps the last size samples per stage, oldest first.
type stageWindow struct {
	mu      sync.Mutex
	size    int
	samples map[string][]stageSample
	now     func() time.Time
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 64
	}
	return &stageWindow{size: size, samples: make(map[string][]stageSample), now: time.Now}
}

func (w *stageWindow) Observe(stage string, took time.Duration, failed bool) {
	if w == nil || stage == "" || took < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := append(w.samples[stage], stageSample{took: took, failed: failed, at: w.now()})
	if len(buf) > w.size {
		buf = slices.Delete(buf, 0, len(buf)-w.size)
	}
	w.samples[stage] = buf
}

func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.samples))
	for name := range w.samples {
		names = append(names, name)
	}
	slices.Sort(names)

	out := StageSnapshot{GeneratedAt: w.now().UTC(), WindowSize: w.size, Stages: make([]StageStats, 0, len(names))}
	for _, name := range names {
		buf := w.samples[name]
		if len(buf) == 0 {
			continue
		}
		ms := make([]float64, len(buf))
		stats := StageStats{Stage: name, Samples: len(buf)}
		var sum float64
		for i, s := range buf {
			ms[i] = float64(s.took.Microseconds()) / 1000
			sum += ms[i]
			if s.failed {
				stats.Failures++
				stats.LastFailure = s.at.UTC().Format(time.RFC3339)
			}
		}
		stats.LastMS = round2(ms[len(ms)-1])
		stats.AvgMS = round2(sum / float64(len(ms)))
		slices.Sort(ms)
		stats.P50MS = round2(percentile(ms, 0.50))
		stats.P95MS = round2(percentile(ms, 0.95))
		if budget, ok := stageBudgets[name]; ok {
			stats.BudgetMS = float64(budget.Milliseconds())
			stats.OverBudget = stats.P95MS > stats.BudgetMS
		}
		out.Stages = append(out.Stages, stats)
	}
	return out
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
