package bench

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ledgerbench/ledger-bench/internal/wire"
)

// Recorder accumulates latency samples per command. Samples are held in
// memory for exact percentiles; a benchmark run is bounded by BENCH_OPS so
// the buffers stay small.
type Recorder struct {
	mu      sync.Mutex
	samples map[wire.Command][]time.Duration
	errors  map[wire.Command]int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		samples: make(map[wire.Command][]time.Duration),
		errors:  make(map[wire.Command]int),
	}
}

// Record adds one successful sample for a command.
func (r *Recorder) Record(cmd wire.Command, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[cmd] = append(r.samples[cmd], d)
}

// RecordError counts a failed operation.
func (r *Recorder) RecordError(cmd wire.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[cmd]++
}

// Summary is the latency distribution of one command over a run.
type Summary struct {
	Command wire.Command
	Count   int
	Errors  int
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// String renders the summary as one table row.
func (s Summary) String() string {
	return fmt.Sprintf("%-8s n=%-7d err=%-4d min=%-10s mean=%-10s p50=%-10s p95=%-10s p99=%-10s max=%s",
		s.Command, s.Count, s.Errors, s.Min, s.Mean, s.P50, s.P95, s.P99, s.Max)
}

// Snapshot computes per-command summaries, sorted by command name.
func (r *Recorder) Snapshot() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmds := make([]wire.Command, 0, len(r.samples)+len(r.errors))
	seen := make(map[wire.Command]bool)
	for c := range r.samples {
		cmds = append(cmds, c)
		seen[c] = true
	}
	for c := range r.errors {
		if !seen[c] {
			cmds = append(cmds, c)
		}
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })

	out := make([]Summary, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, summarize(c, r.samples[c], r.errors[c]))
	}
	return out
}

func summarize(cmd wire.Command, samples []time.Duration, errs int) Summary {
	s := Summary{Command: cmd, Count: len(samples), Errors: errs}
	if len(samples) == 0 {
		return s
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = total / time.Duration(len(sorted))
	s.P50 = percentile(sorted, 50)
	s.P95 = percentile(sorted, 95)
	s.P99 = percentile(sorted, 99)
	return s
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100 // ceil(p/100 * n)
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
