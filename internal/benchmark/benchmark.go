// Package benchmark measures per-call latency and memory of the inference
// paths.
package benchmark

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"time"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
	}
}

// Result holds the outcome of one benchmark.
type Result struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"total_ns"`
	Min        time.Duration `json:"min_ns"`
	Mean       time.Duration `json:"mean_ns"`
	P50        time.Duration `json:"p50_ns"`
	P95        time.Duration `json:"p95_ns"`
	Max        time.Duration `json:"max_ns"`
	// AllocPerOp is the bytes allocated per call on the Go heap. Memory
	// owned by the inference runtime is not included.
	AllocPerOp uint64 `json:"alloc_per_op"`
	Err        error  `json:"-"`
}

// String renders a one line summary.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %d iterations, mean %v, p50 %v, p95 %v, min %v, max %v, %d B/op",
		r.Name, r.Iterations, r.Mean, r.P50, r.P95, r.Min, r.Max, r.AllocPerOp)
}

// Case is a named function to time.
type Case struct {
	Name string
	Func func() error
}

// Suite runs cases with a warmup phase.
type Suite struct {
	cases  []Case
	warmup int
}

// NewSuite creates a suite that runs warmup untimed calls before timing.
func NewSuite(warmup int) *Suite {
	return &Suite{warmup: max(warmup, 0)}
}

// Add registers a case.
func (s *Suite) Add(name string, fn func() error) {
	s.cases = append(s.cases, Case{Name: name, Func: fn})
}

// Len is the number of registered cases.
func (s *Suite) Len() int { return len(s.cases) }

// RunAll runs every case for iterations timed calls.
func (s *Suite) RunAll(iterations int) []Result {
	results := make([]Result, 0, len(s.cases))
	for _, c := range s.cases {
		results = append(results, s.run(c, iterations))
	}
	return results
}

func (s *Suite) run(c Case, iterations int) Result {
	res := Result{Name: c.Name, Iterations: iterations}
	if iterations <= 0 {
		res.Err = errors.New("iterations must be positive")
		return res
	}

	for range s.warmup {
		if err := c.Func(); err != nil {
			res.Err = fmt.Errorf("warmup: %w", err)
			return res
		}
	}

	runtime.GC()
	before := GetMemoryStats()
	samples := make([]time.Duration, 0, iterations)
	for range iterations {
		start := time.Now()
		err := c.Func()
		samples = append(samples, time.Since(start))
		if err != nil {
			res.Err = err
			res.Iterations = len(samples)
			return res
		}
	}
	after := GetMemoryStats()

	res.AllocPerOp = (after.TotalAllocBytes - before.TotalAllocBytes) / uint64(iterations) //nolint:gosec // G115: iterations > 0
	summarize(&res, samples)
	return res
}

// summarize fills the latency fields from unsorted samples.
func summarize(res *Result, samples []time.Duration) {
	slices.Sort(samples)
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	res.Total = total
	res.Min = samples[0]
	res.Max = samples[len(samples)-1]
	res.Mean = total / time.Duration(len(samples))
	res.P50 = percentile(samples, 0.50)
	res.P95 = percentile(samples, 0.95)
}

// percentile uses nearest rank on sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	rank = min(max(rank, 0), len(sorted)-1)
	return sorted[rank]
}
