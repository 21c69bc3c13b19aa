// Package metrics aggregates request and check outcomes for a load test run.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/vuload/internal/load"
	"github.com/wesleyorama2/vuload/internal/load/profile"
)

// Aggregator collects request and check outcomes using HDR histograms.
//
// # Thread Safety
//
// Record may be called concurrently from any number of virtual users.
// Counters use atomic operations and histograms are guarded by mutexes, so
// totals after a run equal the exact sum of everything recorded.
type Aggregator struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requestHists   map[string]*hdrhistogram.Histogram
	requestHistsMu sync.Mutex

	requestsTotal  atomic.Int64
	requestsFailed atomic.Int64
	interrupted    atomic.Int64
	checksPassed   atomic.Int64
	checksFailed   atomic.Int64
	iterations     atomic.Int64
	bytesReceived  atomic.Int64

	activeVUs atomic.Int32
	maxVUs    atomic.Int32

	// Per-check tallies, kept in first-seen order.
	checks     map[string]*checkTally
	checkOrder []string
	checksMu   sync.Mutex

	samples   []Sample
	samplesMu sync.Mutex

	startTime time.Time
	endTime   atomic.Pointer[time.Time]

	config Config
}

type checkTally struct {
	passes int64
	fails  int64
}

// Config contains configuration for the aggregator.
type Config struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// MaxSamples bounds the time series kept for reports (default: 3600)
	MaxSamples int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
		MaxSamples:       3600,
	}
}

// NewAggregator creates an aggregator with the default configuration.
func NewAggregator() *Aggregator {
	return NewAggregatorWithConfig(DefaultConfig())
}

// NewAggregatorWithConfig creates an aggregator with a custom configuration.
func NewAggregatorWithConfig(config Config) *Aggregator {
	if config.MaxSamples <= 0 {
		config.MaxSamples = DefaultConfig().MaxSamples
	}
	return &Aggregator{
		latencyHist:  hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requestHists: make(map[string]*hdrhistogram.Histogram),
		checks:       make(map[string]*checkTally),
		startTime:    time.Now(),
		config:       config,
	}
}

// Start resets the run clock. Call it right before traffic starts.
func (a *Aggregator) Start() {
	a.startTime = time.Now()
	a.endTime.Store(nil)
}

// Finish freezes the run clock used for throughput calculations.
func (a *Aggregator) Finish() {
	now := time.Now()
	a.endTime.Store(&now)
}

// Record ingests one request outcome and the checks evaluated against it.
func (a *Aggregator) Record(result load.RequestResult, checks []load.CheckResult) {
	latencyMicros := a.clamp(result.Latency.Microseconds())

	// HDR histogram RecordValue is not thread-safe.
	a.latencyHistMu.Lock()
	a.latencyHist.RecordValue(latencyMicros)
	a.latencyHistMu.Unlock()

	if result.Name != "" {
		a.recordRequestHistogram(result.Name, latencyMicros)
	}

	a.requestsTotal.Add(1)
	a.bytesReceived.Add(result.BytesReceived)
	switch {
	case result.Interrupted():
		a.interrupted.Add(1)
	case result.Failed():
		a.requestsFailed.Add(1)
	}

	if len(checks) == 0 {
		return
	}

	a.checksMu.Lock()
	defer a.checksMu.Unlock()
	for _, c := range checks {
		tally, ok := a.checks[c.Name]
		if !ok {
			tally = &checkTally{}
			a.checks[c.Name] = tally
			a.checkOrder = append(a.checkOrder, c.Name)
		}
		if c.Passed {
			tally.passes++
			a.checksPassed.Add(1)
		} else {
			tally.fails++
			a.checksFailed.Add(1)
		}
	}
}

// RecordIteration counts one completed iteration.
func (a *Aggregator) RecordIteration() {
	a.iterations.Add(1)
}

func (a *Aggregator) clamp(v int64) int64 {
	if v < a.config.HistogramMin {
		return a.config.HistogramMin
	}
	if v > a.config.HistogramMax {
		return a.config.HistogramMax
	}
	return v
}

func (a *Aggregator) recordRequestHistogram(name string, latencyMicros int64) {
	a.requestHistsMu.Lock()
	defer a.requestHistsMu.Unlock()

	hist, ok := a.requestHists[name]
	if !ok {
		hist = hdrhistogram.New(a.config.HistogramMin, a.config.HistogramMax, a.config.HistogramSigFigs)
		a.requestHists[name] = hist
	}
	hist.RecordValue(latencyMicros)
}

// SetActiveVUs updates the active VU gauge and the high-water mark.
func (a *Aggregator) SetActiveVUs(count int) {
	a.activeVUs.Store(int32(count))
	for {
		current := a.maxVUs.Load()
		if int32(count) <= current || a.maxVUs.CompareAndSwap(current, int32(count)) {
			return
		}
	}
}

// ActiveVUs returns the active VU gauge.
func (a *Aggregator) ActiveVUs() int {
	return int(a.activeVUs.Load())
}

// Sample appends a time-series point. It is called by the scheduler's control
// loop, never by virtual users.
func (a *Aggregator) Sample(elapsed time.Duration, targetVUs int, phase profile.Phase) {
	point := Sample{
		Elapsed:        elapsed,
		ActiveVUs:      a.ActiveVUs(),
		TargetVUs:      targetVUs,
		TotalRequests:  a.requestsTotal.Load(),
		FailedRequests: a.requestsFailed.Load(),
		Phase:          phase,
	}

	a.samplesMu.Lock()
	defer a.samplesMu.Unlock()
	if len(a.samples) >= a.config.MaxSamples {
		copy(a.samples, a.samples[1:])
		a.samples = a.samples[:len(a.samples)-1]
	}
	a.samples = append(a.samples, point)
}

// Live returns the running counters without touching histograms.
func (a *Aggregator) Live() Live {
	return Live{
		Elapsed:        time.Since(a.startTime),
		ActiveVUs:      a.ActiveVUs(),
		TotalRequests:  a.requestsTotal.Load(),
		FailedRequests: a.requestsFailed.Load(),
		ChecksPassed:   a.checksPassed.Load(),
		ChecksFailed:   a.checksFailed.Load(),
		Iterations:     a.iterations.Load(),
	}
}

// Snapshot returns a point-in-time view of all metrics. Reporters call it
// once the run has fully drained.
func (a *Aggregator) Snapshot() *Snapshot {
	a.latencyHistMu.Lock()
	latency := statsFromHistogram(a.latencyHist)
	a.latencyHistMu.Unlock()

	end := time.Now()
	if p := a.endTime.Load(); p != nil {
		end = *p
	}
	elapsed := end.Sub(a.startTime)

	total := a.requestsTotal.Load()
	failed := a.requestsFailed.Load()
	interrupted := a.interrupted.Load()
	passed := a.checksPassed.Load()
	checkFails := a.checksFailed.Load()

	snap := &Snapshot{
		RequestsTotal:  total,
		RequestsFailed: failed,
		Interrupted:    interrupted,
		ChecksPassed:   passed,
		ChecksFailed:   checkFails,
		Iterations:     a.iterations.Load(),
		BytesReceived:  a.bytesReceived.Load(),
		Latency:        latency,
		MaxVUs:         int(a.maxVUs.Load()),
		Elapsed:        elapsed,
		StartTime:      a.startTime,
		Requests:       a.requestStats(),
	}

	if elapsed > 0 {
		snap.RPS = float64(total) / elapsed.Seconds()
	}
	// Interrupted requests never got an answer, so they are left out of the
	// error rate entirely.
	if completed := total - interrupted; completed > 0 {
		snap.ErrorRate = float64(failed) / float64(completed)
	}
	if passed+checkFails > 0 {
		snap.CheckPassRate = float64(passed) / float64(passed+checkFails)
	}

	a.checksMu.Lock()
	for _, name := range a.checkOrder {
		tally := a.checks[name]
		snap.Checks = append(snap.Checks, CheckStats{Name: name, Passes: tally.passes, Fails: tally.fails})
	}
	a.checksMu.Unlock()

	a.samplesMu.Lock()
	snap.TimeSeries = make([]Sample, len(a.samples))
	copy(snap.TimeSeries, a.samples)
	a.samplesMu.Unlock()

	return snap
}

func (a *Aggregator) requestStats() map[string]LatencyStats {
	a.requestHistsMu.Lock()
	defer a.requestHistsMu.Unlock()

	if len(a.requestHists) == 0 {
		return nil
	}
	result := make(map[string]LatencyStats, len(a.requestHists))
	for name, hist := range a.requestHists {
		result[name] = statsFromHistogram(hist)
	}
	return result
}

func statsFromHistogram(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}
