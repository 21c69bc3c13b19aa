package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
	"github.com/wesleyorama2/vuload/internal/load/metrics"
	"github.com/wesleyorama2/vuload/internal/load/profile"
)

func compile(t *testing.T, p profile.LoadProfile) *profile.Timeline {
	t.Helper()
	tl, err := profile.Compile(p)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return tl
}

// concurrencyTracker tracks how many iterations run at the same time.
type concurrencyTracker struct {
	current atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int64
}

func (p *concurrencyTracker) iteration(agg *metrics.Aggregator, work time.Duration) IterationFunc {
	return func(ctx context.Context, vu *VirtualUser) error {
		p.calls.Add(1)
		n := p.current.Add(1)
		defer p.current.Add(-1)
		for {
			peak := p.peak.Load()
			if n <= peak || p.peak.CompareAndSwap(peak, n) {
				break
			}
		}

		select {
		case <-time.After(work):
		case <-ctx.Done():
		}
		agg.Record(load.RequestResult{Name: "tracked", Status: 200, Latency: work}, nil)
		return nil
	}
}

func TestScheduler_ConstantProfile(t *testing.T) {
	const vus = 3
	const duration = 500 * time.Millisecond
	const tick = 20 * time.Millisecond

	agg := metrics.NewAggregator()
	s := New(compile(t, profile.LoadProfile{VUs: vus, Duration: duration}), agg, Options{Tick: tick})

	tracker := &concurrencyTracker{}
	start := time.Now()
	snap, err := s.Run(context.Background(), tracker.iteration(agg, 5*time.Millisecond))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak := tracker.peak.Load(); peak > vus {
		t.Errorf("peak concurrency = %d, want <= %d", peak, vus)
	}
	if tracker.peak.Load() != vus {
		t.Errorf("peak concurrency = %d, want %d", tracker.peak.Load(), vus)
	}
	if elapsed < duration {
		t.Errorf("Run() returned after %v, before the %v timeline ended", elapsed, duration)
	}
	// One tick plus the drain of a 5ms iteration, with scheduling slack.
	if elapsed > duration+tick+200*time.Millisecond {
		t.Errorf("Run() took %v, want close to %v", elapsed, duration)
	}
	if snap.RequestsTotal != tracker.calls.Load() {
		t.Errorf("RequestsTotal = %d, want %d", snap.RequestsTotal, tracker.calls.Load())
	}
	if snap.Iterations != tracker.calls.Load() {
		t.Errorf("Iterations = %d, want %d", snap.Iterations, tracker.calls.Load())
	}
	if snap.MaxVUs != vus {
		t.Errorf("MaxVUs = %d, want %d", snap.MaxVUs, vus)
	}

	stats := s.Stats()
	if stats.PeakVUs != vus {
		t.Errorf("PeakVUs = %d, want %d", stats.PeakVUs, vus)
	}
	if stats.ActiveVUs != 0 {
		t.Errorf("ActiveVUs after Run = %d, want 0", stats.ActiveVUs)
	}
	if stats.Phase != profile.PhaseDone {
		t.Errorf("Phase after Run = %s, want %s", stats.Phase, profile.PhaseDone)
	}
}

func TestScheduler_RampingNeverExceedsMaxTarget(t *testing.T) {
	tl := compile(t, profile.LoadProfile{Stages: []profile.Stage{
		{Duration: 200 * time.Millisecond, Target: 4},
		{Duration: 100 * time.Millisecond, Target: 4},
		{Duration: 200 * time.Millisecond, Target: 0},
	}})

	agg := metrics.NewAggregator()
	var ticks atomic.Int32
	s := New(tl, agg, Options{
		Tick: 10 * time.Millisecond,
		OnTick: func(st Stats) {
			ticks.Add(1)
			if st.ActiveVUs > tl.MaxTarget() {
				t.Errorf("ActiveVUs = %d exceeds max target %d", st.ActiveVUs, tl.MaxTarget())
			}
		},
	})

	tracker := &concurrencyTracker{}
	snap, err := s.Run(context.Background(), tracker.iteration(agg, 15*time.Millisecond))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if peak := tracker.peak.Load(); peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
	if ticks.Load() == 0 {
		t.Error("OnTick was never called")
	}
	if len(snap.TimeSeries) == 0 {
		t.Error("TimeSeries is empty")
	}
}

func TestScheduler_IterationErrorsAndPanicsAreRecorded(t *testing.T) {
	agg := metrics.NewAggregator()
	s := New(compile(t, profile.LoadProfile{VUs: 1, Duration: 200 * time.Millisecond}), agg, Options{
		Tick:  10 * time.Millisecond,
		Sleep: 5 * time.Millisecond,
	})

	var calls atomic.Int64
	snap, err := s.Run(context.Background(), func(ctx context.Context, vu *VirtualUser) error {
		if calls.Add(1)%2 == 0 {
			panic("scripted panic")
		}
		return errors.New("scripted error")
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if calls.Load() < 3 {
		t.Fatalf("iteration called %d times, the VU should keep looping after failures", calls.Load())
	}
	if snap.RequestsFailed != calls.Load() {
		t.Errorf("RequestsFailed = %d, want %d", snap.RequestsFailed, calls.Load())
	}
	if snap.RequestsTotal != snap.RequestsFailed {
		t.Errorf("RequestsTotal = %d, want %d", snap.RequestsTotal, snap.RequestsFailed)
	}
	if snap.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0 completed", snap.Iterations)
	}
}

func TestScheduler_NoIterationAfterRun(t *testing.T) {
	agg := metrics.NewAggregator()
	s := New(compile(t, profile.LoadProfile{VUs: 5, Duration: 100 * time.Millisecond}), agg, Options{Tick: 10 * time.Millisecond})

	var calls atomic.Int64
	_, err := s.Run(context.Background(), func(ctx context.Context, vu *VirtualUser) error {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("iterations kept starting after Run returned: %d then %d", after, calls.Load())
	}
}

func TestScheduler_GracefulStopCancelsInFlight(t *testing.T) {
	agg := metrics.NewAggregator()
	s := New(compile(t, profile.LoadProfile{VUs: 2, Duration: 100 * time.Millisecond}), agg, Options{
		Tick:         10 * time.Millisecond,
		GracefulStop: 50 * time.Millisecond,
	})

	var interrupted atomic.Int32
	start := time.Now()
	_, err := s.Run(context.Background(), func(ctx context.Context, vu *VirtualUser) error {
		<-ctx.Done()
		interrupted.Add(1)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run() took %v, in-flight iterations should be cancelled after the grace period", elapsed)
	}
	if interrupted.Load() != 2 {
		t.Errorf("interrupted iterations = %d, want 2", interrupted.Load())
	}
}

func TestScheduler_ContextCancellation(t *testing.T) {
	agg := metrics.NewAggregator()
	s := New(compile(t, profile.LoadProfile{VUs: 2, Duration: 10 * time.Second}), agg, Options{Tick: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	tracker := &concurrencyTracker{}
	start := time.Now()
	snap, err := s.Run(ctx, tracker.iteration(agg, 5*time.Millisecond))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v after cancellation", elapsed)
	}
	if snap == nil {
		t.Fatal("Run() should return a snapshot when cancelled")
	}
}

func TestScheduler_RunTwice(t *testing.T) {
	agg := metrics.NewAggregator()
	s := New(compile(t, profile.LoadProfile{VUs: 1, Duration: 20 * time.Millisecond}), agg, Options{Tick: 5 * time.Millisecond})

	noop := func(ctx context.Context, vu *VirtualUser) error { return nil }
	if _, err := s.Run(context.Background(), noop); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := s.Run(context.Background(), noop); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestScheduler_NilIteration(t *testing.T) {
	s := New(compile(t, profile.LoadProfile{VUs: 1, Duration: time.Second}), metrics.NewAggregator(), Options{})
	if _, err := s.Run(context.Background(), nil); err == nil {
		t.Error("Run(nil) should fail")
	}
}

func TestStats_Progress(t *testing.T) {
	tests := []struct {
		elapsed, duration time.Duration
		want              float64
	}{
		{0, time.Second, 0},
		{500 * time.Millisecond, time.Second, 0.5},
		{2 * time.Second, time.Second, 1},
		{time.Second, 0, 1},
	}
	for _, tt := range tests {
		got := Stats{Elapsed: tt.elapsed, Duration: tt.duration}.Progress()
		if got != tt.want {
			t.Errorf("Progress(%v/%v) = %v, want %v", tt.elapsed, tt.duration, got, tt.want)
		}
	}
}
