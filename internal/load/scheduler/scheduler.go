// Package scheduler drives virtual users along a compiled load timeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/vuload/internal/load"
	"github.com/wesleyorama2/vuload/internal/load/metrics"
	"github.com/wesleyorama2/vuload/internal/load/profile"
)

const (
	// DefaultTick is how often the control loop re-evaluates the target.
	DefaultTick = 100 * time.Millisecond

	// DefaultGracefulStop is how long in-flight iterations may run past the
	// nominal end of the timeline.
	DefaultGracefulStop = 30 * time.Second
)

// IterationFunc is one pass of a virtual user's workload. A returned error or
// a panic is recorded as a failed request and the VU keeps looping.
type IterationFunc func(ctx context.Context, vu *VirtualUser) error

// Options configures a Scheduler.
type Options struct {
	// Tick is the control loop interval (default: 100ms)
	Tick time.Duration

	// Sleep is the pause between iterations of the same VU (default: none)
	Sleep time.Duration

	// GracefulStop bounds how long in-flight iterations may drain after the
	// timeline ends (default: 30s)
	GracefulStop time.Duration

	// Logger receives lifecycle events (default: no-op)
	Logger *zap.Logger

	// OnTick is called from the control loop after every adjustment
	OnTick func(Stats)
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	StartTime   time.Time
	Elapsed     time.Duration
	Duration    time.Duration
	ActiveVUs   int
	TargetVUs   int
	PeakVUs     int
	Iterations  int64
	Stage       int
	StageName   string
	TotalStages int
	Phase       profile.Phase
}

// Progress returns the fraction of the timeline that has elapsed (0.0 to 1.0).
func (s Stats) Progress() float64 {
	if s.Duration <= 0 {
		return 1.0
	}
	p := float64(s.Elapsed) / float64(s.Duration)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

// Scheduler owns every VirtualUser of a run. Each VU runs on its own
// goroutine, so the control loop never blocks on VU I/O.
type Scheduler struct {
	timeline   *profile.Timeline
	aggregator *metrics.Aggregator
	opts       Options
	logger     *zap.Logger

	// vus holds VUs that have not been asked to stop, in spawn order
	vus    []*VirtualUser
	vusMu  sync.Mutex
	nextID int

	wg   sync.WaitGroup
	live atomic.Int32

	startTime  atomic.Pointer[time.Time]
	targetVUs  atomic.Int32
	peakVUs    atomic.Int32
	iterations atomic.Int64
	finished   atomic.Bool
	started    atomic.Bool
}

// New creates a scheduler for timeline that records into aggregator.
func New(timeline *profile.Timeline, aggregator *metrics.Aggregator, opts Options) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.GracefulStop <= 0 {
		opts.GracefulStop = DefaultGracefulStop
	}
	if opts.Sleep < 0 {
		opts.Sleep = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		timeline:   timeline,
		aggregator: aggregator,
		opts:       opts,
		logger:     logger,
	}
}

// Run drives the timeline to completion and returns the final snapshot.
//
// At the nominal end every VU is asked to stop and in-flight iterations get
// GracefulStop to finish. After that the iteration context is cancelled so
// outstanding requests return promptly. Run only returns once every VU
// goroutine has exited, so the snapshot reflects every recorded result.
//
// Cancelling ctx ends the run early; a snapshot is still returned.
func (s *Scheduler) Run(ctx context.Context, fn IterationFunc) (*metrics.Snapshot, error) {
	if fn == nil {
		return nil, errors.New("iteration function is required")
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil, errors.New("scheduler has already been run")
	}

	iterCtx, cancelIterations := context.WithCancel(ctx)
	defer cancelIterations()

	s.aggregator.Start()
	start := time.Now()
	s.startTime.Store(&start)
	duration := s.timeline.Duration()

	s.logger.Info("run started",
		zap.Duration("duration", duration),
		zap.Int("maxVUs", s.timeline.MaxTarget()),
		zap.Duration("tick", s.opts.Tick))

	s.adjust(iterCtx, fn, s.timeline.TargetAt(0))
	s.observe(0)

	s.controlLoop(ctx, iterCtx, fn, start, duration)

	s.drain(cancelIterations)

	s.finished.Store(true)
	s.aggregator.SetActiveVUs(0)
	s.aggregator.Sample(time.Since(start), 0, profile.PhaseDone)
	s.aggregator.Finish()

	snap := s.aggregator.Snapshot()
	s.logger.Info("run finished",
		zap.Duration("elapsed", snap.Elapsed),
		zap.Int64("requests", snap.RequestsTotal),
		zap.Int64("iterations", snap.Iterations),
		zap.Bool("interrupted", ctx.Err() != nil))

	return snap, nil
}

// controlLoop adjusts the VU population every tick until the timeline ends or
// ctx is cancelled.
func (s *Scheduler) controlLoop(ctx, iterCtx context.Context, fn IterationFunc, start time.Time, duration time.Duration) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	end := time.NewTimer(duration)
	defer end.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Warn("run interrupted", zap.Error(ctx.Err()))
			return
		case <-end.C:
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed >= duration {
				return
			}
			s.adjust(iterCtx, fn, s.timeline.TargetAt(elapsed))
			s.observe(elapsed)
		}
	}
}

// adjust spawns or retires VUs to match target. Spawning counts VUs that are
// still draining, so live VUs never exceed the target. Retirement is LIFO.
func (s *Scheduler) adjust(ctx context.Context, fn IterationFunc, target int) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	s.targetVUs.Store(int32(target))

	if spawn := target - int(s.live.Load()); spawn > 0 {
		for i := 0; i < spawn; i++ {
			s.nextID++
			vu := newVirtualUser(s.nextID)
			s.vus = append(s.vus, vu)
			s.live.Add(1)
			s.wg.Add(1)
			go s.runVU(ctx, vu, fn)
		}
		s.updatePeak()
		s.logger.Debug("spawned VUs", zap.Int("count", spawn), zap.Int("target", target))
		return
	}

	if retire := len(s.vus) - target; retire > 0 {
		for i := len(s.vus) - 1; i >= target; i-- {
			s.vus[i].RequestStop()
		}
		s.vus = s.vus[:target]
		s.logger.Debug("retiring VUs", zap.Int("count", retire), zap.Int("target", target))
	}
}

func (s *Scheduler) updatePeak() {
	live := s.live.Load()
	for {
		peak := s.peakVUs.Load()
		if live <= peak || s.peakVUs.CompareAndSwap(peak, live) {
			return
		}
	}
}

// observe publishes the gauges and a time-series sample for elapsed.
func (s *Scheduler) observe(elapsed time.Duration) {
	s.aggregator.SetActiveVUs(int(s.live.Load()))
	s.aggregator.Sample(elapsed, int(s.targetVUs.Load()), s.timeline.PhaseAt(elapsed))

	if s.opts.OnTick != nil {
		s.opts.OnTick(s.Stats())
	}
}

// runVU loops iterations until the VU is retired or ctx is cancelled.
func (s *Scheduler) runVU(ctx context.Context, vu *VirtualUser, fn IterationFunc) {
	defer s.wg.Done()
	defer s.live.Add(-1)
	defer vu.markStopped()

	for {
		if ctx.Err() != nil || !vu.beginIteration() {
			return
		}
		s.iterate(ctx, vu, fn)
		vu.endIteration()

		if !s.pause(ctx, vu) {
			return
		}
	}
}

// iterate runs fn once, converting errors and panics into failed results.
func (s *Scheduler) iterate(ctx context.Context, vu *VirtualUser, fn IterationFunc) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("iteration panicked", zap.Int("vu", vu.ID), zap.Any("panic", r))
			s.recordIterationFailure(start, fmt.Errorf("%w: iteration panicked: %v", load.ErrRequestFailure, r))
		}
	}()

	err := fn(ctx, vu)
	if err == nil {
		s.iterations.Add(1)
		s.aggregator.RecordIteration()
		return
	}

	// Cancellation at the hard deadline is not an iteration failure; the
	// interrupted request has already been recorded by fn.
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug("iteration failed", zap.Int("vu", vu.ID), zap.Error(err))
	s.recordIterationFailure(start, fmt.Errorf("%w: %v", load.ErrRequestFailure, err))
}

func (s *Scheduler) recordIterationFailure(start time.Time, err error) {
	s.aggregator.Record(load.RequestResult{
		Name:      "iteration",
		Status:    load.StatusNoResponse,
		Latency:   time.Since(start),
		Timestamp: start,
		Error:     err,
	}, nil)
}

// pause waits between iterations. It returns false when the VU should exit.
func (s *Scheduler) pause(ctx context.Context, vu *VirtualUser) bool {
	if s.opts.Sleep <= 0 {
		return ctx.Err() == nil && !vu.StopRequested()
	}

	timer := time.NewTimer(s.opts.Sleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// drain stops every VU and waits for them to exit, cancelling in-flight
// iterations once the graceful stop period expires.
func (s *Scheduler) drain(cancelIterations context.CancelFunc) {
	s.vusMu.Lock()
	for _, vu := range s.vus {
		vu.RequestStop()
	}
	s.vus = nil
	s.targetVUs.Store(0)
	s.vusMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.opts.GracefulStop)
	defer grace.Stop()

	select {
	case <-done:
		return
	case <-grace.C:
		s.logger.Warn("graceful stop expired, cancelling in-flight iterations",
			zap.Duration("gracefulStop", s.opts.GracefulStop),
			zap.Int32("remaining", s.live.Load()))
		cancelIterations()
		<-done
	}
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	var start time.Time
	var elapsed time.Duration
	if p := s.startTime.Load(); p != nil {
		start = *p
		elapsed = time.Since(start)
	}
	stage, stageName := s.timeline.StageAt(elapsed)
	phase := s.timeline.PhaseAt(elapsed)
	if s.finished.Load() {
		phase = profile.PhaseDone
	} else if start.IsZero() {
		phase = profile.PhaseInit
	}

	return Stats{
		StartTime:   start,
		Elapsed:     elapsed,
		Duration:    s.timeline.Duration(),
		ActiveVUs:   int(s.live.Load()),
		TargetVUs:   int(s.targetVUs.Load()),
		PeakVUs:     int(s.peakVUs.Load()),
		Iterations:  s.iterations.Load(),
		Stage:       stage,
		StageName:   stageName,
		TotalStages: s.timeline.TotalStages(),
		Phase:       phase,
	}
}
