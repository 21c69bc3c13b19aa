// Package engine wires a test configuration to the scheduler, executor,
// checks and metrics, and runs it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/vuload/internal/load"
	"github.com/wesleyorama2/vuload/internal/load/check"
	"github.com/wesleyorama2/vuload/internal/load/config"
	"github.com/wesleyorama2/vuload/internal/load/metrics"
	"github.com/wesleyorama2/vuload/internal/load/profile"
	"github.com/wesleyorama2/vuload/internal/load/rate"
	"github.com/wesleyorama2/vuload/internal/load/report"
	"github.com/wesleyorama2/vuload/internal/load/request"
	"github.com/wesleyorama2/vuload/internal/load/scheduler"
)

// Progress is passed to the OnTick callback while a run is in progress.
type Progress struct {
	scheduler.Stats
	Live metrics.Live
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecutor replaces the HTTP executor, typically with a test double.
func WithExecutor(r request.Runner) Option {
	return func(e *Engine) {
		e.executor = r
	}
}

// WithTick sets the scheduler control loop interval.
func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		e.tick = d
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithOnTick registers a callback invoked on every scheduler tick.
func WithOnTick(fn func(Progress)) Option {
	return func(e *Engine) {
		e.onTick = fn
	}
}

// step is one request of an iteration, fully resolved.
type step struct {
	url     string
	request request.Config
	checks  check.Set
}

// Engine runs a single load test.
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	eng, _ := engine.New(cfg)
//	summary, _ := eng.Run(context.Background())
//	report.WriteText(os.Stdout, summary, report.TextOptions{})
type Engine struct {
	config   *config.TestConfig
	timeline *profile.Timeline
	plan     []step

	executor request.Runner
	limiter  *rate.Limiter
	logger   *zap.Logger
	tick     time.Duration
	onTick   func(Progress)
	runID    string

	mu      sync.Mutex
	running bool
}

// New validates cfg and prepares a run. Configuration and profile errors are
// returned here, before any request is made; profile errors match
// load.ErrInvalidProfile.
func New(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.ApplyDefaults(cfg)

	timeline, err := profile.Compile(cfg.ToProfile())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		timeline: timeline,
		limiter:  rate.NewLimiter(cfg.Options.RPS),
		logger:   zap.NewNop(),
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for i, req := range cfg.Requests {
		checks, err := check.Build(req.Checks)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: requests[%d].checks: %w", i, err)
		}
		e.plan = append(e.plan, step{
			url: cfg.ResolveURL(req),
			request: request.Config{
				Name:    req.Name,
				Method:  req.Method,
				Headers: cfg.ResolveHeaders(req),
				Timeout: time.Duration(req.Timeout),
			},
			checks: checks,
		})
	}

	if e.executor == nil {
		e.executor = request.NewExecutor(clientConfig(cfg.Settings))
	}

	return e, nil
}

// clientConfig derives the HTTP client settings from the test settings.
func clientConfig(s config.GlobalSettings) request.ClientConfig {
	cc := request.DefaultClientConfig()
	cc.Timeout = s.Timeout.GetDuration(cc.Timeout)
	cc.InsecureSkipVerify = s.InsecureSkipVerify
	cc.MaxConnsPerHost = s.MaxConnectionsPerHost
	if s.MaxIdleConnsPerHost > 0 {
		cc.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	cc.UserAgent = s.UserAgent
	if cc.UserAgent == "" {
		cc.UserAgent = load.UserAgent()
	}
	return cc
}

// RunID identifies this run in logs, the summary and artifacts.
func (e *Engine) RunID() string {
	return e.runID
}

// Timeline returns the compiled load profile.
func (e *Engine) Timeline() *profile.Timeline {
	return e.timeline
}

// Run executes the load profile and returns the summary. Request and check
// failures are part of the summary, not errors. Cancelling ctx stops the run
// early and the partial summary is returned with Interrupted set.
func (e *Engine) Run(ctx context.Context) (*report.Summary, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, errors.New("engine is already running")
	}
	e.running = true

	aggregator := metrics.NewAggregator()
	opts := scheduler.Options{
		Tick:         e.tick,
		Sleep:        e.config.Sleep(),
		GracefulStop: time.Duration(e.config.Options.GracefulStop),
		Logger:       e.logger.With(zap.String("runId", e.runID)),
	}
	if e.onTick != nil {
		opts.OnTick = func(st scheduler.Stats) {
			e.onTick(Progress{Stats: st, Live: aggregator.Live()})
		}
	}
	sched := scheduler.New(e.timeline, aggregator, opts)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	if closer, ok := e.executor.(interface{ Close() }); ok {
		defer closer.Close()
	}

	e.logger.Info("starting load test",
		zap.String("runId", e.runID),
		zap.String("name", e.config.Name),
		zap.Int("requests", len(e.plan)),
		zap.Duration("planned", e.timeline.Duration()),
		zap.Float64("rpsLimit", e.limiter.Rate()))

	start := time.Now()
	snap, err := sched.Run(ctx, e.iteration(aggregator))
	if err != nil {
		return nil, err
	}

	summary := &report.Summary{
		RunID:       e.runID,
		Name:        e.config.Name,
		Description: e.config.Description,
		StartTime:   start,
		EndTime:     time.Now(),
		Planned:     e.timeline.Duration(),
		Breakpoints: e.timeline.Breakpoints(),
		Interrupted: ctx.Err() != nil,
		Metrics:     snap,
	}

	e.logger.Info("load test finished",
		zap.String("runId", e.runID),
		zap.Int64("requests", snap.RequestsTotal),
		zap.Int64("failed", snap.RequestsFailed),
		zap.Int64("checksFailed", snap.ChecksFailed),
		zap.Bool("interrupted", summary.Interrupted))

	return summary, nil
}

// iteration runs every request of the plan in order, evaluating its checks
// and recording the outcome.
func (e *Engine) iteration(aggregator *metrics.Aggregator) scheduler.IterationFunc {
	return func(ctx context.Context, vu *scheduler.VirtualUser) error {
		for _, s := range e.plan {
			// A nil limiter returns ctx.Err() without blocking.
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
			// Every executed request is recorded, including ones cut short
			// at the hard deadline.
			result := e.executor.Execute(ctx, s.url, s.request)
			if ctx.Err() != nil && result.Failed() {
				// The run ended mid-request; there is no response to check.
				result.Error = fmt.Errorf("%w: %w", load.ErrInterrupted, result.Error)
				aggregator.Record(result, nil)
				return ctx.Err()
			}
			aggregator.Record(result, check.Evaluate(result, s.checks))
			if result.Error != nil {
				e.logger.Debug("request failed",
					zap.Int("vu", vu.ID),
					zap.String("name", result.Name),
					zap.Int("status", result.Status),
					zap.Error(result.Error))
			}
		}
		return nil
	}
}
