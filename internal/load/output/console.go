// Package output renders live progress while a load test runs.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/vuload/internal/load/engine"
	"github.com/wesleyorama2/vuload/internal/load/report"
)

// ANSI cursor control for redrawing the live display.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	progressFilled = "█"
	progressEmpty  = "░"
	progressWidth  = 40
)

// LiveStats is the view of a run shown while it is in progress.
type LiveStats struct {
	Progress float64
	Elapsed  time.Duration
	Duration time.Duration

	ActiveVUs int
	TargetVUs int

	Requests   int64
	Failed     int64
	ErrorRate  float64
	RPS        float64
	Iterations int64

	ChecksPassed int64
	ChecksFailed int64

	Phase       string
	Stage       int
	StageName   string
	TotalStages int
}

// CheckRate returns the fraction of passed checks, or 1 when none ran.
func (s LiveStats) CheckRate() float64 {
	total := s.ChecksPassed + s.ChecksFailed
	if total == 0 {
		return 1
	}
	return float64(s.ChecksPassed) / float64(total)
}

// StatsFromProgress builds LiveStats from an engine tick.
func StatsFromProgress(p engine.Progress) LiveStats {
	s := LiveStats{
		Progress:     p.Progress(),
		Elapsed:      p.Elapsed,
		Duration:     p.Duration,
		ActiveVUs:    p.ActiveVUs,
		TargetVUs:    p.TargetVUs,
		Requests:     p.Live.TotalRequests,
		Failed:       p.Live.FailedRequests,
		ErrorRate:    p.Live.ErrorRate(),
		Iterations:   p.Live.Iterations,
		ChecksPassed: p.Live.ChecksPassed,
		ChecksFailed: p.Live.ChecksFailed,
		Phase:        string(p.Phase),
		Stage:        p.Stage,
		StageName:    p.StageName,
		TotalStages:  p.TotalStages,
	}
	if secs := p.Elapsed.Seconds(); secs > 0 {
		s.RPS = float64(p.Live.TotalRequests) / secs
	}
	return s
}

// Config configures a Console.
type Config struct {
	TestName string
	RunID    string
	Planned  time.Duration
	MaxVUs   int

	// Writer defaults to os.Stdout
	Writer io.Writer

	// Interval between one-line updates when not on a terminal (default: 5s)
	Interval time.Duration

	Quiet    bool
	NoColor  bool
	ForceTTY bool
}

// Console prints progress to a terminal, redrawing a small block in place,
// or periodic one-line updates when output is redirected. Quiet consoles
// print nothing.
type Console struct {
	cfg   Config
	w     io.Writer
	isTTY bool

	accent, ok, warn, bad, dim, bold *color.Color

	mu          sync.Mutex
	linesOutput int
	lastLine    time.Time
}

// NewConsole creates a console.
func NewConsole(cfg Config) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}

	c := &Console{
		cfg:    cfg,
		w:      cfg.Writer,
		isTTY:  cfg.ForceTTY || isTerminal(cfg.Writer),
		accent: color.New(color.FgCyan),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed),
		dim:    color.New(color.FgHiBlack),
		bold:   color.New(color.Bold),
	}
	if cfg.NoColor || !c.isTTY || !supportsColors() {
		for _, col := range []*color.Color{c.accent, c.ok, c.warn, c.bad, c.dim, c.bold} {
			col.DisableColor()
		}
	} else {
		for _, col := range []*color.Color{c.accent, c.ok, c.warn, c.bad, c.dim, c.bold} {
			col.EnableColor()
		}
	}
	return c
}

// IsTTY reports whether the console redraws in place.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader() {
	if c.cfg.Quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	name := c.cfg.TestName
	if name == "" {
		name = "load test"
	}
	line := strings.Repeat(boxHorizontal, 56)
	fmt.Fprintln(c.w, c.accent.Sprint(line))
	fmt.Fprintln(c.w, c.bold.Sprintf("%s - running", name))
	fmt.Fprintln(c.w, c.dim.Sprintf("run %s | up to %d VUs | %s planned",
		c.cfg.RunID, c.cfg.MaxVUs, report.FormatDuration(c.cfg.Planned)))
	fmt.Fprintln(c.w, c.accent.Sprint(line))
	fmt.Fprintln(c.w)
}

// Update shows new progress. On a terminal the live block is redrawn;
// otherwise a line is printed at most once per Interval.
func (c *Console) Update(stats LiveStats) {
	if c.cfg.Quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		now := time.Now()
		if !c.lastLine.IsZero() && now.Sub(c.lastLine) < c.cfg.Interval {
			return
		}
		c.lastLine = now
		fmt.Fprintln(c.w, c.statusLine(stats))
		return
	}

	c.clear()
	lines := c.render(stats)
	for _, l := range lines {
		fmt.Fprintln(c.w, l)
	}
	c.linesOutput = len(lines)
}

// Finish removes the live block so the summary starts on a clean screen.
func (c *Console) Finish() {
	if c.cfg.Quiet || !c.isTTY {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Console) clear() {
	if c.linesOutput == 0 {
		return
	}
	fmt.Fprintf(c.w, cursorUp, c.linesOutput)
	for i := 0; i < c.linesOutput; i++ {
		fmt.Fprint(c.w, clearLine+"\n")
	}
	fmt.Fprintf(c.w, cursorUp, c.linesOutput)
	c.linesOutput = 0
}

func (c *Console) render(s LiveStats) []string {
	pct := c.bold.Sprintf("%3.0f%%", s.Progress*100)
	timeInfo := c.dim.Sprintf("%s / %s", report.FormatDuration(s.Elapsed), report.FormatDuration(s.Duration))

	stage := s.Phase
	if s.TotalStages > 0 {
		stage = fmt.Sprintf("%s (%d/%d)", s.Phase, s.Stage, s.TotalStages)
		if s.StageName != "" {
			stage += " " + s.StageName
		}
	}

	return []string{
		fmt.Sprintf("progress  %s %s | %s", c.ok.Sprint(progressBar(s.Progress)), pct, timeInfo),
		fmt.Sprintf("stage     %s", c.accent.Sprint(stage)),
		fmt.Sprintf("vus       %s / %d", c.accent.Sprint(s.ActiveVUs), s.TargetVUs),
		fmt.Sprintf("requests  %s  %.1f/s  iterations %s",
			c.accent.Sprint(report.FormatNumber(s.Requests)), s.RPS, report.FormatNumber(s.Iterations)),
		fmt.Sprintf("failed    %s", c.rateColor(s.ErrorRate).Sprintf("%s (%s)",
			report.FormatNumber(s.Failed), report.FormatPercent(s.ErrorRate))),
		fmt.Sprintf("checks    %s", c.rateColor(1-s.CheckRate()).Sprintf("%s ✓ %d ✗ %d",
			report.FormatPercent(s.CheckRate()), s.ChecksPassed, s.ChecksFailed)),
	}
}

// statusLine is the single-line update used when output is not a terminal.
func (c *Console) statusLine(s LiveStats) string {
	return fmt.Sprintf("[%s] %.0f%% | %s | VUs: %d/%d | reqs: %d (%.1f/s) | failed: %d (%s) | checks: %s",
		report.FormatDuration(s.Elapsed),
		s.Progress*100,
		s.Phase,
		s.ActiveVUs, s.TargetVUs,
		s.Requests, s.RPS,
		s.Failed, report.FormatPercent(s.ErrorRate),
		report.FormatPercent(s.CheckRate()))
}

// rateColor picks a color for a failure fraction.
func (c *Console) rateColor(failRate float64) *color.Color {
	switch {
	case failRate > 0.05:
		return c.bad
	case failRate > 0.01:
		return c.warn
	default:
		return c.ok
	}
}

func progressBar(progress float64) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * progressWidth)
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, progressWidth-filled) + "]"
}
