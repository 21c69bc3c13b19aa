// Package report turns the metrics of a finished run into a console summary
// and file artifacts.
package report

import (
	"time"

	"github.com/wesleyorama2/vuload/internal/load/metrics"
	"github.com/wesleyorama2/vuload/internal/load/profile"
)

// Summary is everything a reporter needs about one run. Metrics is the final
// snapshot, taken after every VU has exited.
type Summary struct {
	RunID       string
	Name        string
	Description string
	StartTime   time.Time
	EndTime     time.Time

	// Planned is the nominal length of the load profile
	Planned time.Duration

	// Breakpoints is the compiled load profile
	Breakpoints []profile.Breakpoint

	// Interrupted is set when the run was cancelled before the profile ended
	Interrupted bool

	Metrics *metrics.Snapshot
}

// Elapsed returns the wall-clock length of the run.
func (s *Summary) Elapsed() time.Duration {
	if s.Metrics != nil && s.Metrics.Elapsed > 0 {
		return s.Metrics.Elapsed
	}
	return s.EndTime.Sub(s.StartTime)
}

// IterationRate returns completed iterations per second.
func (s *Summary) IterationRate() float64 {
	elapsed := s.Elapsed()
	if s.Metrics == nil || elapsed <= 0 {
		return 0
	}
	return float64(s.Metrics.Iterations) / elapsed.Seconds()
}
