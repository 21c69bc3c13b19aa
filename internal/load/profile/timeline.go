package profile

import (
	"time"
)

// Phase describes what the timeline is doing at a point in time.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// Breakpoint is a compiled (offset, target concurrency) point.
// Concurrency moves linearly between consecutive breakpoints.
type Breakpoint struct {
	Offset time.Duration `json:"offset"`
	Target int           `json:"target"`
}

// Timeline is the compiled form of a LoadProfile. It is immutable and safe
// for concurrent use.
type Timeline struct {
	points     []Breakpoint
	stageNames []string
}

// Breakpoints returns a copy of the compiled breakpoints.
func (t *Timeline) Breakpoints() []Breakpoint {
	out := make([]Breakpoint, len(t.points))
	copy(out, t.points)
	return out
}

// Duration returns the nominal length of the run.
func (t *Timeline) Duration() time.Duration {
	return t.points[len(t.points)-1].Offset
}

// MaxTarget returns the highest concurrency the timeline asks for.
func (t *Timeline) MaxTarget() int {
	highest := 0
	for _, p := range t.points {
		if p.Target > highest {
			highest = p.Target
		}
	}
	return highest
}

// TotalStages returns the number of declared stages (1 for a constant profile).
func (t *Timeline) TotalStages() int {
	return len(t.stageNames)
}

// segmentAt returns the index i of the segment points[i]→points[i+1] that
// contains elapsed, or -1 once the timeline has ended.
func (t *Timeline) segmentAt(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	for i := 0; i < len(t.points)-1; i++ {
		if elapsed < t.points[i+1].Offset {
			return i
		}
	}
	return -1
}

// TargetAt returns the target concurrency at elapsed, linearly interpolated
// between the surrounding breakpoints and rounded to the nearest VU.
func (t *Timeline) TargetAt(elapsed time.Duration) int {
	i := t.segmentAt(elapsed)
	if i < 0 {
		return t.points[len(t.points)-1].Target
	}
	if elapsed < 0 {
		elapsed = 0
	}

	from, to := t.points[i], t.points[i+1]
	span := to.Offset - from.Offset
	progress := float64(elapsed-from.Offset) / float64(span)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	target := float64(from.Target) + float64(to.Target-from.Target)*progress
	return int(target + 0.5)
}

// StageAt returns the 0-based stage index and its name at elapsed.
// Past the end of the timeline it returns the last stage.
func (t *Timeline) StageAt(elapsed time.Duration) (int, string) {
	i := t.segmentAt(elapsed)
	if i < 0 || i >= len(t.stageNames) {
		i = len(t.stageNames) - 1
	}
	return i, t.stageNames[i]
}

// PhaseAt classifies the segment containing elapsed by its slope.
func (t *Timeline) PhaseAt(elapsed time.Duration) Phase {
	i := t.segmentAt(elapsed)
	if i < 0 {
		return PhaseDone
	}
	from, to := t.points[i], t.points[i+1]
	switch {
	case to.Target > from.Target:
		return PhaseRampUp
	case to.Target < from.Target:
		return PhaseRampDown
	default:
		return PhaseSteady
	}
}
