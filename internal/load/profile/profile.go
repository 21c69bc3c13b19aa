// Package profile compiles declarative load profiles into concurrency timelines.
package profile

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
)

// Stage describes a ramp from the previous stage's target to Target over Duration.
// A zero Duration makes the change immediate.
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`
	Name     string        `json:"name,omitempty" yaml:"name,omitempty"`
}

// LoadProfile is either a constant VU count held for Duration, or an ordered
// list of Stages. Exactly one of the two forms must be set.
type LoadProfile struct {
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Stages   []Stage       `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// IsConstant reports whether the profile uses the constant VU form.
func (p LoadProfile) IsConstant() bool {
	return len(p.Stages) == 0
}

// ProfileError describes why a profile was rejected. It matches
// load.ErrInvalidProfile with errors.Is.
type ProfileError struct {
	Field   string
	Message string
}

func (e *ProfileError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", load.ErrInvalidProfile, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", load.ErrInvalidProfile, e.Field, e.Message)
}

// Unwrap returns load.ErrInvalidProfile.
func (e *ProfileError) Unwrap() error {
	return load.ErrInvalidProfile
}

func invalid(field, format string, args ...interface{}) error {
	return &ProfileError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the profile without compiling it.
func (p LoadProfile) Validate() error {
	hasVUs := p.VUs != 0
	hasStages := len(p.Stages) > 0

	switch {
	case hasVUs && hasStages:
		return invalid("", "vus and stages are mutually exclusive")
	case !hasVUs && !hasStages:
		return invalid("", "either vus or stages is required")
	}

	if hasVUs {
		if p.VUs < 0 {
			return invalid("vus", "cannot be negative, got %d", p.VUs)
		}
		if p.Duration < 0 {
			return invalid("duration", "cannot be negative, got %s", p.Duration)
		}
		if p.Duration == 0 {
			return invalid("duration", "must be greater than zero for a constant profile")
		}
		return nil
	}

	if p.Duration != 0 {
		return invalid("duration", "only allowed together with vus")
	}

	var total time.Duration
	for i, stage := range p.Stages {
		if stage.Duration < 0 {
			return invalid(fmt.Sprintf("stages[%d].duration", i), "cannot be negative, got %s", stage.Duration)
		}
		if stage.Target < 0 {
			return invalid(fmt.Sprintf("stages[%d].target", i), "cannot be negative, got %d", stage.Target)
		}
		total += stage.Duration
	}
	if total == 0 {
		return invalid("stages", "total duration must be greater than zero")
	}
	return nil
}

// Compile turns a profile into a Timeline of breakpoints.
//
// Constant profiles compile to (0,n) (d,n) (d,0). Stage profiles start at
// (0,0) and add one breakpoint per stage at its cumulative end offset. A final
// (end,0) breakpoint is appended when the profile does not already end at zero.
func Compile(p LoadProfile) (*Timeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var points []Breakpoint
	var names []string

	if p.IsConstant() {
		points = []Breakpoint{
			{Offset: 0, Target: p.VUs},
			{Offset: p.Duration, Target: p.VUs},
		}
		names = []string{"constant"}
	} else {
		points = append(points, Breakpoint{Offset: 0, Target: 0})
		var offset time.Duration
		for i, stage := range p.Stages {
			offset += stage.Duration
			points = append(points, Breakpoint{Offset: offset, Target: stage.Target})
			name := stage.Name
			if name == "" {
				name = fmt.Sprintf("stage-%d", i+1)
			}
			names = append(names, name)
		}
	}

	last := points[len(points)-1]
	if last.Target != 0 {
		points = append(points, Breakpoint{Offset: last.Offset, Target: 0})
	}

	return &Timeline{points: points, stageNames: names}, nil
}
