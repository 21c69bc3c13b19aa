package check

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
)

// Spec is a declarative check definition.
//
// Type selects what is inspected:
//   - "status": the HTTP status code (Value is an integer)
//   - "duration": the request latency (Value is a Go duration, e.g. "500ms")
//   - "header": a response header named by Path (Value is a string)
//
// Condition is one of eq, ne, gt, gte, lt, lte, contains, matches.
// Numeric conditions apply to status and duration; contains and matches
// apply to header values.
type Spec struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Value     string `json:"value" yaml:"value"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Build compiles specs into a Set. Checks without a name get a generated one
// such as "status eq 200".
func Build(specs []Spec) (Set, error) {
	var set Set
	for i, spec := range specs {
		p, err := Compile(spec)
		if err != nil {
			return nil, fmt.Errorf("check %d: %w", i+1, err)
		}
		name := spec.Name
		if name == "" {
			name = DefaultName(spec)
		}
		set = set.Add(name, p)
	}
	return set, nil
}

// DefaultName derives a readable name from a spec.
func DefaultName(spec Spec) string {
	cond := spec.Condition
	if cond == "" {
		cond = "eq"
	}
	if spec.Type == "header" {
		return fmt.Sprintf("header %s %s %s", spec.Path, cond, spec.Value)
	}
	return fmt.Sprintf("%s %s %s", spec.Type, cond, spec.Value)
}

// Compile turns a single spec into a predicate.
func Compile(spec Spec) (Predicate, error) {
	cond := strings.ToLower(spec.Condition)
	if cond == "" {
		cond = "eq"
	}

	switch spec.Type {
	case "status":
		want, err := strconv.Atoi(strings.TrimSpace(spec.Value))
		if err != nil {
			return nil, fmt.Errorf("invalid status value %q: %w", spec.Value, err)
		}
		cmp, err := numericComparison(cond)
		if err != nil {
			return nil, err
		}
		return func(r load.RequestResult) bool {
			return cmp(float64(r.Status), float64(want))
		}, nil

	case "duration":
		want, err := time.ParseDuration(strings.TrimSpace(spec.Value))
		if err != nil {
			return nil, fmt.Errorf("invalid duration value %q: %w", spec.Value, err)
		}
		cmp, err := numericComparison(cond)
		if err != nil {
			return nil, err
		}
		return func(r load.RequestResult) bool {
			if r.Status == load.StatusNoResponse {
				return false
			}
			return cmp(float64(r.Latency), float64(want))
		}, nil

	case "header":
		if spec.Path == "" {
			return nil, fmt.Errorf("header check requires a path (header name)")
		}
		return headerPredicate(spec.Path, cond, spec.Value)

	case "":
		return nil, fmt.Errorf("check type is required")
	default:
		return nil, fmt.Errorf("unsupported check type: %s", spec.Type)
	}
}

func numericComparison(cond string) (func(actual, expected float64) bool, error) {
	switch cond {
	case "eq":
		return func(a, e float64) bool { return a == e }, nil
	case "ne":
		return func(a, e float64) bool { return a != e }, nil
	case "gt":
		return func(a, e float64) bool { return a > e }, nil
	case "gte":
		return func(a, e float64) bool { return a >= e }, nil
	case "lt":
		return func(a, e float64) bool { return a < e }, nil
	case "lte":
		return func(a, e float64) bool { return a <= e }, nil
	default:
		return nil, fmt.Errorf("condition %q is not valid for numeric checks", cond)
	}
}

func headerPredicate(name, cond, value string) (Predicate, error) {
	switch cond {
	case "eq":
		return func(r load.RequestResult) bool { return r.Header.Get(name) == value }, nil
	case "ne":
		return func(r load.RequestResult) bool { return r.Header.Get(name) != value }, nil
	case "contains":
		return func(r load.RequestResult) bool { return strings.Contains(r.Header.Get(name), value) }, nil
	case "matches":
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid header pattern %q: %w", value, err)
		}
		return func(r load.RequestResult) bool { return re.MatchString(r.Header.Get(name)) }, nil
	default:
		return nil, fmt.Errorf("condition %q is not valid for header checks", cond)
	}
}

// StatusIs is a convenience predicate for the most common check.
func StatusIs(code int) Predicate {
	return func(r load.RequestResult) bool {
		return r.Status == code
	}
}
