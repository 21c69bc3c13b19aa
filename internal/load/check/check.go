// Package check evaluates named assertions against request results.
package check

import (
	"fmt"

	"github.com/wesleyorama2/vuload/internal/load"
)

// Predicate is a pure function over a request result.
type Predicate func(load.RequestResult) bool

// Check is a named predicate.
type Check struct {
	Name      string
	Predicate Predicate
}

// Set is an ordered collection of checks. Evaluation follows insertion order.
type Set []Check

// Add appends a check and returns the extended set.
func (s Set) Add(name string, p Predicate) Set {
	return append(s, Check{Name: name, Predicate: p})
}

// Names returns the check names in declaration order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Evaluate runs every check against result in declaration order.
//
// All checks are evaluated even when an earlier one fails, so one response can
// yield several independent outcomes. A predicate that panics counts as a
// failed check and the panic value is kept in CheckResult.Err.
func Evaluate(result load.RequestResult, checks Set) []load.CheckResult {
	if len(checks) == 0 {
		return nil
	}

	out := make([]load.CheckResult, 0, len(checks))
	for _, c := range checks {
		out = append(out, evaluateOne(result, c))
	}
	return out
}

func evaluateOne(result load.RequestResult, c Check) (cr load.CheckResult) {
	cr.Name = c.Name

	defer func() {
		if r := recover(); r != nil {
			cr.Passed = false
			cr.Err = fmt.Errorf("%w: %s panicked: %v", load.ErrCheckFailure, c.Name, r)
		}
	}()

	if c.Predicate == nil {
		cr.Err = fmt.Errorf("%w: %s has no predicate", load.ErrCheckFailure, c.Name)
		return cr
	}

	cr.Passed = c.Predicate(result)
	return cr
}
