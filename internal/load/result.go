// Package load contains the types shared by every stage of a load test run:
// the results produced by requests and checks, and the error classes the
// engine distinguishes between.
package load

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrInvalidProfile is returned when a load profile or test configuration
	// cannot be run. It is the only error class that aborts a run, and it is
	// always reported before any traffic is generated.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrRequestFailure marks a request that did not complete with a 2xx
	// response. It is folded into metrics and never stops a run.
	ErrRequestFailure = errors.New("request failure")

	// ErrInterrupted marks a request that was still in flight when the run
	// was cancelled or the graceful stop expired. It has no response to judge,
	// so it is counted apart from target failures.
	ErrInterrupted = errors.New("request interrupted")

	// ErrCheckFailure marks a check predicate that panicked.
	ErrCheckFailure = errors.New("check failure")

	// ErrRenderFailure marks a report artifact that could not be produced.
	// Metrics collected by the run remain valid.
	ErrRenderFailure = errors.New("render failure")
)

// StatusNoResponse is the status recorded when no HTTP response was received
// (network error, timeout, cancelled context).
const StatusNoResponse = 0

// RequestResult is the outcome of a single HTTP request.
// It must not be modified once produced.
type RequestResult struct {
	Name          string        `json:"name,omitempty"`
	Method        string        `json:"method"`
	URL           string        `json:"url"`
	Status        int           `json:"status"`
	Latency       time.Duration `json:"latency"`
	Timestamp     time.Time     `json:"timestamp"`
	BytesReceived int64         `json:"bytesReceived"`
	Header        http.Header   `json:"-"`
	Error         error         `json:"-"`
}

// LatencyMs returns the request latency in fractional milliseconds.
func (r RequestResult) LatencyMs() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}

// Failed reports whether the request counts as failed: no response,
// a transport error, or a non-2xx status.
func (r RequestResult) Failed() bool {
	if r.Error != nil || r.Status == StatusNoResponse {
		return true
	}
	return r.Status < 200 || r.Status >= 300
}

// Interrupted reports whether the request was cut short by the run ending.
func (r RequestResult) Interrupted() bool {
	return r.Error != nil && errors.Is(r.Error, ErrInterrupted)
}

// CheckResult is the outcome of one named check against one RequestResult.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Err    error  `json:"-"`
}
