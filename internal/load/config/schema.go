// Package config provides configuration parsing and validation for load tests.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/vuload/internal/load/check"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "get-usuarios"
//	settings:
//	  baseUrl: "https://api.example.com"
//	  headers:
//	    accept: application/json
//	options:
//	  stages:
//	    - duration: 30s
//	      target: 10
//	    - duration: 4m
//	      target: 10
//	    - duration: 30s
//	      target: 0
//	  sleepSeconds: 1
//	requests:
//	  - name: "Get Users"
//	    url: "{{baseUrl}}/usuarios"
//	    checks:
//	      - name: "status was 200"
//	        type: status
//	        value: 200
//	report:
//	  html: report/get-usuarios.html
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains HTTP settings shared by every request
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are substituted into URLs and headers as {{name}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Options is the load profile
	Options Options `json:"options" yaml:"options"`

	// Requests are executed in order by every iteration
	Requests []RequestConfig `json:"requests" yaml:"requests"`

	// Report selects the artifacts written after the run
	Report ReportConfig `json:"report,omitempty" yaml:"report,omitempty"`
}

// GlobalSettings contains global HTTP settings.
type GlobalSettings struct {
	// BaseURL is prepended to relative request URLs and replaces {{baseUrl}}
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the default HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// MaxConnectionsPerHost limits connections per host (0 = unlimited)
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
}

// Options is the load profile: either vus with duration, or stages.
type Options struct {
	// VUs is the constant number of virtual users
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to hold VUs (constant profile only)
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages ramp the VU count linearly from one target to the next
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// SleepSeconds is the think time between iterations of one VU
	SleepSeconds float64 `json:"sleepSeconds,omitempty" yaml:"sleepSeconds,omitempty"`

	// RPS caps the requests per second across all VUs (0 = unlimited)
	RPS float64 `json:"rps,omitempty" yaml:"rps,omitempty"`

	// GracefulStop is how long in-flight iterations may finish after the end
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// StageConfig defines a single ramping stage.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used in metrics)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method; only GET is supported
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// URL is absolute, relative to settings.baseUrl, or uses {{baseUrl}}
	URL string `json:"url" yaml:"url"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Timeout is request-specific timeout (overrides global)
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Checks are evaluated against every response
	Checks []check.Spec `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// ReportConfig selects report artifacts. Empty paths are skipped.
type ReportConfig struct {
	HTML string `json:"html,omitempty" yaml:"html,omitempty"`
	JSON string `json:"json,omitempty" yaml:"json,omitempty"`
}

// Duration is a time.Duration written in config files either as a Go duration
// string ("30s", "2m") or as a bare number of seconds (30).
type Duration time.Duration

// GetDuration returns the duration or a default if unset.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	dur, err := ParseDurationString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
