package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wesleyorama2/vuload/internal/load/check"
	"github.com/wesleyorama2/vuload/internal/load/profile"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string

	// Err is the underlying cause, if any
	Err error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *ValidationErrors) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// AddError adds an error caused by err.
func (e *ValidationErrors) AddError(field string, err error) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: err.Error(), Err: err})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation
// errors. Load profile problems match load.ErrInvalidProfile.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateOptions(&c.Options, c.ToProfile(), errs)
	validateSettings(&c.Settings, errs)

	if len(c.Requests) == 0 {
		errs.Add("requests", "at least one request is required")
	}
	for i, req := range c.Requests {
		c.validateRequest(fmt.Sprintf("requests[%d]", i), req, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateOptions(o *Options, p profile.LoadProfile, errs *ValidationErrors) {
	if err := p.Validate(); err != nil {
		field := "options"
		var pe *profile.ProfileError
		if errors.As(err, &pe) && pe.Field != "" {
			field = "options." + pe.Field
		}
		errs.AddError(field, err)
	}

	if o.SleepSeconds < 0 {
		errs.Add("options.sleepSeconds", "cannot be negative")
	}
	if o.RPS < 0 {
		errs.Add("options.rps", "cannot be negative")
	}
	if o.GracefulStop < 0 {
		errs.Add("options.gracefulStop", "cannot be negative")
	}
}

func (c *TestConfig) validateRequest(prefix string, req RequestConfig, errs *ValidationErrors) {
	method := strings.ToUpper(req.Method)
	if method != "" && method != "GET" {
		errs.Add(prefix+".method", fmt.Sprintf("unsupported HTTP method %s: only GET is supported", req.Method))
	}

	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else {
		resolved := c.ResolveURL(req)
		if strings.Contains(resolved, "{{") {
			errs.Add(prefix+".url", fmt.Sprintf("unresolved variable in %s", resolved))
		} else if u, err := url.Parse(resolved); err != nil {
			errs.Add(prefix+".url", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add(prefix+".url", fmt.Sprintf("URL must be absolute http(s) or relative to settings.baseUrl, got %s", resolved))
		} else if u.Host == "" {
			errs.Add(prefix+".url", "URL has no host")
		}
	}

	if req.Timeout < 0 {
		errs.Add(prefix+".timeout", "cannot be negative")
	}

	for i, spec := range req.Checks {
		if _, err := check.Compile(spec); err != nil {
			errs.Add(fmt.Sprintf("%s.checks[%d]", prefix, i), err.Error())
		}
	}
}

// validateSettings validates global settings.
func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "must be an http or https URL")
		}
	}

	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}
