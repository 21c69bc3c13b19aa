// Package request issues the HTTP requests made by virtual users.
package request

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
)

// Doer is the subset of *http.Client used by the executor.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Runner executes one request and never fails; errors are folded into the
// returned result. *Executor is the production implementation.
type Runner interface {
	Execute(ctx context.Context, url string, cfg Config) load.RequestResult
}

// Config describes a single request.
type Config struct {
	// Name groups results in per-request statistics
	Name string

	// Method defaults to GET
	Method string

	// Headers are set on the request in addition to the client defaults
	Headers map[string]string

	// Timeout bounds the whole request including reading the body (0 = client default)
	Timeout time.Duration
}

// ClientConfig contains HTTP client configuration.
type ClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// UserAgent is sent unless a request sets its own
	UserAgent string

	// Headers are applied to every request
	Headers map[string]string
}

// DefaultClientConfig returns sensible defaults for load testing.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// Executor issues requests over a shared HTTP client.
type Executor struct {
	client    Doer
	transport *http.Transport
	config    ClientConfig
}

// NewExecutor creates an executor with a pooled HTTP client.
func NewExecutor(config ClientConfig) *Executor {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		DisableKeepAlives:   config.DisableKeepAlives,
	}
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Executor{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		transport: transport,
		config:    config,
	}
}

// NewExecutorWithClient creates an executor around an existing client.
func NewExecutorWithClient(client Doer, config ClientConfig) *Executor {
	return &Executor{client: client, config: config}
}

// Execute performs one request. It never panics and never returns an error:
// network failures and timeouts produce a result with status 0 and Error set.
func (e *Executor) Execute(ctx context.Context, url string, cfg Config) load.RequestResult {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	result := load.RequestResult{
		Name:      cfg.Name,
		Method:    method,
		URL:       url,
		Timestamp: start,
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		result.Latency = time.Since(start)
		result.Error = fmt.Errorf("%w: failed to build request: %v", load.ErrRequestFailure, err)
		return result
	}
	e.applyHeaders(req, cfg.Headers)

	resp, err := e.client.Do(req)
	if err != nil {
		result.Latency = time.Since(start)
		result.Error = fmt.Errorf("%w: %v", load.ErrRequestFailure, describe(err))
		return result
	}
	defer resp.Body.Close()

	// Drain the body so the connection can be reused; its content is not inspected.
	n, readErr := io.Copy(io.Discard, resp.Body)
	result.Latency = time.Since(start)
	result.Status = resp.StatusCode
	result.Header = resp.Header
	result.BytesReceived = n

	if readErr != nil {
		result.Error = fmt.Errorf("%w: failed to read response body: %v", load.ErrRequestFailure, describe(readErr))
	} else if result.Failed() {
		result.Error = fmt.Errorf("%w: unexpected status %d", load.ErrRequestFailure, resp.StatusCode)
	}

	return result
}

func (e *Executor) applyHeaders(req *http.Request, headers map[string]string) {
	if e.config.UserAgent != "" {
		req.Header.Set("User-Agent", e.config.UserAgent)
	}
	for k, v := range e.config.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// describe shortens common transport errors.
func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timeout"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return err.Error()
	}
}

// Close releases idle connections.
func (e *Executor) Close() {
	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
}

var _ Runner = (*Executor)(nil)
