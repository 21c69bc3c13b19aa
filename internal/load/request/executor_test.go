package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
)

func TestExecute_Success(t *testing.T) {
	var gotAccept, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"users":[]}`))
	}))
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.UserAgent = "vuload/test"
	exec := NewExecutor(cfg)
	defer exec.Close()

	result := exec.Execute(context.Background(), server.URL, Config{
		Name:    "users",
		Headers: map[string]string{"Accept": "application/json"},
	})

	if result.Status != 200 {
		t.Errorf("Status = %d, want 200", result.Status)
	}
	if result.Error != nil {
		t.Errorf("Error = %v, want nil", result.Error)
	}
	if result.Method != "GET" {
		t.Errorf("Method = %q, want GET", result.Method)
	}
	if result.BytesReceived != int64(len(`{"users":[]}`)) {
		t.Errorf("BytesReceived = %d", result.BytesReceived)
	}
	if result.Latency <= 0 {
		t.Error("Latency should be positive")
	}
	if result.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type header = %q", result.Header.Get("Content-Type"))
	}
	if gotAccept != "application/json" {
		t.Errorf("server saw Accept = %q", gotAccept)
	}
	if gotAgent != "vuload/test" {
		t.Errorf("server saw User-Agent = %q", gotAgent)
	}
}

func TestExecute_Non2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := NewExecutor(DefaultClientConfig())
	defer exec.Close()

	result := exec.Execute(context.Background(), server.URL, Config{})
	if result.Status != 503 {
		t.Errorf("Status = %d, want 503", result.Status)
	}
	if !result.Failed() {
		t.Error("503 should count as failed")
	}
	if !errors.Is(result.Error, load.ErrRequestFailure) {
		t.Errorf("Error = %v, want ErrRequestFailure", result.Error)
	}
}

func TestExecute_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	exec := NewExecutor(DefaultClientConfig())
	defer exec.Close()

	start := time.Now()
	result := exec.Execute(context.Background(), server.URL, Config{Timeout: 50 * time.Millisecond})

	if time.Since(start) > time.Second {
		t.Errorf("Execute took %v, want it bounded by the timeout", time.Since(start))
	}
	if result.Status != load.StatusNoResponse {
		t.Errorf("Status = %d, want %d", result.Status, load.StatusNoResponse)
	}
	if !errors.Is(result.Error, load.ErrRequestFailure) {
		t.Errorf("Error = %v, want ErrRequestFailure", result.Error)
	}
	if !strings.Contains(result.Error.Error(), "timeout") {
		t.Errorf("Error = %v, want it to mention the timeout", result.Error)
	}
}

func TestExecute_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	exec := NewExecutor(DefaultClientConfig())
	defer exec.Close()

	result := exec.Execute(context.Background(), url, Config{})
	if result.Status != load.StatusNoResponse {
		t.Errorf("Status = %d, want 0", result.Status)
	}
	if result.Error == nil {
		t.Error("Error should be set for a refused connection")
	}
}

func TestExecute_InvalidURL(t *testing.T) {
	exec := NewExecutor(DefaultClientConfig())
	result := exec.Execute(context.Background(), "://bad", Config{})
	if !errors.Is(result.Error, load.ErrRequestFailure) {
		t.Errorf("Error = %v, want ErrRequestFailure", result.Error)
	}
}

type spyDoer struct {
	calls int
	last  *http.Request
}

func (s *spyDoer) Do(req *http.Request) (*http.Response, error) {
	s.calls++
	s.last = req
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       http.NoBody,
	}, nil
}

func TestExecute_HeaderPrecedence(t *testing.T) {
	spy := &spyDoer{}
	exec := NewExecutorWithClient(spy, ClientConfig{
		UserAgent: "vuload/1",
		Headers:   map[string]string{"Accept": "*/*", "X-Run": "a"},
	})

	result := exec.Execute(context.Background(), "http://example.test/users", Config{
		Method:  "get",
		Headers: map[string]string{"Accept": "application/json"},
	})

	if spy.calls != 1 {
		t.Fatalf("Do called %d times, want 1", spy.calls)
	}
	if got := spy.last.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, request headers should override client headers", got)
	}
	if got := spy.last.Header.Get("X-Run"); got != "a" {
		t.Errorf("X-Run = %q, want a", got)
	}
	if spy.last.Method != "GET" {
		t.Errorf("Method = %q, want GET", spy.last.Method)
	}
	if result.Status != 200 || result.Failed() {
		t.Errorf("result = %+v, want a successful 200", result)
	}
}
