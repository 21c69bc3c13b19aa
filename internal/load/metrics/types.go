package metrics

import (
	"time"

	"github.com/wesleyorama2/vuload/internal/load/profile"
)

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	RequestsTotal  int64                   `json:"requestsTotal"`
	RequestsFailed int64                   `json:"requestsFailed"`
	Interrupted    int64                   `json:"interrupted"`
	ChecksPassed   int64                   `json:"checksPassed"`
	ChecksFailed   int64                   `json:"checksFailed"`
	Iterations     int64                   `json:"iterations"`
	BytesReceived  int64                   `json:"bytesReceived"`
	Latency        LatencyStats            `json:"latency"`
	RPS            float64                 `json:"rps"`
	ErrorRate      float64                 `json:"errorRate"`
	CheckPassRate  float64                 `json:"checkPassRate"`
	MaxVUs         int                     `json:"maxVUs"`
	Elapsed        time.Duration           `json:"elapsed"`
	StartTime      time.Time               `json:"startTime"`
	Checks         []CheckStats            `json:"checks,omitempty"`
	Requests       map[string]LatencyStats `json:"requests,omitempty"`
	TimeSeries     []Sample                `json:"timeSeries,omitempty"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// CheckStats is the tally for one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// PassRate returns the fraction of evaluations that passed.
func (c CheckStats) PassRate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// Sample is one point of the run's time series, taken on each control tick.
type Sample struct {
	Elapsed        time.Duration `json:"elapsed"`
	ActiveVUs      int           `json:"activeVUs"`
	TargetVUs      int           `json:"targetVUs"`
	TotalRequests  int64         `json:"totalRequests"`
	FailedRequests int64         `json:"failedRequests"`
	Phase          profile.Phase `json:"phase"`
}

// Live holds the counters shown while a run is in progress.
type Live struct {
	Elapsed        time.Duration
	ActiveVUs      int
	TotalRequests  int64
	FailedRequests int64
	ChecksPassed   int64
	ChecksFailed   int64
	Iterations     int64
}

// ErrorRate returns the failed request fraction.
func (l Live) ErrorRate() float64 {
	if l.TotalRequests == 0 {
		return 0
	}
	return float64(l.FailedRequests) / float64(l.TotalRequests)
}
