package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wesleyorama2/vuload/internal/load/metrics"
)

type jsonDocument struct {
	RunID       string                 `json:"runId"`
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	StartTime   time.Time              `json:"startTime"`
	EndTime     time.Time              `json:"endTime"`
	ElapsedMs   float64                `json:"elapsedMs"`
	PlannedMs   float64                `json:"plannedMs"`
	Interrupted bool                   `json:"interrupted"`
	Profile     []jsonBreakpoint       `json:"profile"`
	Metrics     jsonMetrics            `json:"metrics"`
	Checks      []jsonCheck            `json:"checks"`
	Requests    map[string]jsonLatency `json:"requests,omitempty"`
	TimeSeries  []jsonSample           `json:"timeSeries"`
}

type jsonBreakpoint struct {
	OffsetMs float64 `json:"offsetMs"`
	Target   int     `json:"target"`
}

type jsonMetrics struct {
	HTTPReqs        jsonCounter `json:"http_reqs"`
	Interrupted     int64       `json:"http_reqs_interrupted"`
	HTTPReqFailed   jsonRate    `json:"http_req_failed"`
	HTTPReqDuration jsonLatency `json:"http_req_duration"`
	Iterations      jsonCounter `json:"iterations"`
	Checks          jsonRate    `json:"checks"`
	DataReceived    jsonCounter `json:"data_received"`
	VUsMax          int         `json:"vus_max"`
}

type jsonCounter struct {
	Count int64   `json:"count"`
	Rate  float64 `json:"rate"`
}

type jsonRate struct {
	Passes int64   `json:"passes"`
	Fails  int64   `json:"fails"`
	Rate   float64 `json:"rate"`
}

type jsonLatency struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Med   float64 `json:"med"`
	Max   float64 `json:"max"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

type jsonCheck struct {
	Name   string  `json:"name"`
	Passes int64   `json:"passes"`
	Fails  int64   `json:"fails"`
	Rate   float64 `json:"rate"`
}

type jsonSample struct {
	ElapsedMs      float64 `json:"elapsedMs"`
	ActiveVUs      int     `json:"activeVUs"`
	TargetVUs      int     `json:"targetVUs"`
	TotalRequests  int64   `json:"totalRequests"`
	FailedRequests int64   `json:"failedRequests"`
	Phase          string  `json:"phase"`
}

// JSON renders the summary as a machine-readable document. Latencies are in
// milliseconds; http_req_failed counts failed requests as passes, as k6 does.
func JSON(s *Summary) ([]byte, error) {
	if s == nil || s.Metrics == nil {
		return nil, fmt.Errorf("summary has no metrics")
	}
	m := s.Metrics

	doc := jsonDocument{
		RunID:       s.RunID,
		Name:        s.Name,
		Description: s.Description,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		ElapsedMs:   milliseconds(s.Elapsed()),
		PlannedMs:   milliseconds(s.Planned),
		Interrupted: s.Interrupted,
		Profile:     make([]jsonBreakpoint, len(s.Breakpoints)),
		Checks:      make([]jsonCheck, len(m.Checks)),
		TimeSeries:  make([]jsonSample, len(m.TimeSeries)),
		Metrics: jsonMetrics{
			HTTPReqs: jsonCounter{Count: m.RequestsTotal, Rate: m.RPS},
			HTTPReqFailed: jsonRate{
				Passes: m.RequestsFailed,
				Fails:  m.RequestsTotal - m.RequestsFailed - m.Interrupted,
				Rate:   m.ErrorRate,
			},
			Interrupted:     m.Interrupted,
			HTTPReqDuration: latencyJSON(m.Latency),
			Iterations:      jsonCounter{Count: m.Iterations, Rate: s.IterationRate()},
			Checks: jsonRate{
				Passes: m.ChecksPassed,
				Fails:  m.ChecksFailed,
				Rate:   m.CheckPassRate,
			},
			DataReceived: jsonCounter{Count: m.BytesReceived},
			VUsMax:       m.MaxVUs,
		},
	}
	if elapsed := s.Elapsed().Seconds(); elapsed > 0 {
		doc.Metrics.DataReceived.Rate = float64(m.BytesReceived) / elapsed
	}

	for i, bp := range s.Breakpoints {
		doc.Profile[i] = jsonBreakpoint{OffsetMs: milliseconds(bp.Offset), Target: bp.Target}
	}
	for i, c := range m.Checks {
		doc.Checks[i] = jsonCheck{Name: c.Name, Passes: c.Passes, Fails: c.Fails, Rate: c.PassRate()}
	}
	for i, p := range m.TimeSeries {
		doc.TimeSeries[i] = jsonSample{
			ElapsedMs:      milliseconds(p.Elapsed),
			ActiveVUs:      p.ActiveVUs,
			TargetVUs:      p.TargetVUs,
			TotalRequests:  p.TotalRequests,
			FailedRequests: p.FailedRequests,
			Phase:          string(p.Phase),
		}
	}
	if len(m.Requests) > 0 {
		doc.Requests = make(map[string]jsonLatency, len(m.Requests))
		for name, l := range m.Requests {
			doc.Requests[name] = latencyJSON(l)
		}
	}

	return json.MarshalIndent(doc, "", "  ")
}

func latencyJSON(l metrics.LatencyStats) jsonLatency {
	return jsonLatency{
		Count: l.Count,
		Avg:   milliseconds(l.Mean),
		Min:   milliseconds(l.Min),
		Med:   milliseconds(l.P50),
		Max:   milliseconds(l.Max),
		P90:   milliseconds(l.P90),
		P95:   milliseconds(l.P95),
		P99:   milliseconds(l.P99),
	}
}
