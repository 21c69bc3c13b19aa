// Command sample-report renders the HTML and JSON reports from synthetic
// data, for previewing report changes without running a load test.
package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
	"github.com/wesleyorama2/vuload/internal/load/check"
	"github.com/wesleyorama2/vuload/internal/load/metrics"
	"github.com/wesleyorama2/vuload/internal/load/profile"
	"github.com/wesleyorama2/vuload/internal/load/report"
)

func main() {
	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	summary, err := sampleSummary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	render := report.HTML
	if strings.HasSuffix(strings.ToLower(outputPath), ".json") {
		render = report.JSON
	}
	if err := report.WriteArtifact(outputPath, render, summary); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

// sampleSummary replays a get-usuarios style ramp (30s up to 10 VUs, 4m
// steady, 30s down) through a real aggregator, one simulated second at a time.
func sampleSummary() (*report.Summary, error) {
	timeline, err := profile.Compile(profile.LoadProfile{Stages: []profile.Stage{
		{Duration: 30 * time.Second, Target: 10, Name: "ramp-up"},
		{Duration: 4 * time.Minute, Target: 10, Name: "steady"},
		{Duration: 30 * time.Second, Target: 0, Name: "ramp-down"},
	}})
	if err != nil {
		return nil, err
	}

	checks := check.Set{}.
		Add("status was 200", check.StatusIs(http.StatusOK)).
		Add("duration < 200ms", func(r load.RequestResult) bool { return r.Latency < 200*time.Millisecond })

	rng := rand.New(rand.NewSource(1))
	agg := metrics.NewAggregator()
	end := time.Now()
	start := end.Add(-timeline.Duration())

	for sec := time.Duration(0); sec <= timeline.Duration(); sec += time.Second {
		vus := timeline.TargetAt(sec)
		agg.SetActiveVUs(vus)
		agg.Sample(sec, vus, timeline.PhaseAt(sec))

		// Each VU sleeps 1s between requests, so it makes about one per second.
		for i := 0; i < vus; i++ {
			latency := time.Duration(20+rng.ExpFloat64()*30) * time.Millisecond
			status := http.StatusOK
			if rng.Float64() < 0.01 {
				status = http.StatusServiceUnavailable
			}
			result := load.RequestResult{
				Name:          "GET /usuarios",
				Method:        http.MethodGet,
				Status:        status,
				Latency:       latency,
				Timestamp:     start.Add(sec),
				BytesReceived: 2048,
			}
			if result.Failed() {
				result.Error = fmt.Errorf("%w: unexpected status %d", load.ErrRequestFailure, status)
			}
			agg.Record(result, check.Evaluate(result, checks))
			agg.RecordIteration()
		}
	}

	snap := agg.Snapshot()
	snap.Elapsed = timeline.Duration()
	snap.StartTime = start
	snap.RPS = float64(snap.RequestsTotal) / timeline.Duration().Seconds()

	return &report.Summary{
		RunID:       "00000000-0000-4000-8000-000000000000",
		Name:        "get-usuarios (sample)",
		Description: "Synthetic data for previewing the report",
		StartTime:   start,
		EndTime:     end,
		Planned:     timeline.Duration(),
		Breakpoints: timeline.Breakpoints(),
		Metrics:     snap,
	}, nil
}
