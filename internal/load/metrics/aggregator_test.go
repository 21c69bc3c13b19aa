package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wesleyorama2/vuload/internal/load"
	"github.com/wesleyorama2/vuload/internal/load/profile"
)

func okResult(latency time.Duration) load.RequestResult {
	return load.RequestResult{
		Name:          "get",
		Method:        "GET",
		URL:           "http://localhost/",
		Status:        200,
		Latency:       latency,
		Timestamp:     time.Now(),
		BytesReceived: 100,
	}
}

func TestNewAggregator(t *testing.T) {
	agg := NewAggregator()
	snap := agg.Snapshot()

	if snap.RequestsTotal != 0 {
		t.Errorf("Initial RequestsTotal = %d, want 0", snap.RequestsTotal)
	}
	if snap.Latency.Count != 0 {
		t.Errorf("Initial Latency.Count = %d, want 0", snap.Latency.Count)
	}
	if len(snap.Checks) != 0 {
		t.Errorf("Initial Checks = %v, want none", snap.Checks)
	}
}

func TestAggregator_Record(t *testing.T) {
	agg := NewAggregator()

	agg.Record(okResult(10*time.Millisecond), []load.CheckResult{{Name: "status was 200", Passed: true}})
	agg.Record(okResult(20*time.Millisecond), []load.CheckResult{{Name: "status was 200", Passed: true}})

	failed := okResult(5 * time.Millisecond)
	failed.Status = load.StatusNoResponse
	failed.Error = errors.New("connection refused")
	failed.BytesReceived = 0
	agg.Record(failed, []load.CheckResult{{Name: "status was 200", Passed: false}})

	snap := agg.Snapshot()
	if snap.RequestsTotal != 3 {
		t.Errorf("RequestsTotal = %d, want 3", snap.RequestsTotal)
	}
	if snap.RequestsFailed != 1 {
		t.Errorf("RequestsFailed = %d, want 1", snap.RequestsFailed)
	}
	if snap.ChecksPassed != 2 || snap.ChecksFailed != 1 {
		t.Errorf("checks = %d/%d, want 2/1", snap.ChecksPassed, snap.ChecksFailed)
	}
	if snap.BytesReceived != 200 {
		t.Errorf("BytesReceived = %d, want 200", snap.BytesReceived)
	}
	if len(snap.Checks) != 1 || snap.Checks[0].Passes != 2 || snap.Checks[0].Fails != 1 {
		t.Errorf("Checks = %+v, want one check with 2 passes and 1 fail", snap.Checks)
	}
	if _, ok := snap.Requests["get"]; !ok {
		t.Error("per-request stats missing for \"get\"")
	}
}

func TestAggregator_Non2xxCountsAsFailed(t *testing.T) {
	agg := NewAggregator()

	r := okResult(time.Millisecond)
	r.Status = 500
	agg.Record(r, nil)
	r.Status = 404
	agg.Record(r, nil)
	r.Status = 204
	agg.Record(r, nil)

	snap := agg.Snapshot()
	if snap.RequestsFailed != 2 {
		t.Errorf("RequestsFailed = %d, want 2", snap.RequestsFailed)
	}
	if snap.ErrorRate < 0.66 || snap.ErrorRate > 0.67 {
		t.Errorf("ErrorRate = %v, want ~0.667", snap.ErrorRate)
	}
}

func TestAggregator_InterruptedIsNotAFailure(t *testing.T) {
	agg := NewAggregator()

	agg.Record(okResult(time.Millisecond), nil)

	failed := okResult(time.Millisecond)
	failed.Status = 503
	agg.Record(failed, nil)

	cut := okResult(time.Millisecond)
	cut.Status = load.StatusNoResponse
	cut.Error = fmt.Errorf("%w: %w", load.ErrInterrupted, load.ErrRequestFailure)
	agg.Record(cut, nil)

	snap := agg.Snapshot()
	if snap.RequestsTotal != 3 {
		t.Errorf("RequestsTotal = %d, want 3", snap.RequestsTotal)
	}
	if snap.RequestsFailed != 1 {
		t.Errorf("RequestsFailed = %d, want 1", snap.RequestsFailed)
	}
	if snap.Interrupted != 1 {
		t.Errorf("Interrupted = %d, want 1", snap.Interrupted)
	}
	if snap.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5 (interrupted excluded)", snap.ErrorRate)
	}
}

func TestAggregator_CheckOrderIsFirstSeen(t *testing.T) {
	agg := NewAggregator()
	agg.Record(okResult(time.Millisecond), []load.CheckResult{
		{Name: "b", Passed: true},
		{Name: "a", Passed: false},
		{Name: "c", Passed: true},
	})
	agg.Record(okResult(time.Millisecond), []load.CheckResult{{Name: "a", Passed: true}})

	snap := agg.Snapshot()
	want := []string{"b", "a", "c"}
	if len(snap.Checks) != len(want) {
		t.Fatalf("len(Checks) = %d, want %d", len(snap.Checks), len(want))
	}
	for i, name := range want {
		if snap.Checks[i].Name != name {
			t.Errorf("Checks[%d].Name = %q, want %q", i, snap.Checks[i].Name, name)
		}
	}
	if rate := snap.Checks[1].PassRate(); rate != 0.5 {
		t.Errorf("Checks[a].PassRate() = %v, want 0.5", rate)
	}
}

func TestAggregator_LatencyPercentiles(t *testing.T) {
	agg := NewAggregator()
	for i := 1; i <= 10; i++ {
		agg.Record(okResult(time.Duration(i*10)*time.Millisecond), nil)
	}

	lat := agg.Snapshot().Latency

	// HDR histogram binning allows small deviations
	if lat.P50 < 40*time.Millisecond || lat.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", lat.P50)
	}
	if lat.Min < 9*time.Millisecond || lat.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", lat.Min)
	}
	if lat.Max < 99*time.Millisecond || lat.Max > 101*time.Millisecond {
		t.Errorf("Max = %v, want ~100ms", lat.Max)
	}
	if lat.Count != 10 {
		t.Errorf("Count = %d, want 10", lat.Count)
	}
}

func TestAggregator_ConcurrentRecordIsExact(t *testing.T) {
	agg := NewAggregator()

	const vus = 50
	const iterations = 10

	var wg sync.WaitGroup
	for v := 0; v < vus; v++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				agg.Record(okResult(time.Millisecond), []load.CheckResult{
					{Name: "first", Passed: false},
					{Name: "second", Passed: true},
				})
				agg.RecordIteration()
			}
		}()
	}
	wg.Wait()

	snap := agg.Snapshot()
	if snap.RequestsTotal != vus*iterations {
		t.Errorf("RequestsTotal = %d, want %d", snap.RequestsTotal, vus*iterations)
	}
	if snap.Iterations != vus*iterations {
		t.Errorf("Iterations = %d, want %d", snap.Iterations, vus*iterations)
	}
	if snap.ChecksPassed != vus*iterations || snap.ChecksFailed != vus*iterations {
		t.Errorf("checks = %d/%d, want %d/%d", snap.ChecksPassed, snap.ChecksFailed, vus*iterations, vus*iterations)
	}
	if snap.Latency.Count != vus*iterations {
		t.Errorf("Latency.Count = %d, want %d", snap.Latency.Count, vus*iterations)
	}
}

func TestAggregator_ActiveVUsHighWaterMark(t *testing.T) {
	agg := NewAggregator()
	agg.SetActiveVUs(3)
	agg.SetActiveVUs(8)
	agg.SetActiveVUs(2)

	if agg.ActiveVUs() != 2 {
		t.Errorf("ActiveVUs() = %d, want 2", agg.ActiveVUs())
	}
	if snap := agg.Snapshot(); snap.MaxVUs != 8 {
		t.Errorf("MaxVUs = %d, want 8", snap.MaxVUs)
	}
}

func TestAggregator_SamplesAreBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSamples = 3
	agg := NewAggregatorWithConfig(cfg)

	for i := 0; i < 5; i++ {
		agg.Sample(time.Duration(i)*time.Second, i, profile.PhaseSteady)
	}

	series := agg.Snapshot().TimeSeries
	if len(series) != 3 {
		t.Fatalf("len(TimeSeries) = %d, want 3", len(series))
	}
	if series[0].Elapsed != 2*time.Second {
		t.Errorf("oldest sample = %v, want 2s", series[0].Elapsed)
	}
	if series[2].TargetVUs != 4 {
		t.Errorf("newest TargetVUs = %d, want 4", series[2].TargetVUs)
	}
}

func TestAggregator_FinishFreezesElapsed(t *testing.T) {
	agg := NewAggregator()
	agg.Start()
	agg.Record(okResult(time.Millisecond), nil)
	agg.Finish()

	first := agg.Snapshot().Elapsed
	time.Sleep(20 * time.Millisecond)
	second := agg.Snapshot().Elapsed

	if first != second {
		t.Errorf("Elapsed changed after Finish: %v then %v", first, second)
	}
}
