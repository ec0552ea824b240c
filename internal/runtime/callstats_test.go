package runtime

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCallStatsCountsOutcomes(t *testing.T) {
	stats := newCallStats("Greeter")

	stats.onCallStart()
	stats.onCallFinish(5*time.Millisecond, nil)
	stats.onCallStart()
	stats.onCallFinish(10*time.Millisecond, &Failure{Kind: ErrorKindBackend, Message: "nope"})
	stats.onCallStart()
	stats.onCallFinish(time.Millisecond, &Failure{Kind: ErrorKindTypeMismatch, Message: "arg"})

	if stats.CallsHandled != 3 || stats.CallsFailed != 2 {
		t.Fatalf("handled=%d failed=%d", stats.CallsHandled, stats.CallsFailed)
	}
	if stats.Failures.Backend != 1 || stats.Failures.Caller != 1 || stats.Failures.Internal != 0 {
		t.Fatalf("failures = %+v", stats.Failures)
	}
	if stats.LastFailure != "TypeMismatch: arg" {
		t.Fatalf("last failure = %q", stats.LastFailure)
	}
	if stats.InFlight != 0 {
		t.Fatalf("in flight = %d", stats.InFlight)
	}
}

func TestCallStatsTracksMaxInFlight(t *testing.T) {
	stats := newCallStats("Greeter")

	stats.onCallStart()
	stats.onCallStart()
	stats.onCallStart()
	stats.onCallFinish(time.Millisecond, nil)
	stats.onCallStart()

	if stats.MaxInFlight != 3 {
		t.Fatalf("max in flight = %d", stats.MaxInFlight)
	}
	if stats.InFlight != 3 {
		t.Fatalf("in flight = %d", stats.InFlight)
	}
}

func TestCallStatsLatencyPercentiles(t *testing.T) {
	stats := newCallStats("Greeter")
	for i := 1; i <= 100; i++ {
		stats.onCallStart()
		stats.onCallFinish(time.Duration(i)*time.Millisecond, nil)
	}

	lat := stats.Latency
	if lat.SampleSize != 100 {
		t.Fatalf("sample size = %d", lat.SampleSize)
	}
	if lat.LastNs != int64(100*time.Millisecond) {
		t.Fatalf("last = %d", lat.LastNs)
	}
	if lat.P50Ns >= lat.P95Ns || lat.P95Ns >= lat.P99Ns {
		t.Fatalf("percentiles not ordered: p50=%d p95=%d p99=%d", lat.P50Ns, lat.P95Ns, lat.P99Ns)
	}
	if lat.P50Ns < int64(40*time.Millisecond) || lat.P50Ns > int64(60*time.Millisecond) {
		t.Fatalf("p50 = %v", time.Duration(lat.P50Ns))
	}
}

func TestLatencyWindowEvictsOldSamples(t *testing.T) {
	lw := newLatencyWindow(4)
	for i := 1; i <= 10; i++ {
		lw.Add(time.Duration(i) * time.Second)
	}
	snap := lw.Snapshot()
	if snap.SampleSize != 4 {
		t.Fatalf("sample size = %d", snap.SampleSize)
	}
	// Only 7..10 remain in the ring.
	if snap.P50Ns < int64(7*time.Second) {
		t.Fatalf("old samples survived eviction: p50 = %v", time.Duration(snap.P50Ns))
	}
}

func TestCallStatsMarshalsWithoutInternals(t *testing.T) {
	stats := newCallStats("Greeter")
	stats.onCallStart()
	stats.onCallFinish(time.Millisecond, nil)

	out, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["calls_handled"] != float64(1) {
		t.Fatalf("calls_handled = %v", decoded["calls_handled"])
	}
	if _, leaked := decoded["serviceName"]; leaked {
		t.Fatalf("internal field leaked into JSON: %s", out)
	}
}
