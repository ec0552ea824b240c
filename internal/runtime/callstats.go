package runtime

import (
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"
)

const latencySampleSize = 256

// CallStats accumulates per-service dispatch statistics. All mutation goes
// through onCallStart/onCallFinish; reads happen via MarshalJSON so the dev
// endpoints always see a consistent snapshot.
type CallStats struct {
	mu sync.Mutex `json:"-"`

	serviceName string `json:"-"`

	CallsHandled      uint64    `json:"calls_handled"`
	CallsFailed       uint64    `json:"calls_failed"`
	TotalInvokeTimeNs int64     `json:"total_invoke_time_ns"`
	LastCallAt        time.Time `json:"last_call_at"`
	LastFailure       string    `json:"last_failure,omitempty"`

	InFlight    uint64 `json:"in_flight"`
	MaxInFlight uint64 `json:"max_in_flight"`

	Latency  LatencyMetrics `json:"latency"`
	Failures FailureCounts  `json:"failures"`

	latencyWindow *latencyWindow `json:"-"`
}

// BindingInfo describes one bound service for the dev endpoints.
type BindingInfo struct {
	Name    string     `json:"name"`
	Methods []string   `json:"methods"`
	Stats   *CallStats `json:"stats"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// FailureCounts splits failed calls by who caused them: the caller sent
// something unusable, the backend method reported its declared failure, or
// the dispatch machinery itself broke.
type FailureCounts struct {
	Caller   uint64 `json:"caller"`
	Backend  uint64 `json:"backend"`
	Internal uint64 `json:"internal"`
}

func newCallStats(serviceName string) *CallStats {
	return &CallStats{
		serviceName:   serviceName,
		latencyWindow: newLatencyWindow(latencySampleSize),
	}
}

func (s *CallStats) onCallStart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.InFlight++
	if s.InFlight > s.MaxInFlight {
		s.MaxInFlight = s.InFlight
	}
}

func (s *CallStats) onCallFinish(duration time.Duration, failure *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InFlight > 0 {
		s.InFlight--
	}

	s.CallsHandled++
	s.TotalInvokeTimeNs += int64(duration)
	s.LastCallAt = time.Now().UTC()

	if failure != nil {
		s.CallsFailed++
		s.LastFailure = failure.Error()
		s.Failures.record(failure.Kind)
	}

	if s.latencyWindow != nil {
		s.latencyWindow.Add(duration)
		snapshot := s.latencyWindow.Snapshot()
		snapshot.LastNs = int64(duration)
		if s.CallsHandled > 0 {
			snapshot.AverageNs = s.TotalInvokeTimeNs / int64(s.CallsHandled)
		}
		s.Latency = snapshot
	}
}

func (f *FailureCounts) record(kind ErrorKind) {
	switch kind {
	case ErrorKindServiceNotFound, ErrorKindMethodNotFound, ErrorKindArgument,
		ErrorKindTypeMismatch, ErrorKindUnknownEnumValue:
		f.Caller++
	case ErrorKindBackend:
		f.Backend++
	default:
		f.Internal++
	}
}

func (s *CallStats) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type Alias CallStats
	return json.Marshal((*Alias)(s))
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw == nil {
		return metrics
	}
	if lw.filled == 0 {
		metrics.LastNs = lw.last
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	metrics.LastNs = lw.last
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}
