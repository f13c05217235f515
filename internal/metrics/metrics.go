// Package metrics records how long the expensive projection phases take.
//
// Sessions receive a Sink instead of writing to process-wide counters, so
// concurrent sessions can be observed independently.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Phase names a timed projection phase.
type Phase string

// Timed phases.
const (
	PhaseSetupProjections  Phase = "setup_projections"
	PhaseOverlapSetup      Phase = "overlap_setup"
	PhaseCompensationTerms Phase = "compensation_terms"
)

// Phases lists every phase in pipeline order.
var Phases = []Phase{PhaseSetupProjections, PhaseOverlapSetup, PhaseCompensationTerms}

// Sink receives phase durations.
type Sink interface {
	Observe(phase Phase, d time.Duration)
}

// Discard drops every observation.
var Discard Sink = discard{}

type discard struct{}

func (discard) Observe(Phase, time.Duration) {}

// Totals is an accumulated duration and observation count.
type Totals struct {
	Total time.Duration
	Count int
}

// Accumulator sums durations per phase. It is safe for concurrent use.
type Accumulator struct {
	mu     sync.Mutex
	totals map[Phase]Totals
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{totals: make(map[Phase]Totals)}
}

// Observe implements Sink.
func (a *Accumulator) Observe(phase Phase, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := a.totals[phase]
	t.Total += d
	t.Count++
	a.totals[phase] = t
}

// Get returns the totals of phase.
func (a *Accumulator) Get(phase Phase) Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals[phase]
}

// Snapshot returns a copy of every phase's totals.
func (a *Accumulator) Snapshot() map[Phase]Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[Phase]Totals, len(a.totals))
	for k, v := range a.totals {
		out[k] = v
	}
	return out
}

// Prometheus exports phase durations as a histogram vector.
type Prometheus struct {
	durations *prometheus.HistogramVec
}

// NewPrometheus registers pawseed_phase_duration_seconds on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pawseed",
		Name:      "phase_duration_seconds",
		Help:      "Duration of projection phases.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"phase"})
	if err := reg.Register(h); err != nil {
		return nil, err
	}
	return &Prometheus{durations: h}, nil
}

// Observe implements Sink.
func (p *Prometheus) Observe(phase Phase, d time.Duration) {
	p.durations.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// Multi fans observations out to several sinks.
type Multi []Sink

// Observe implements Sink.
func (m Multi) Observe(phase Phase, d time.Duration) {
	for _, s := range m {
		s.Observe(phase, d)
	}
}

// Time runs fn and reports its duration to sink under phase.
func Time(sink Sink, phase Phase, fn func() error) error {
	start := time.Now()
	err := fn()
	sink.Observe(phase, time.Since(start))
	return err
}

// Tracer returns the tracer used for projection spans. Without a
// configured provider the global no-op tracer is returned.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/leapstack-labs/pawseed")
}
