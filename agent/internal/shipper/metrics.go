package shipper

import (
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	metricRecords  = "logshipper_records_total"
	metricDegraded = "logshipper_degraded_records_total"
)

// Metrics counts push outcomes. One Metrics can outlive several Shippers
// (the agent rebuilds its shipper on config reload) and is safe for
// concurrent use.
type Metrics struct {
	byOutcome map[Outcome]*atomic.Uint64 // keys fixed at construction
	degraded  atomic.Uint64
}

// NewMetrics returns zeroed counters for every Outcome.
func NewMetrics() *Metrics {
	m := &Metrics{byOutcome: make(map[Outcome]*atomic.Uint64, len(outcomes))}
	for _, o := range outcomes {
		m.byOutcome[o] = new(atomic.Uint64)
	}
	return m
}

func (m *Metrics) observe(r Result) {
	if c, ok := m.byOutcome[r.Outcome]; ok {
		c.Add(1)
	}
	if r.Degraded {
		m.degraded.Add(1)
	}
}

// Count returns the number of records observed with outcome o.
func (m *Metrics) Count(o Outcome) uint64 {
	if c, ok := m.byOutcome[o]; ok {
		return c.Load()
	}
	return 0
}

// Degraded returns the number of records shipped with stringified context.
func (m *Metrics) Degraded() uint64 { return m.degraded.Load() }

// Families returns the current counters as Prometheus metric families.
func (m *Metrics) Families() []*dto.MetricFamily {
	records := &dto.MetricFamily{
		Name: ptr(metricRecords),
		Help: ptr("Log records handled by the shipper, by outcome."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, o := range outcomes {
		records.Metric = append(records.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: ptr("outcome"), Value: ptr(string(o))}},
			Counter: &dto.Counter{Value: ptr(float64(m.Count(o)))},
		})
	}

	degraded := &dto.MetricFamily{
		Name: ptr(metricDegraded),
		Help: ptr("Log records whose context was partially stringified to be serializable."),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: ptr(float64(m.Degraded()))},
		}},
	}

	return []*dto.MetricFamily{records, degraded}
}

// WriteText writes the counters in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range m.Families() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// ServeHTTP exposes the counters on a /metrics endpoint.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err := m.WriteText(w); err != nil {
		slog.Warn("shipper: write metrics failed", "err", err)
	}
}

func ptr[T any](v T) *T { return &v }
