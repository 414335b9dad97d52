package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the node's Prometheus metrics and provides the /metrics
// handler. Its methods satisfy the instrumentation interfaces of the scanner
// and the reporter, so those packages stay free of Prometheus types.
type Collector struct {
	gatherer prometheus.Gatherer

	TrackedPeers    prometheus.Gauge
	RegisteredNodes prometheus.Gauge
	RSSISamples     prometheus.Counter
	RSSISubmitted   prometheus.Counter
	ReportCycles    *prometheus.CounterVec
	TrustScoreError prometheus.Histogram
}

// NewCollector registers the node metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	trackedPeers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanner_tracked_peers",
		Help: "Number of peers currently under RSSI observation.",
	}), "scanner_tracked_peers")
	if err != nil {
		return nil, err
	}
	registeredNodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_registered_nodes",
		Help: "Number of nodes currently registered on the ledger.",
	}), "ledger_registered_nodes")
	if err != nil {
		return nil, err
	}

	samples, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanner_rssi_samples_total",
		Help: "Raw RSSI samples pushed into peer windows.",
	}), "scanner_rssi_samples_total")
	if err != nil {
		return nil, err
	}
	submitted, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rssi_reports_submitted_total",
		Help: "RSSI observations accepted by the ledger.",
	}), "rssi_reports_submitted_total")
	if err != nil {
		return nil, err
	}

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_cycles_total",
		Help: "Completed report cycles, labeled by outcome.",
	}, []string{"outcome"})
	cycles, err = registerCounterVec(reg, cycles, "report_cycles_total")
	if err != nil {
		return nil, err
	}

	scoreError, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trust_score_error_dbm",
		Help:    "Trimmed median RSSI deviation per scored node, in dB.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 40, 80},
	}), "trust_score_error_dbm")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		TrackedPeers:    trackedPeers,
		RegisteredNodes: registeredNodes,
		RSSISamples:     samples,
		RSSISubmitted:   submitted,
		ReportCycles:    cycles,
		TrustScoreError: scoreError,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetTrackedPeers implements the scanner's metrics hook.
func (c *Collector) SetTrackedPeers(n int) {
	if c != nil && c.TrackedPeers != nil {
		c.TrackedPeers.Set(float64(n))
	}
}

// AddRSSISample implements the scanner's metrics hook.
func (c *Collector) AddRSSISample() {
	if c != nil && c.RSSISamples != nil {
		c.RSSISamples.Inc()
	}
}

// AddReportCycle implements the reporter's metrics hook.
func (c *Collector) AddReportCycle(outcome string) {
	if c != nil && c.ReportCycles != nil {
		c.ReportCycles.WithLabelValues(outcome).Inc()
	}
}

// AddRSSISubmitted implements the reporter's metrics hook.
func (c *Collector) AddRSSISubmitted() {
	if c != nil && c.RSSISubmitted != nil {
		c.RSSISubmitted.Inc()
	}
}

// SetRegisteredNodes records the ledger's registry size.
func (c *Collector) SetRegisteredNodes(n int) {
	if c != nil && c.RegisteredNodes != nil {
		c.RegisteredNodes.Set(float64(n))
	}
}

// ObserveTrustScore records one defined trust score.
func (c *Collector) ObserveTrustScore(medianErrorDbm int16) {
	if c == nil || c.TrustScoreError == nil {
		return
	}
	v := float64(medianErrorDbm)
	if v < 0 {
		v = -v
	}
	c.TrustScoreError.Observe(v)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
