package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector backed by Prometheus.
type PrometheusCollector struct {
	reg prometheus.Registerer

	trackedObjects *prometheus.GaugeVec
	zoneChanges    *prometheus.CounterVec
	invalidZones   *prometheus.CounterVec
	pollDuration   *prometheus.HistogramVec
	engineRunning  *prometheus.GaugeVec
	sessions       prometheus.Gauge
	packets        *prometheus.CounterVec
	persistFails   *prometheus.CounterVec
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates and registers the collector's metrics.
// reg defaults to prometheus.DefaultRegisterer, namespace to "gridd".
func NewPrometheus(reg prometheus.Registerer, namespace string) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "gridd"
	}

	p := &PrometheusCollector{
		reg: reg,
		trackedObjects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "tracked_objects",
			Help:      "Objects currently registered on each grid.",
		}, []string{"grid"}),
		zoneChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "zone_changes_total",
			Help:      "Zone change notifications delivered per grid.",
		}, []string{"grid"}),
		invalidZones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "invalid_zone_total",
			Help:      "Positions that resolved outside the grid.",
		}, []string{"grid"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "poll_duration_seconds",
			Help:      "Duration of one zone migration poll.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"grid"}),
		engineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "engine_running",
			Help:      "1 while the grid's migration engine is scheduled.",
		}, []string{"grid"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "net",
			Name:      "sessions",
			Help:      "Connected peer sessions.",
		}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "net",
			Name:      "packets_total",
			Help:      "Inbound packets by opcode.",
		}, []string{"opcode"}),
		persistFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "failures_total",
			Help:      "Failed persistence flushes by operation.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{
		p.trackedObjects, p.zoneChanges, p.invalidZones, p.pollDuration,
		p.engineRunning, p.sessions, p.packets, p.persistFails,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return p, nil
}

func gridLabel(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

func (p *PrometheusCollector) SetTrackedObjects(gridID uint32, n int) {
	p.trackedObjects.WithLabelValues(gridLabel(gridID)).Set(float64(n))
}

func (p *PrometheusCollector) IncZoneChanges(gridID uint32) {
	p.zoneChanges.WithLabelValues(gridLabel(gridID)).Inc()
}

func (p *PrometheusCollector) IncInvalidZones(gridID uint32) {
	p.invalidZones.WithLabelValues(gridLabel(gridID)).Inc()
}

func (p *PrometheusCollector) ObservePoll(gridID uint32, d time.Duration) {
	p.pollDuration.WithLabelValues(gridLabel(gridID)).Observe(d.Seconds())
}

func (p *PrometheusCollector) SetEngineRunning(gridID uint32, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	p.engineRunning.WithLabelValues(gridLabel(gridID)).Set(v)
}

func (p *PrometheusCollector) SetSessions(n int) {
	p.sessions.Set(float64(n))
}

func (p *PrometheusCollector) IncPackets(opcode byte) {
	p.packets.WithLabelValues(fmt.Sprintf("0x%02X", opcode)).Inc()
}

func (p *PrometheusCollector) IncPersistFailures(op string) {
	p.persistFails.WithLabelValues(op).Inc()
}

// Handler returns the scrape handler for gatherer g, or the default
// gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
