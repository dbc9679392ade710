package quality

import "github.com/prometheus/client_golang/prometheus"

// PromSink reports evaluator metrics to Prometheus, keyed by metric name and
// the hallucination-severity tag Evaluate attaches to every metric.
type PromSink struct {
	gauge *prometheus.GaugeVec
}

func NewPromSink(reg prometheus.Registerer) *PromSink {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rag_quality_score",
		Help: "Latest quality metric value by metric name and severity tag.",
	}, []string{"metric", "severity"})
	reg.MustRegister(g)
	return &PromSink{gauge: g}
}

func (s *PromSink) Observe(name string, value float64, tags map[string]string) {
	s.gauge.WithLabelValues(name, tags["severity"]).Set(value)
}
