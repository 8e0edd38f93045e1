package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	gateActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatd",
		Subsystem: "gate",
		Name:      "active",
		Help:      "Generation slots currently held.",
	})
	gateCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatd",
		Subsystem: "gate",
		Name:      "capacity",
		Help:      "Configured number of generation slots.",
	})
	gateAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatd",
		Subsystem: "gate",
		Name:      "admitted_total",
		Help:      "Requests granted a generation slot.",
	})
	gateRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatd",
		Subsystem: "gate",
		Name:      "rejected_total",
		Help:      "Requests turned away because every slot was busy.",
	})
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatd",
		Name:      "requests_total",
		Help:      "Chat requests by mode and outcome.",
	}, []string{"mode", "outcome"})
	generationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatd",
		Name:      "generation_seconds",
		Help:      "Wall-clock time spent generating, by mode.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"mode"})
	streamTokens = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatd",
		Name:      "stream_tokens_total",
		Help:      "Fragments delivered to streaming clients.",
	})
)

func init() {
	prometheus.MustRegister(gateActive, gateCapacity, gateAdmitted, gateRejected,
		requestsTotal, generationSeconds, streamTokens)
}
