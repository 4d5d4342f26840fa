package metrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "cluster_rpc"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	ConnectionState        GaugeVec
	ReconnectionsTotal     Counter
	SwitchAttemptsTotal    CounterVec
	RequestsTotal          CounterVec
	RequestRetriesTotal    Counter
	RequestDurationSeconds Histogram
	EventsDispatchedTotal  CounterVec
	PanicRecoveriesTotal   CounterVec

	Up         Gauge
	Goroutines GaugeFunc
)

// initMetrics initializes all metric variables.
// This must be called after SetEnabled() to ensure proper noop behavior when disabled.
func initMetrics() {
	ConnectionState = newGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Client connection state (1=connected, 0=disconnected)",
		},
		[]string{"state"},
	)

	ReconnectionsTotal = newCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnections_total",
			Help:      "Total number of server switch loops started",
		},
	)

	SwitchAttemptsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "switch_attempts_total",
			Help:      "Total number of server switch connect attempts",
		},
		[]string{"result"},
	)

	RequestsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of client requests",
		},
		[]string{"result"},
	)

	RequestRetriesTotal = newCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Total number of request attempts that were retried",
		},
	)

	RequestDurationSeconds = newHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of successful requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
	)

	EventsDispatchedTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Total number of connection events dispatched to listeners",
		},
		[]string{"event_type"},
	)

	PanicRecoveriesTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panic_recoveries_total",
			Help:      "Total number of panic recoveries",
		},
		[]string{"component"},
	)

	Up = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Client engine liveness indicator (1=up, 0=down)",
		},
	)

	Goroutines = newGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
		func() float64 {
			return float64(runtime.NumGoroutine())
		},
	)
}

func registerCounterVec(v CounterVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*counterVecWrapper); ok {
		_ = registry.Register(wrapper.CounterVec)
	}
}

func registerCounter(v Counter) {
	if !Enabled {
		return
	}
	if c, ok := v.(prometheus.Counter); ok {
		_ = registry.Register(c)
	}
}

func registerHistogram(v Histogram) {
	if !Enabled {
		return
	}
	if h, ok := v.(prometheus.Histogram); ok {
		_ = registry.Register(h)
	}
}

func registerGaugeVec(v GaugeVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*gaugeVecWrapper); ok {
		_ = registry.Register(wrapper.GaugeVec)
	}
}

func registerGauge(v Gauge) {
	if !Enabled {
		return
	}
	if g, ok := v.(prometheus.Gauge); ok {
		_ = registry.Register(g)
	}
}

func registerGaugeFunc(v GaugeFunc) {
	if !Enabled || v == nil {
		return
	}
	_ = registry.Register(v)
}

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registerGaugeVec(ConnectionState)
	registerCounter(ReconnectionsTotal)
	registerCounterVec(SwitchAttemptsTotal)
	registerCounterVec(RequestsTotal)
	registerCounter(RequestRetriesTotal)
	registerHistogram(RequestDurationSeconds)
	registerCounterVec(EventsDispatchedTotal)
	registerCounterVec(PanicRecoveriesTotal)

	registerGauge(Up)
	registerGaugeFunc(Goroutines)

	Up.Set(1)
}

// Init initializes the metrics registry with all collectors.
// This must be called after SetEnabled() has been called.
func Init() *prometheus.Registry {
	once.Do(func() {
		initMetrics()

		if !Enabled {
			registry = prometheus.NewRegistry()
			return
		}
		initRegistry()
	})

	return registry
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}
