package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "pilotpros"
	subsystem = "monitor"
)

// 包级 Prometheus collector, 通过 Register 注册
var (
	regOK atomic.Bool

	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_up",
			Help:      "Whether the service container is running: 1 - running; 0 - not running.",
		}, []string{"service"},
	)
	serviceHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_healthy",
			Help:      "Whether the service is healthy: 1 - healthy; 0 - otherwise.",
		}, []string{"service"},
	)
	serviceCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_cpu_percent",
			Help:      "Last sampled CPU usage of the service container.",
		}, []string{"service"},
	)
	serviceMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_memory_percent",
			Help:      "Last sampled memory usage of the service container.",
		}, []string{"service"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restarts_total",
			Help:      "Number of restart operations by result.",
		}, []string{"service", "success"},
	)
	recoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auto_recoveries_total",
			Help:      "Automated recovery decisions for unhealthy services.",
		}, []string{"service", "outcome"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_transitions_total",
			Help:      "Number of status transitions between polls.",
		}, []string{"service", "from", "to"},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Number of logged events by level.",
		}, []string{"level"},
	)
	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a full fleet poll including recovery.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers",
			Help:      "Currently connected realtime subscribers.",
		},
	)
)

// Register 向 registerer 注册全部 collector; 成功后重复调用为空操作
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceUp, serviceHealthy, serviceCPU, serviceMemory, restarts, recoveries, transitions, events, pollDuration, subscribers}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler 返回默认 registry 的 /metrics handler
func Handler() http.Handler { return promhttp.Handler() }

// 以下辅助函数在 Register 之前调用时不做任何事

func SetServiceState(service string, up, healthy bool, cpuPercent, memoryPercent float64) {
	if !regOK.Load() {
		return
	}
	serviceUp.WithLabelValues(service).Set(boolToFloat64(up))
	serviceHealthy.WithLabelValues(service).Set(boolToFloat64(healthy))
	serviceCPU.WithLabelValues(service).Set(cpuPercent)
	serviceMemory.WithLabelValues(service).Set(memoryPercent)
}

func ObserveRestart(service string, success bool) {
	if regOK.Load() {
		restarts.WithLabelValues(service, strconv.FormatBool(success)).Inc()
	}
}

func IncRecovery(service, outcome string) {
	if regOK.Load() {
		recoveries.WithLabelValues(service, outcome).Inc()
	}
}

func RecordTransition(service, from, to string) {
	if regOK.Load() {
		transitions.WithLabelValues(service, from, to).Inc()
	}
}

func IncEvent(level string) {
	if regOK.Load() {
		events.WithLabelValues(level).Inc()
	}
}

func ObservePollDuration(seconds float64) {
	if regOK.Load() {
		pollDuration.Observe(seconds)
	}
}

func SetSubscribers(n int) {
	if regOK.Load() {
		subscribers.Set(float64(n))
	}
}

func boolToFloat64(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
