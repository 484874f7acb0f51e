package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/AnatoleLucet/sigtree/internal/state"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes queue drains, frames and dispatches.
// It implements internal.QueueObserver and internal.FrameObserver.
type Metrics struct {
	drainDuration *prometheus.HistogramVec
	tasks         *prometheus.CounterVec
	taskFailures  *prometheus.CounterVec
	frameDuration prometheus.Histogram

	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		drainDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "drain_duration_seconds",
				Help:      "Duration of full queue drains in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "tasks_total",
				Help:      "Tasks executed by queue drains.",
			},
			[]string{"queue"},
		),
		taskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "task_failures_total",
				Help:      "Tasks that panicked during a drain.",
			},
			[]string{"queue"},
		),
		frameDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "frame",
				Name:      "duration_seconds",
				Help:      "Frame duration in seconds.",
				Buckets:   []float64{.001, .002, .004, .008, .016, .033, .066, .1, .25},
			},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "dispatches_total",
				Help:      "Dispatches that reached a root store.",
			},
			[]string{"kind", "status"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "dispatch_duration_seconds",
				Help:      "Dispatch duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	collectors := []prometheus.Collector{
		m.drainDuration, m.tasks, m.taskFailures, m.frameDuration,
		m.dispatches, m.dispatchDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns metrics registered once on the default prometheus registry.
func DefaultMetrics(namespace string) *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(namespace, prometheus.DefaultRegisterer)
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})

	return defaultMetrics
}

func (m *Metrics) ObserveDrain(queue string, executed, failed int, elapsed time.Duration) {
	m.drainDuration.WithLabelValues(queue).Observe(elapsed.Seconds())
	m.tasks.WithLabelValues(queue).Add(float64(executed))
	if failed > 0 {
		m.taskFailures.WithLabelValues(queue).Add(float64(failed))
	}
}

func (m *Metrics) ObserveFrame(elapsed time.Duration) {
	m.frameDuration.Observe(elapsed.Seconds())
}

// DispatchMiddleware counts root dispatches by kind and outcome.
func (m *Metrics) DispatchMiddleware() state.Middleware {
	return func(s *state.Store, action any, payload []any, next state.Next) (any, error) {
		kind := actionKind(action)
		start := time.Now()

		result, err := next(nil)

		status := "ok"
		if err != nil {
			status = "error"
		}
		m.dispatches.WithLabelValues(kind, status).Inc()
		m.dispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

		return result, err
	}
}

// action names are unbounded, only their kind is a label
func actionKind(action any) string {
	name, ok := action.(string)
	if !ok {
		return "thunk"
	}

	if i := strings.LastIndex(name, "/"); i != -1 {
		name = name[i+1:]
	}

	switch {
	case name == state.InitAction:
		return "init"
	case strings.HasPrefix(name, state.ImplicitPrefix):
		return "implicit"
	}

	return "action"
}
