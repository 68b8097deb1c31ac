package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	turnsTotal           *prometheus.CounterVec
	turnDuration         *prometheus.HistogramVec
	agentRunsTotal       *prometheus.CounterVec
	planStepsTotal       *prometheus.CounterVec
	planSteps            *prometheus.HistogramVec
	modelFallbacksTotal  *prometheus.CounterVec
	intentTotal          *prometheus.CounterVec
	memoryHitsTotal      *prometheus.CounterVec
	memorySummariesTotal *prometheus.CounterVec
	memoryContexts       *prometheus.GaugeVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Total completed conversation turns by status.",
		},
		[]string{"service", "status"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "pipeline",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total agent runs by agent type and status.",
		},
		[]string{"service", "agent_type", "status"},
	)
	planStepsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "planner",
			Name:      "steps_total",
			Help:      "Total executed plan steps by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	planSteps := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "planner",
			Name:      "plan_steps",
			Help:      "Distribution of steps per generated plan.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"service"},
	)
	modelFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "llm",
			Name:      "model_fallbacks_total",
			Help:      "Total times a model was skipped over for a lower-priority one.",
		},
		[]string{"service", "model"},
	)
	intentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "pipeline",
			Name:      "intents_total",
			Help:      "Total detected intents by type and source.",
		},
		[]string{"service", "intent", "source"},
	)
	memoryHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "memory",
			Name:      "hits_total",
			Help:      "Total memory context retrievals by source.",
		},
		[]string{"service", "source"},
	)
	memorySummariesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "memory",
			Name:      "summaries_total",
			Help:      "Total conversation summaries generated.",
		},
		[]string{"service"},
	)
	memoryContexts := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "memory",
			Name:      "contexts",
			Help:      "Current number of cached memory contexts by kind.",
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		turnsTotal,
		turnDuration,
		agentRunsTotal,
		planStepsTotal,
		planSteps,
		modelFallbacksTotal,
		intentTotal,
		memoryHitsTotal,
		memorySummariesTotal,
		memoryContexts,
	)

	return &PipelineMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		turnsTotal:           turnsTotal,
		turnDuration:         turnDuration,
		agentRunsTotal:       agentRunsTotal,
		planStepsTotal:       planStepsTotal,
		planSteps:            planSteps,
		modelFallbacksTotal:  modelFallbacksTotal,
		intentTotal:          intentTotal,
		memoryHitsTotal:      memoryHitsTotal,
		memorySummariesTotal: memorySummariesTotal,
		memoryContexts:       memoryContexts,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/context/") && path != "/v1/context/stats":
		return "/v1/context/{session_id}"
	default:
		return path
	}
}

func (m *PipelineMetrics) RecordTurn(service, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.turnsTotal.WithLabelValues(service, status).Inc()
	m.turnDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RecordAgentRun(service, agentType, status string) {
	if agentType == "" {
		agentType = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.agentRunsTotal.WithLabelValues(service, agentType, status).Inc()
}

func (m *PipelineMetrics) RecordPlanStep(service, tool, status string) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.planStepsTotal.WithLabelValues(service, tool, status).Inc()
}

func (m *PipelineMetrics) RecordPlanSize(service string, steps int) {
	if steps <= 0 {
		return
	}
	m.planSteps.WithLabelValues(service).Observe(float64(steps))
}

func (m *PipelineMetrics) RecordModelFallback(service, model string) {
	if model == "" {
		model = "unknown"
	}
	m.modelFallbacksTotal.WithLabelValues(service, model).Inc()
}

func (m *PipelineMetrics) RecordIntent(service, intent, source string) {
	if intent == "" {
		intent = "unknown"
	}
	if source == "" {
		source = "unknown"
	}
	m.intentTotal.WithLabelValues(service, intent, source).Inc()
}

func (m *PipelineMetrics) RecordMemoryHit(service, source string) {
	if source == "" {
		source = "unknown"
	}
	m.memoryHitsTotal.WithLabelValues(service, source).Inc()
}

func (m *PipelineMetrics) RecordMemorySummary(service string) {
	m.memorySummariesTotal.WithLabelValues(service).Inc()
}

func (m *PipelineMetrics) SetMemoryContexts(service, kind string, count int) {
	m.memoryContexts.WithLabelValues(service, kind).Set(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
