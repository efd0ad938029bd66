// Package metrics содержит Prometheus-метрики витрины: HTTP-запросы,
// операции key-value хранилища, переключения на локальный бэкенд,
// проверки записи баланса и решения по заявкам на пополнение.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hackstore"

var (
	// Registry реестр метрик приложения.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	kvOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kv",
			Name:      "operations_total",
			Help:      "Key-value operations by serving backend.",
		},
		[]string{"backend", "op"},
	)

	kvFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kv_fallback_total",
			Help:      "Remote key-value failures served by the local backend.",
		},
		[]string{"op"},
	)

	balanceRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_repair_total",
			Help:      "Balance write verification outcomes.",
		},
		[]string{"result"},
	)

	depositDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deposit",
			Name:      "decisions_total",
			Help:      "Deposit requests moved out of pending.",
		},
		[]string{"status"},
	)

	intentsRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "intents_recovered_total",
			Help:      "Journal intents completed by the recovery pass.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		kvOperations,
		kvFallbacks,
		balanceRepairs,
		depositDecisions,
		intentsRecovered,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler возвращает HTTP-обработчик с метриками реестра.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler оборачивает обработчик сбором HTTP-метрик.
// Маршрут берётся из шаблона chi, чтобы id в пути не раздували кардинальность.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// KVOperation учитывает операцию хранилища, обслуженную бэкендом backend.
func KVOperation(backend, op string) {
	kvOperations.WithLabelValues(backend, op).Inc()
}

// KVFallback учитывает переключение операции на локальный бэкенд.
func KVFallback(op string) {
	kvFallbacks.WithLabelValues(op).Inc()
}

// BalanceRepair учитывает исход проверки записи баланса: ok, repaired или mismatch.
func BalanceRepair(result string) {
	balanceRepairs.WithLabelValues(result).Inc()
}

// DepositDecision учитывает подтверждение или отклонение заявки.
func DepositDecision(status string) {
	depositDecisions.WithLabelValues(status).Inc()
}

// IntentRecovered учитывает намерение, доигранное восстановлением.
func IntentRecovered() {
	intentsRecovered.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
