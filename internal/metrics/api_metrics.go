package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics содержит метрики REST API.
type APIMetrics struct {
	// HTTP-запросы
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	// Бизнес-операции
	rejections *prometheus.CounterVec
	mutations  *prometheus.CounterVec
}

// NewAPIMetrics создаёт метрики в DefaultRegisterer.
func NewAPIMetrics() *APIMetrics {
	return NewAPIMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewAPIMetricsWithRegisterer создаёт метрики в указанном реестре.
// Повторная регистрация переиспользует уже существующие коллекторы.
func NewAPIMetricsWithRegisterer(registerer prometheus.Registerer) *APIMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &APIMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "grubdash_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status code",
		}, []string{"route", "method", "status"}),
		requestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "grubdash_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"route", "method"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "grubdash_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "grubdash_rejections_total",
			Help: "Total number of requests rejected by validation chains",
		}, []string{"resource", "operation", "kind"}),
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "grubdash_mutations_total",
			Help: "Total number of successful create, update and delete operations",
		}, []string{"resource", "operation"}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RequestStarted увеличивает число обрабатываемых запросов.
func (m *APIMetrics) RequestStarted() {
	m.inFlight.Inc()
}

// RequestFinished учитывает завершённый запрос.
// route: шаблон маршрута (например, /orders/{orderId}), а не сырой путь.
func (m *APIMetrics) RequestFinished(route, method string, status int, duration time.Duration) {
	m.inFlight.Dec()
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordRejection учитывает запрос, отклонённый цепочкой проверок.
func (m *APIMetrics) RecordRejection(resource, operation, kind string) {
	m.rejections.WithLabelValues(resource, operation, kind).Inc()
}

// RecordMutation учитывает успешное изменение данных.
func (m *APIMetrics) RecordMutation(resource, operation string) {
	m.mutations.WithLabelValues(resource, operation).Inc()
}
