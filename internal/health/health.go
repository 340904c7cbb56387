package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status представляет статус компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// DefaultTimeout ограничивает время одной проверки.
const DefaultTimeout = 2 * time.Second

// Check содержит результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент: хранилище, брокер событий.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler агрегирует проверки и отдаёт их по HTTP.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	timeout   time.Duration
	startTime time.Time
	now       func() time.Time
}

// NewHandler создаёт health handler без проверок.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		timeout:   DefaultTimeout,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RegisterChecker регистрирует проверку компонента. Повторная регистрация заменяет проверку.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	if checker == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Run выполняет все проверки и вычисляет общий статус.
func (h *Handler) Run(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := make(map[string]Check)
	overall := StatusHealthy
	for _, item := range h.snapshot() {
		check := item.checker.Check(ctx)
		checks[item.name] = check

		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     h.now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.startTime).Seconds()),
	}
}

// ServeHTTP отдаёт подробный отчёт. 503 только если упал критичный компонент.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.Run(r.Context())

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler проверяет только критичные компоненты.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	for _, item := range h.snapshot() {
		check := item.checker.Check(ctx)
		if check.Critical && check.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type namedChecker struct {
	name    string
	checker Checker
}

func (h *Handler) snapshot() []namedChecker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	items := make([]namedChecker, 0, len(h.checkers))
	for name, checker := range h.checkers {
		items = append(items, namedChecker{name: name, checker: checker})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })
	return items
}

// PingChecker превращает функцию вида Ping(ctx) в Checker.
// Ошибка критичной проверки даёт unhealthy, некритичной только degraded.
type PingChecker struct {
	name     string
	pingFn   func(ctx context.Context) error
	critical bool
}

// NewPingChecker создаёт проверку по функции ping.
func NewPingChecker(name string, pingFn func(ctx context.Context) error, critical bool) *PingChecker {
	return &PingChecker{name: name, pingFn: pingFn, critical: critical}
}

// Check выполняет ping и замеряет длительность.
func (c *PingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.pingFn(ctx)
	duration := time.Since(start)

	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		Critical:   c.critical,
		DurationMs: duration.Milliseconds(),
	}
	if err != nil {
		check.Status = StatusDegraded
		if c.critical {
			check.Status = StatusUnhealthy
		}
		check.Message = err.Error()
	}
	return check
}
