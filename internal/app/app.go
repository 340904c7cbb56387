package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/health"
	"github.com/vladislavdragonenkov/grubdash/internal/metrics"
	"github.com/vladislavdragonenkov/grubdash/internal/service/dishes"
	"github.com/vladislavdragonenkov/grubdash/internal/service/orders"
	"github.com/vladislavdragonenkov/grubdash/internal/service/outbox"
	"github.com/vladislavdragonenkov/grubdash/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/grubdash/internal/version"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 5 * time.Second
	// outboxLagThreshold: возраст pending-события, после которого outbox считается отстающим.
	outboxLagThreshold = time.Minute
)

// Runtime: собранное приложение: REST handler, health checks и outbox worker.
type Runtime struct {
	Handler http.Handler
	Health  *health.Handler
	// Outbox равен nil, если брокер событий не настроен.
	Outbox *outbox.Worker

	closers []func() error
	logger  *log.Entry
}

// Build инициализирует хранилище, начальные данные, брокер событий и сервисы.
func Build(ctx context.Context, cfg Config, logger *log.Entry) (*Runtime, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{logger: logger}
	if deps.closeFn != nil {
		rt.closers = append(rt.closers, deps.closeFn)
	}

	events, err := initEventPublisher(cfg, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if events.closeFn != nil {
		rt.closers = append(rt.closers, events.closeFn)
	}

	var outboxRepo domain.OutboxRepository
	if events.publisher != nil {
		outboxRepo = deps.outboxRepo
		rt.Outbox = outbox.NewWorker(outboxRepo, events.publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(events.dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
	}
	emitter := outbox.NewEmitter(outboxRepo, logger.WithField("layer", "outbox"))

	dishService := dishes.NewService(deps.dishRepo, deps.allocator, emitter, logger.WithField("layer", "dishes"))
	orderService := orders.NewService(deps.orderRepo, deps.allocator, emitter, logger.WithField("layer", "orders"))
	rt.Handler = httpapi.NewHandler(dishService, orderService, metrics.NewAPIMetrics(), logger.WithField("layer", "http"))

	rt.Health = health.NewHandler(version.GetVersion())
	rt.Health.RegisterChecker("storage", deps.storageChecker)
	rt.Health.RegisterChecker("events", events.checker)
	if outboxRepo != nil {
		rt.Health.RegisterChecker("outbox", outboxLagChecker(outboxRepo))
	}

	return rt, nil
}

// Close освобождает ресурсы в порядке, обратном созданию.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// outboxLagChecker деградирует, если самое старое pending-событие ждёт дольше порога.
func outboxLagChecker(repo domain.OutboxRepository) health.Checker {
	return health.NewPingChecker("outbox", func(context.Context) error {
		stats, err := repo.Stats()
		if err != nil {
			return err
		}
		if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
			return nil
		}
		if age := time.Since(stats.OldestPendingAt); age > outboxLagThreshold {
			return fmt.Errorf("%d pending events (%s), oldest is %s old",
				stats.PendingCount, backlogSummary(stats.Pending), age.Truncate(time.Second))
		}
		return nil
	}, false)
}

// backlogSummary печатает backlog в виде "dish=1 order=2".
func backlogSummary(pending map[string]int) string {
	aggregates := make([]string, 0, len(pending))
	for aggregate := range pending {
		aggregates = append(aggregates, aggregate)
	}
	sort.Strings(aggregates)

	parts := make([]string, 0, len(aggregates))
	for _, aggregate := range aggregates {
		parts = append(parts, fmt.Sprintf("%s=%d", aggregate, pending[aggregate]))
	}
	return strings.Join(parts, " ")
}

// Run поднимает REST API, сервер метрик и outbox worker и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(log.Fields(version.Get().Fields())).Info("starting grubdash")

	rt, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.WithError(err).Warn("failed to release resources")
		}
	}()

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, rt.Health)
	outboxCancel, outboxDone := startOutboxWorker(ctx, rt.Outbox)

	apiSrv := &http.Server{Handler: rt.Handler, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("REST API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем REST API")
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOutboxWorker запускает worker в отдельной горутине. Для nil worker возвращает nil, nil.
func startOutboxWorker(ctx context.Context, worker *outbox.Worker) (context.CancelFunc, <-chan struct{}) {
	if worker == nil {
		return nil, nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

// shutdownOutboxWorker останавливает worker и ждёт финальной выгрузки backlog.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("outbox worker stopped")
	case <-time.After(defaultShutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, defaultShutdownTimeout, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
