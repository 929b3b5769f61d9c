package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Misgexx/mintguard/internal/clock"
	"github.com/Misgexx/mintguard/internal/config"
	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/Misgexx/mintguard/internal/storage/postgres"
	transport "github.com/Misgexx/mintguard/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const instrumentationName = "github.com/Misgexx/mintguard"

// Services is the wired payments stack over one pool.
type Services struct {
	DB          *postgres.DB
	Orders      *postgres.OrderRepository
	Keys        *postgres.KeyRepository
	Outbox      *postgres.OutboxRepository
	Coordinator *payments.Coordinator
	UseCase     *payments.PaymentUseCase
}

func NewServices(pool *pgxpool.Pool, cfg config.Config, metrics payments.Metrics, log logrus.FieldLogger) *Services {
	clk := clock.NewSystem()
	db := postgres.New(pool)
	orders := postgres.NewOrderRepository(db)
	keys := postgres.NewKeyRepository(db, clk)
	outboxRepo := postgres.NewOutboxRepository(db)
	ledgerRepo := postgres.NewLedgerRepository(db, orders, outboxRepo)

	ledger := payments.NewLedger(orders, ledgerRepo, clk, log)
	coordinator := payments.NewCoordinator(keys, ledger,
		payments.WithTransactor(db),
		payments.WithLockWindow(cfg.Idempotency.LockWindow),
		payments.WithMaxReentries(cfg.Idempotency.MaxReentries),
		payments.WithMetrics(metrics),
		payments.WithTracer(otel.Tracer(instrumentationName)),
		payments.WithClock(clk),
		payments.WithLogger(log),
	)

	return &Services{
		DB:          db,
		Orders:      orders,
		Keys:        keys,
		Outbox:      outboxRepo,
		Coordinator: coordinator,
		UseCase:     payments.NewPaymentUseCase(orders, coordinator, db, clk, log),
	}
}

func Run(ctx context.Context, cfg config.Config) error {
	start := time.Now()
	log, err := BuildLogger(cfg)
	if err != nil {
		return err
	}

	tp, err := InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("bootstrap: tracer shutdown")
		}
	}()

	mp, err := InitMetrics(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("bootstrap: meter shutdown")
		}
	}()

	metrics, err := payments.NewOTelMetrics(mp.Meter(instrumentationName))
	if err != nil {
		return err
	}

	pool, err := OpenPool(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Infof("bootstrap: db ready in %s", time.Since(start))

	svc := NewServices(pool, cfg, metrics, log)

	gin.SetMode(gin.ReleaseMode)
	router, err := transport.NewRouter(svc.UseCase, tp.Tracer(instrumentationName), log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("bootstrap: server listening on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.WithError(serveErr).Error("server error")
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	return serveErr
}
