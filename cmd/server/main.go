package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderline-be/internal/auth"
	"orderline-be/internal/config"
	"orderline-be/internal/db"
	"orderline-be/internal/logger"
	"orderline-be/internal/metrics"
	"orderline-be/internal/middleware"
	"orderline-be/internal/order"
	"orderline-be/internal/order/api"
	"orderline-be/internal/transport"

	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
	healthTimeout     = 2 * time.Second
)

// Swapped in tests.
var (
	initDBFunc = db.InitDB
	listenFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var database *sql.DB
	if cfg.StoreDriver == config.StoreDriverPostgres {
		database = initDBFunc(cfg)
		defer database.Close()
	}

	handler, cleanup := newServer(cfg, database)
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.L().Info("order service listening",
		zap.String("addr", srv.Addr),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("strict_transitions", cfg.StrictStatusTransitions),
	)
	return serve(ctx, srv)
}

// serve runs srv until it fails or ctx is cancelled, then drains in-flight
// requests. It returns only after the listener has stopped.
func serve(ctx context.Context, srv *http.Server) error {
	listen := listenFunc
	errCh := make(chan error, 1)
	go func() { errCh <- listen(srv) }()

	select {
	case err := <-errCh:
		return ignoreClosed(err)
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	listenErr := ignoreClosed(<-errCh)
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown: %w", shutdownErr)
	}
	return listenErr
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// newServer wires the order stack. A nil database selects the in-memory
// store. The returned func releases background resources.
func newServer(cfg *config.Config, database *sql.DB) (http.Handler, func()) {
	m := metrics.New()

	var (
		repo  order.Repository
		check pinger
	)
	if database != nil {
		repo = order.NewRepository(database, order.WithMetrics(m))
		check = database
	} else {
		repo = order.NewMemoryRepository(order.WithMetrics(m))
	}

	svc := order.NewService(repo,
		order.WithStrictTransitions(cfg.StrictStatusTransitions),
		order.WithServiceMetrics(m),
	)
	gate := auth.NewJWTGate(cfg.JWTSecret)

	mux := setupRouter(api.NewHandler(svc, gate), check, m)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	return withMiddleware(mux, mux, cfg, gate, m, limiter), limiter.Close
}

// withMiddleware wraps h in the request pipeline. The request id is attached
// first so every later layer, panic recovery included, can log it.
func withMiddleware(h http.Handler, mux *http.ServeMux, cfg *config.Config, gate auth.Gate, m *metrics.Collector, limiter *middleware.RateLimiter) http.Handler {
	return middleware.Chain(h,
		logger.RequestIDMiddleware,
		middleware.Recover,
		middleware.Authenticate(gate),
		middleware.AccessLog(mux, m),
		middleware.CORS(cfg.CORSAllowedOrigin),
		limiter.Middleware,
	)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func setupRouter(orders *api.Handler, check pinger, m *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	orders.Register(mux)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := check.PingContext(ctx); err != nil {
				logger.FromCtx(ctx).Warn("health check failed", zap.Error(err))
				transport.WriteJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "UNAVAILABLE"})
				return
			}
		}
		transport.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "OK"})
	})

	return mux
}
