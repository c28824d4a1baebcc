package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finna-payment/internal/config"
	"finna-payment/internal/db"
	"finna-payment/internal/i18n"
	"finna-payment/internal/logger"
	"finna-payment/internal/metrics"
	"finna-payment/internal/middleware"
	"finna-payment/internal/notify"
	"finna-payment/internal/payment"
	"finna-payment/internal/payment/webhook"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	fallbackLanguage = "fi"
)

var (
	initDBFunc = db.NewDatabase
	serveFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger.InitWithOptions(cfg.AppEnv, logger.Options{
		Filename:   cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 7,
		MaxAgeDays: 30,
	})
	defer logger.Sync()

	if err := run(ctx, cfg); err != nil {
		logger.L().Fatal("Payment service stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.L()

	database, err := initDBFunc(&cfg.Database)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer database.Close()

	sources, err := config.LoadSources(cfg.PaymentConfigPath)
	if err != nil {
		return err
	}

	translator, err := loadTranslator(cfg.TranslationsPath)
	if err != nil {
		return err
	}

	notifier := notify.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	if c, ok := notifier.(io.Closer); ok {
		defer c.Close()
	}

	reg := metrics.NewRegistry()
	payments := newPayments(cfg, database, sources, translator, notifier, payment.NewMetrics(reg))
	log.Info("Online payment sources loaded", zap.Strings("sources", payments.Sources()))

	eg, ctx := errgroup.WithContext(ctx)

	router := newServer(cfg, payments, middleware.NewRateLimiter(ctx), metrics.NewHTTP(reg))

	apiServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.GatewayTimeout + 15*time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	for _, srv := range []*http.Server{apiServer, metricsServer} {
		eg.Go(func() error {
			log.Info("HTTP server listening", zap.String("addr", srv.Addr))
			if err := serveFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(
			apiServer.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
		)
	})

	return eg.Wait()
}

func loadTranslator(path string) (payment.Translator, error) {
	if path == "" {
		return nil, nil
	}
	catalog, err := i18n.Load(path, fallbackLanguage)
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

func newPayments(
	cfg *config.Config,
	database *sql.DB,
	sources map[string]config.Gateway,
	translator payment.Translator,
	notifier payment.Notifier,
	m *payment.Metrics,
) *payment.Registry {
	repo := payment.NewRepository(database)

	return payment.NewRegistry(sources, &http.Client{Timeout: cfg.GatewayTimeout}, payment.Dependencies{
		Store:      repo,
		Events:     repo,
		Translator: translator,
		Notifier:   notifier,
		Metrics:    m,
	})
}

func newServer(
	cfg *config.Config,
	payments webhook.Registry,
	limiter *middleware.RateLimiter,
	httpMetrics *metrics.HTTP,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(
		logger.RequestIDMiddleware,
		logger.LoggingMiddleware,
		httpMetrics.Middleware,
		limiter.Middleware,
	)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	webhook.NewHandler(payments, cfg.PublicBaseURL, cfg.StatusParam).
		Register(r, middleware.RequireAuth([]byte(cfg.JWTSecret)))

	return r
}
