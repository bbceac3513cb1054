package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xraph/paysim"
	"github.com/xraph/paysim/api"
	"github.com/xraph/paysim/apilog"
	"github.com/xraph/paysim/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the config API, the webhook dispatcher and the billing jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8420)")
	serveCmd.Flags().String("store", "", "store driver: memory, redis, sqlite, postgres or mongo")
	serveCmd.Flags().String("dsn", "", "store address, path or connection URL")
	_ = viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("store.driver", serveCmd.Flags().Lookup("store"))
	_ = viper.BindPFlag("store.dsn", serveCmd.Flags().Lookup("dsn"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:    "paysim",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	s, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	engine, err := paysim.New(
		paysim.WithStore(s),
		paysim.WithLogger(logger),
		paysim.WithConfig(cfg.engineConfig()),
		paysim.WithMetrics(metrics),
		paysim.WithTracer(observability.NewTracer()),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	opts := api.Options{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		APILog:         apilog.New(cfg.HTTP.APILogCapacity),
		Metrics:        metrics,
	}
	if cfg.HTTP.Metrics {
		opts.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	handler := api.NewHandler(engine, opts, logger.With("component", "api"))
	go handler.Limiter().RunPruner(ctx, time.Minute, 10*time.Minute)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           otelhttp.NewHandler(handler, "paysim.api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	engine.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("paysim listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("engine stop: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
