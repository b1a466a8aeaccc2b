// Command api serves the operator HTTP API and UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"modbot/internal/api"
	"modbot/internal/bootstrap"
	"modbot/internal/config"
	"modbot/internal/logging"
	"modbot/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("MODBOT_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, cfg.Store, false, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	tc, err := bootstrap.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	srv := api.NewServer(&api.TemporalEngine{Client: tc}, st, metrics.New(nil), logger.Named("api"))
	httpSrv := &http.Server{Addr: cfg.HTTP.APIAddr, Handler: srv.Routes(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
	}()

	logger.Info("api listening", zap.String("addr", cfg.HTTP.APIAddr))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
