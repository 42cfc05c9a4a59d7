// Command queryengine runs the declarative query REST server: it loads
// configuration, opens the configured database, registers the built-in
// sample queries, optionally pre-warms their metadata caches, and serves
// the REST surface until it receives a shutdown signal.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/queryreg/engine/cmd/queryengine/queries"
	"github.com/queryreg/engine/internal/config"
	"github.com/queryreg/engine/internal/dialect"
	"github.com/queryreg/engine/internal/driver"
	"github.com/queryreg/engine/internal/httpapi"
	"github.com/queryreg/engine/internal/logging"
	"github.com/queryreg/engine/internal/metadata"
	"github.com/queryreg/engine/internal/query"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file overlaying defaults and environment variables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := logging.Must(cfg.Dev)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("queryengine exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	d, err := dialect.New(cfg.DatabaseDialect)
	if err != nil {
		return err
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := driver.Open(openCtx, cfg.DatabaseDialect, cfg.DatabaseDSN)
	cancelOpen()
	if err != nil {
		return err
	}
	defer db.Close()

	reg := query.NewRegistry()
	if err := queries.RegisterAll(reg, cfg.DatabaseDialect, cfg.JDBCFetchSize, cfg.JDBCQueryTimeout); err != nil {
		return err
	}
	logger.Info("registered queries", zap.Int("count", reg.Size()), zap.Strings("names", reg.Names()))

	if cfg.MetadataCachePrewarm {
		prewarmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		failures, err := metadata.PreWarm(prewarmCtx, db, reg, d, cfg.MetadataCacheFailOnStartup, logger)
		cancel()
		if err != nil {
			return err
		}
		for name, failErr := range failures {
			logger.Warn("metadata pre-warm failed", zap.String("query", name), zap.Error(failErr))
		}
	}

	srv := &httpapi.Server{
		Registry:        reg,
		DB:              db,
		Dialect:         d,
		Logger:          logger,
		DefaultPageSize: cfg.RESTDefaultPageSize,
		MaxPageSize:     cfg.RESTMaxPageSize,
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(srv),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serveErr:
		return err
	}
}
