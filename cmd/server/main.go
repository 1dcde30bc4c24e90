package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/carbonsync/internal/config"
	"github.com/rpattn/carbonsync/internal/db"
	"github.com/rpattn/carbonsync/internal/httpclient"
	"github.com/rpattn/carbonsync/internal/ingestion"
	"github.com/rpattn/carbonsync/internal/repository"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg, syncCfg, err := config.Load(".")
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	conn, err := db.NewConnection(ctx, dbCfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.RunMigrations(dbCfg); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Wire the ingestion framework: catalog + store + registry + client.
	sourceRepo := repository.NewDataSourceRepository(conn.Pool)
	store := repository.NewPostgresStore(conn.Pool)
	client := httpclient.New(
		logger,
		httpclient.WithMaxRetries(syncCfg.MaxRetries),
		httpclient.WithTimeout(syncCfg.FetchTimeout),
		httpclient.WithBaseDelay(syncCfg.BackoffBase),
	)
	registry := ingestion.DefaultRegistry()
	service := ingestion.NewService(sourceRepo, store, registry, ingestion.Deps{
		Client: client,
		Logger: logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:    syncCfg.ListenAddr,
		Handler: corsHandler.Handler(loggingMiddleware(logger, ingestion.NewHTTPHandler(service))),
		// Syncs download gigabyte-scale archives; the write timeout must
		// outlive the slowest source.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting sync server",
			zap.String("addr", syncCfg.ListenAddr),
			zap.Strings("connectors", registry.Names()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// responseWriter captures the HTTP status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}
