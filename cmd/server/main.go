package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/digit-api/internal/config"
	"github.com/Brownie44l1/digit-api/internal/handlers"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/pipeline"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
)

const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Validate already accepted the method name.
	method, _ := preprocess.ParseMethod(cfg.Resample)
	normalizer := preprocess.NewNormalizer(
		preprocess.WithMethod(method),
		preprocess.WithMaxPixels(cfg.MaxCanvasPixels),
		preprocess.WithLogger(logger.Named("preprocess")),
	)

	loader := model.NewLoader(classifierLoader(cfg),
		model.WithLoaderLogger(logger.Named("model")),
		model.WithRetry(cfg.LoadAttempts, time.Duration(cfg.LoadRetryMS)*time.Millisecond),
	)
	loader.Start(ctx)
	defer func() {
		if err := loader.Close(); err != nil {
			log.Error(ctx, "failed to release classifier", logger.Error(err))
		}
	}()

	predictor := pipeline.New(normalizer, loader,
		pipeline.WithTemperature(cfg.Temperature),
		pipeline.WithLogger(logger.Named("pipeline")),
	)

	handler := handlers.NewHandler(predictor, loader,
		handlers.WithLogger(logger.Named("http")),
		handlers.WithMaxUploadBytes(cfg.MaxUploadBytes),
		handlers.WithMaxCanvasPixels(cfg.MaxCanvasPixels),
	)

	mux := http.NewServeMux()
	handler.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("backend", cfg.Backend),
			logger.String("resample", string(normalizer.Method())),
			logger.Float64("temperature", predictor.Temperature()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

// classifierLoader returns the LoadFunc for the configured backend.
func classifierLoader(cfg *config.Config) model.LoadFunc {
	if cfg.Backend == config.BackendRemote {
		return func(ctx context.Context) (model.Classifier, error) {
			client, err := model.NewRemoteClient(cfg.RemoteURL, &http.Client{
				Timeout: time.Duration(cfg.RemoteTimeoutMS) * time.Millisecond,
			})
			if err != nil {
				return nil, err
			}
			if err := client.CheckHealth(ctx); err != nil {
				return nil, err
			}
			return client, nil
		}
	}

	return func(ctx context.Context) (model.Classifier, error) {
		server, err := model.NewServer(model.ServerOptions{
			ModelPath:    cfg.ModelPath,
			MetadataPath: cfg.MetadataPath,
			LibraryPath:  cfg.ONNXLibraryPath,
		})
		if err != nil {
			return nil, err
		}
		return server, nil
	}
}
