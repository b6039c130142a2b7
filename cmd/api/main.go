package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"inshokuten-api/internal"
	"inshokuten-api/internal/config"
	"inshokuten-api/internal/db"
	"inshokuten-api/internal/events"
	"inshokuten-api/internal/images"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "inshokuten-api").Logger()
	}
	logger := log.With().Str("component", "main").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.EnsureSchema(ctx, conn, cfg.TableName); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure item table")
	}
	logger.Info().Str("dialect", string(conn.Dialect)).Str("table", cfg.TableName).Msg("database ready")

	imgs, err := newImageStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open image store")
	}
	if err := images.EnsurePlaceholder(ctx, imgs); err != nil {
		logger.Warn().Err(err).Msg("could not write placeholder image")
	}

	var pub events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.EventSubjectPrefix, "inshokuten-api")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		pub = natsPub
		logger.Info().Str("url", cfg.NATSURL).Msg("publishing item events")
	}

	srv, err := internal.NewServer(cfg, conn, imgs, pub, log.Logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("environment", cfg.Environment).Msg("HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case serveErr := <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}
	if closeErr := srv.Close(shutdownCtx); closeErr != nil {
		logger.Error().Err(closeErr).Msg("releasing resources")
	}
	logger.Info().Msg("server stopped gracefully")
}

func newImageStore(cfg *config.Config) (images.Store, error) {
	if cfg.ImageBackend == "s3" {
		bucket := images.NewBucket(images.BucketConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		return images.NewCached(bucket, 256, 10*time.Minute), nil
	}
	return images.NewDisk(cfg.ImageDir)
}
