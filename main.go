package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog/internal/app"
	"catalog/internal/config"
	"catalog/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("catalog", "info").Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.NewLogger("catalog", cfg.LogLevel)
	if cfg.UsesDefaultSecret() {
		log.Warn().Msg("SECRET_KEY is not set, using the development default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}

	ln, err := net.Listen("tcp", cfg.AppPort)
	if err != nil {
		a.Close()
		log.Fatal().Err(err).Str("addr", cfg.AppPort).Msg("failed to listen")
	}

	log.Info().Str("addr", ln.Addr().String()).Msg("starting server")
	exitCode := 0
	if err := serve(ctx, a, ln, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		exitCode = 1
	}
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("error releasing resources")
	}
	log.Info().Msg("server gracefully stopped")
	os.Exit(exitCode)
}

// serve runs the HTTP server on ln until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, a *app.App, ln net.Listener, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Fiber.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	if err := a.Fiber.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	return <-errCh
}
