package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"adstudio/internal/http/handlers"
	"adstudio/internal/http/httpapi"
	"adstudio/internal/infra"
	"adstudio/internal/session"
	"adstudio/internal/stability"
	"adstudio/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	store, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	client := stability.NewClient(stability.Options{
		BaseURL:      cfg.StabilityBaseURL,
		APIKey:       cfg.StabilityKey,
		Timeout:      cfg.VendorTimeout,
		PollInterval: cfg.PollInterval,
	})
	sessions := session.NewManager(cfg.SessionTTL)

	app, err := handlers.NewApp(logger, client, sessions, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize handlers")
	}

	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("ad studio listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
