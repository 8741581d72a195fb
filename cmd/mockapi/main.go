// Command mockapi serves the users API from memory for local development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99minutos/userdesk/internal/api"
	"github.com/99minutos/userdesk/internal/infrastructure/config"
	"github.com/99minutos/userdesk/internal/infrastructure/db/memory"
	"github.com/99minutos/userdesk/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.Init(logger.Options{})
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty && !cfg.IsProduction(),
		Service: "userdesk-mockapi",
	})

	repo := memory.NewUserRepository()
	if cfg.MockAPI.Seed {
		if err := repo.Seed(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to seed users")
		}
	}

	e := api.NewRouter(repo, logger.Component("http"))

	go func() {
		log.Info().Str("port", cfg.MockAPI.Port).Bool("seeded", cfg.MockAPI.Seed).Msg("mock users API listening")
		if err := e.Start(":" + cfg.MockAPI.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
