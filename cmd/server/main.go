package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/JoaoVictor-C/ArenaRanking/internal/config"
	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"
	fxmodules "github.com/JoaoVictor-C/ArenaRanking/internal/fx"
	"github.com/JoaoVictor-C/ArenaRanking/internal/server"
	"github.com/JoaoVictor-C/ArenaRanking/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(run),
	).Run()
}

func run(
	lc fx.Lifecycle,
	srv *server.Server,
	scheduler *service.Scheduler,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: srv.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			go func() {
				logger.Info().Str("addr", httpSrv.Addr).Msg("server starting")
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := scheduler.Stop(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
