package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"lp-tracker/internal/api"
	"lp-tracker/internal/config"
	"lp-tracker/internal/constants"
	fxmodules "lp-tracker/internal/fx"
	"lp-tracker/internal/metrics"
	"lp-tracker/internal/middleware"
	"lp-tracker/internal/server"
	"lp-tracker/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runTracker),
	).Run()
}

func runTracker(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	watcher *service.GameWatcher,
	detector *service.CompletionDetector,
	champions *api.Champions,
	trackerServer *server.TrackerServer,
	m *metrics.Metrics,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	requestIDMiddleware := middleware.RequestID(logger, "/metrics", "/healthz")

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.StatusPort),
		Handler: requestIDMiddleware(c.Handler(trackerServer.Routes())),
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(loopCtx)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := champions.Load(ctx); err != nil {
				logger.Warn().Err(err).Msg("champion data unavailable, announcements will omit champion art")
			}

			g.Go(func() error {
				logger.Info().Str("addr", srv.Addr).Msg("status server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("status server failed")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return err
				}
				return nil
			})
			g.Go(func() error {
				service.RunFixedDelay(gctx, "game_watcher", cfg.InGameInterval, watcher.RunCycle, m, logger)
				return nil
			})
			g.Go(func() error {
				service.RunFixedDelay(gctx, "completion_detector", cfg.CompletionInterval, detector.RunCycle, m, logger)
				return nil
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down tracker")
			cancel()

			shutdownCtx, stop := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer stop()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("status server shutdown failed")
			}
			if err := g.Wait(); err != nil {
				logger.Warn().Err(err).Msg("tracker stopped with error")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("tracker stopped gracefully")
			return nil
		},
	})
}
