package service

import (
	"context"
	"time"

	"lp-tracker/internal/metrics"

	"github.com/rs/zerolog"
)

type CycleFunc func(ctx context.Context) error

// RunFixedDelay runs cycle, sleeps interval, and repeats until ctx is done.
// A failing or panicking cycle is logged and the loop carries on.
func RunFixedDelay(ctx context.Context, name string, interval time.Duration, cycle CycleFunc, m *metrics.Metrics, logger zerolog.Logger) {
	logger = logger.With().Str("loop", name).Logger()
	logger.Info().Dur("interval", interval).Msg("loop started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("loop stopped")
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			logger.Info().Msg("loop stopped")
			return
		}

		runCycle(ctx, name, cycle, m, logger)
		timer.Reset(interval)
	}
}

func runCycle(ctx context.Context, name string, cycle CycleFunc, m *metrics.Metrics, logger zerolog.Logger) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.CycleFailures.WithLabelValues(name).Inc()
			logger.Error().Interface("panic", r).Msg("recovered panic in cycle")
		}
		m.Cycles.WithLabelValues(name).Inc()
		m.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if err := cycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.CycleFailures.WithLabelValues(name).Inc()
		logger.Error().Err(err).Msg("cycle failed")
	}
}
