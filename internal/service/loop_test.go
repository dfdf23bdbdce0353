package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"lp-tracker/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRunFixedDelaySurvivesBadCycles(t *testing.T) {
	m := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	cycle := func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("list failed")
		case 3:
			cancel()
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		RunFixedDelay(ctx, "test", time.Millisecond, cycle, m, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Cycles.WithLabelValues("test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CycleFailures.WithLabelValues("test")))
}

func TestRunFixedDelayStopsBeforeFirstCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	RunFixedDelay(ctx, "test", time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, metrics.New(), zerolog.Nop())

	assert.Equal(t, int32(0), calls.Load())
}
