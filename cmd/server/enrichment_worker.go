package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type enrichmentRunner interface {
	ApplyDue(ctx context.Context) (applied, dropped int, err error)
}

type workerTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) workerTicker

func startEnrichmentWorker(ctx context.Context, logger *slog.Logger, runner enrichmentRunner, interval time.Duration) func() {
	return startEnrichmentWorkerWithTicker(ctx, logger, runner, interval, func(d time.Duration) workerTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startEnrichmentWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	runner enrichmentRunner,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if runner == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				applied, dropped, err := runner.ApplyDue(workerCtx)
				if err != nil {
					if logger != nil {
						logger.Error("failed to apply due thumbnails", "error", err)
					}
					continue
				}
				if logger != nil && (applied > 0 || dropped > 0) {
					logger.Debug("applied deferred thumbnails", "applied", applied, "dropped", dropped)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
