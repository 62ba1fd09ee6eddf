package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Retrier re-applies queued compensations and reports how many resolved.
type Retrier interface {
	RetryPending(ctx context.Context) (int, error)
}

// CompensationWorker drains the compensation outbox on a fixed interval.
type CompensationWorker struct {
	retrier  Retrier
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewCompensationWorker(retrier Retrier, interval time.Duration, logger *zap.Logger) *CompensationWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CompensationWorker{
		retrier:  retrier,
		interval: interval,
		logger:   logger.Named("compensation_worker"),
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is done.
func (w *CompensationWorker) Start(ctx context.Context) {
	w.logger.Info("starting compensation worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-w.stopChan:
			w.logger.Info("stopping compensation worker")
			return
		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping compensation worker")
			return
		}
	}
}

func (w *CompensationWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// RunOnce performs a single pass over due compensations.
func (w *CompensationWorker) RunOnce(ctx context.Context) int {
	resolved, err := w.retrier.RetryPending(ctx)
	if err != nil {
		w.logger.Error("compensation retry pass failed", zap.Int("resolved", resolved), zap.Error(err))
		return resolved
	}
	if resolved > 0 {
		w.logger.Info("compensations resolved", zap.Int("resolved", resolved))
	}
	return resolved
}
