// Package retention runs the engine's background expiry sweep.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/csml-run/csml-engine/pkg/store"
)

const defaultInterval = time.Hour

// Service periodically purges every table's expires_at < now rows
// (conversations, messages, memories, state keys; bot versions do not
// expire). It is
// idempotent and safe to run from multiple processes against the same
// database.
type Service struct {
	sweeper  store.ExpiredDataSweeper
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a retention Service. interval defaults to one hour if zero.
func New(sweeper store.ExpiredDataSweeper, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sweeper: sweeper, interval: interval, logger: logger}
}

// Start launches the background sweep loop. Calling Start twice without an
// intervening Stop is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("retention sweep started", "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("retention sweep stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	if err := s.sweeper.DeleteExpiredData(ctx); err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	s.logger.Debug("retention sweep completed")
}
