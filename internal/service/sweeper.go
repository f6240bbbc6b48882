package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically purges credentials revoked longer ago than the
// retention period.
type Sweeper struct {
	creds         *CredentialService
	interval      time.Duration
	retentionDays int
	logger        *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper returns nil when interval is not positive, which disables the
// background loop. Start and Stop are safe on a nil Sweeper.
func NewSweeper(creds *CredentialService, interval time.Duration, retentionDays int, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		creds:         creds,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start runs one sweep immediately and then every interval. Non-blocking.
func (s *Sweeper) Start() {
	if s == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.creds.Cleanup(ctx, s.retentionDays); err != nil && ctx.Err() == nil {
		s.logger.Error("credential retention sweep failed", "error", err)
	}
}
