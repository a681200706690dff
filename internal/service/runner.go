package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/ledgerops/internal/store"
)

// Run triggers both event workers and an SLA-only poll every interval until
// ctx is done. Failed events are simply picked up again on the next tick.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("background worker started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("background worker stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	for _, stream := range []store.Stream{store.ProviderStream, store.TransferStream} {
		resp, err := s.ProcessEvents(ctx, stream)
		if err != nil {
			s.logger.Error("event worker run failed", "stream", stream, "error", err)
			continue
		}
		if resp.Processed > 0 {
			s.logger.Info("events processed", "stream", stream, "processed", resp.Processed)
		}
	}

	resp, err := s.PollUnknownTransfers(ctx, DefaultPollLimit, nil)
	if err != nil {
		s.logger.Error("transfer poll failed", "error", err)
		return
	}
	if resp.EscalatedManualReview > 0 {
		s.logger.Info("unknown transfers escalated", "count", resp.EscalatedManualReview)
	}
}
