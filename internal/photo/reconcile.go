package photo

import (
	"context"
	"log/slog"
	"time"
)

// Reconcile retries job publication for originals whose publish failed at
// ingest time, until the broker accepts them or ctx is cancelled.
func (s *Service) Reconcile(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.orphans))
	for id := range s.orphans {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.queue.Publish(ctx, s.jobs, []byte(id)); err != nil {
			s.logger.Warn(
				"reconcile publish failed",
				slog.String("photo_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.mu.Lock()
		delete(s.orphans, id)
		s.mu.Unlock()

		s.logger.Info("reconciled orphaned original", slog.String("photo_id", id))
	}
}

// Orphans reports photos currently awaiting a job publish retry.
func (s *Service) Orphans() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.orphans))
	for id := range s.orphans {
		ids = append(ids, id)
	}

	return ids
}
