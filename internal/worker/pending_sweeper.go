package worker

import (
	"context"
	"log/slog"
	"time"
)

type PendingExpirer interface {
	ExpirePending(ctx context.Context) (int, error)
}

// PendingSweeper periodically cancels Pending appointments whose payment window closed.
type PendingSweeper struct {
	expirer  PendingExpirer
	log      *slog.Logger
	interval time.Duration
}

func NewPendingSweeper(expirer PendingExpirer, interval time.Duration, log *slog.Logger) *PendingSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PendingSweeper{
		expirer:  expirer,
		log:      log.With(slog.String("component", "worker.pending_sweeper")),
		interval: interval,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *PendingSweeper) Run(ctx context.Context) {
	s.log.Info("pending sweeper started", slog.Duration("interval", s.interval))
	defer s.log.Info("pending sweeper stopped")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
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

func (s *PendingSweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpirePending(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.ErrorContext(ctx, "pending sweep failed", slog.Any("err", err), slog.Int("expired", n))
		return
	}
	if n > 0 {
		s.log.InfoContext(ctx, "expired pending appointments", slog.Int("count", n))
	}
}
