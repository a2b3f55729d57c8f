package retention

import (
	"context"
	"log/slog"
	"time"
)

const defaultRetentionDays = 30

type pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

// Service drops stored snapshots and watchdog events past the retention
// horizon.
type Service struct {
	repo          pruner
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(repo pruner, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &Service{repo: repo, retentionDays: days, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	if err := s.repo.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Error("retention cleanup failed", "err", err)
	} else {
		s.log.Info("retention cleanup completed", "cutoff", cutoff)
	}
}
