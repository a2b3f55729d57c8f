package collector

import (
	"context"
	"fmt"
	"log/slog"

	"cablewatch/internal/models"
)

type snapshotStore interface {
	InsertSnapshot(ctx context.Context, snap models.TelemetrySnapshot) (int64, error)
}

// Service runs one fetch-and-store cycle per Poll.
type Service struct {
	src  Source
	repo snapshotStore
	log  *slog.Logger
}

func NewService(src Source, repo snapshotStore, logger *slog.Logger) *Service {
	return &Service{src: src, repo: repo, log: logger}
}

// Poll fetches a snapshot and stores it. A storage failure is logged and the
// snapshot is still returned so the watchdog sees every poll. Missing channel
// lists are not an error on their own; only a snapshot with nothing in it
// yields ErrNoData.
func (s *Service) Poll(ctx context.Context) (models.TelemetrySnapshot, error) {
	snap, err := s.src.Fetch(ctx)
	if err != nil {
		return snap, fmt.Errorf("fetch snapshot: %w", err)
	}
	if isEmpty(snap) {
		return snap, ErrNoData
	}
	if s.repo != nil {
		if _, err := s.repo.InsertSnapshot(ctx, snap); err != nil {
			s.log.Error("insert snapshot", "err", err)
		}
	}
	s.log.Debug("snapshot collected",
		"health", snap.Summary.Health,
		"ds_channels", len(snap.DSChannels),
		"us_channels", len(snap.USChannels))
	return snap, nil
}

// isEmpty reports whether a snapshot has no channels and no summary signal.
func isEmpty(snap models.TelemetrySnapshot) bool {
	sum := snap.Summary
	return len(snap.DSChannels) == 0 && len(snap.USChannels) == 0 &&
		sum.Health == "" && sum.DSPowerAvg == nil && sum.USPowerAvg == nil
}
