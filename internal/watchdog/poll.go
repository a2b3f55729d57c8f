package watchdog

import (
	"time"

	"cablewatch/internal/models"
)

// MinPollInterval is the floor of every adaptive interval.
const MinPollInterval = 30 * time.Second

// Uncorrectable downstream error counts that tighten polling.
const (
	uncorrectableCritical = 50000
	uncorrectableElevated = 10000
)

// PollInput is the subset of health signals the poll controller looks at.
type PollInput struct {
	Health        string
	Uncorrectable int64
	USCount       int
	// PrevUSCount is the last upstream count seen by the channel tracker;
	// HasPrev is false before the first check.
	PrevUSCount int
	HasPrev     bool
}

// AdaptivePollInterval proposes how long to wait before the next poll.
// Degraded signal shortens the interval; a healthy modem keeps base.
// Arithmetic is done in whole seconds and the result is never below
// MinPollInterval.
func AdaptivePollInterval(in PollInput, base time.Duration) time.Duration {
	baseSec := int64(base / time.Second)
	var sec int64
	switch {
	case in.Health == models.HealthPoor || in.Uncorrectable > uncorrectableCritical:
		sec = max(30, baseSec/30)
	case in.Health == models.HealthMarginal || in.Uncorrectable > uncorrectableElevated:
		sec = max(60, baseSec/15)
	case in.HasPrev && in.USCount < in.PrevUSCount:
		sec = max(30, baseSec/30)
	default:
		sec = baseSec
	}
	if sec > baseSec {
		sec = baseSec
	}
	if sec < 30 {
		sec = 30
	}
	return time.Duration(sec) * time.Second
}
