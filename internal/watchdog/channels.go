package watchdog

import (
	"fmt"
	"time"

	"cablewatch/internal/models"
)

// channelCountTracker follows the upstream channel count. The baseline is
// the first count ever observed and is never updated afterwards.
type channelCountTracker struct {
	hasBaseline bool
	baseline    int
	previous    int
}

func (t *channelCountTracker) observe(channels []models.ChannelRecord, now time.Time) []Event {
	current := len(channels)
	if !t.hasBaseline {
		t.hasBaseline = true
		t.baseline = current
		t.previous = current
		return nil
	}

	var events []Event
	if current < t.previous {
		sev := SeverityWarning
		if current <= 1 {
			sev = SeverityCritical
		}
		events = append(events, newEvent(now, Event{
			Type:      EventChannelCountDrop,
			Direction: DirectionUS,
			Severity:  sev,
			Message: fmt.Sprintf("Upstream channel count dropped from %d to %d (baseline %d)",
				t.previous, current, t.baseline),
			Detail: ChannelCountDrop{Previous: t.previous, Current: current, Baseline: t.baseline},
		}))
	}
	t.previous = current
	return events
}
