package watchdog

import (
	"fmt"
	"strings"
	"time"

	"cablewatch/internal/models"
)

// modulationRanks orders modulation schemes by signal quality. Higher is
// better; labels missing from the table rank 0.
var modulationRanks = map[string]int{
	"QPSK":    1,
	"8QAM":    2,
	"16QAM":   3,
	"32QAM":   4,
	"64QAM":   5,
	"128QAM":  6,
	"256QAM":  7,
	"512QAM":  8,
	"1024QAM": 9,
	"2048QAM": 10,
	"4096QAM": 11,
}

// ModulationRank returns the quality rank of a modulation label. Vendor
// spellings such as "QAM256", "256-QAM" or "qam_256" resolve to the same
// rank as "256QAM".
func ModulationRank(label string) int {
	return modulationRanks[normalizeModulation(label)]
}

func normalizeModulation(label string) string {
	s := strings.ToUpper(strings.TrimSpace(label))
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	if rest, ok := strings.CutPrefix(s, "QAM"); ok && rest != "" && isDigits(rest) {
		return rest + "QAM"
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type channelKey struct {
	dir Direction
	id  int
}

// modulationTracker remembers the last non-empty modulation seen per
// channel and direction.
type modulationTracker struct {
	prev map[channelKey]string
}

func newModulationTracker() *modulationTracker {
	return &modulationTracker{prev: make(map[channelKey]string)}
}

// observe compares channels against the stored labels and records the new
// ones. The stored label is updated whether or not a drop is reported.
func (t *modulationTracker) observe(dir Direction, channels []models.ChannelRecord, now time.Time) []Event {
	var events []Event
	for _, ch := range channels {
		key := channelKey{dir: dir, id: ch.ChannelID}
		current := ch.Modulation
		previous, seen := t.prev[key]

		if seen && previous != "" && current != "" && previous != current {
			if ModulationRank(current) < ModulationRank(previous) {
				events = append(events, newEvent(now, Event{
					Type:      EventModulationDrop,
					ChannelID: channelRef(ch.ChannelID),
					Direction: dir,
					Severity:  SeverityWarning,
					Message: fmt.Sprintf("%s channel %d modulation dropped from %s to %s",
						strings.ToUpper(string(dir)), ch.ChannelID, previous, current),
					Detail: ModulationDrop{Previous: previous, Current: current},
				}))
			}
		}
		if current != "" {
			t.prev[key] = current
		}
	}
	return events
}
