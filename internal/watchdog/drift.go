package watchdog

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cablewatch/internal/models"
)

const (
	DefaultDriftThresholdDB = 3.0
	DefaultDriftWindow      = 24 * time.Hour
)

// Power metric keys tracked by the drift detector.
const (
	MetricDSPowerAvg = "ds_power_avg"
	MetricUSPowerAvg = "us_power_avg"
)

type powerSample struct {
	ts    time.Time
	value float64
}

// powerHistory is an ordered buffer of samples for one metric. Pruning only
// advances start; the backing slice is compacted once more than half of it
// is dead.
type powerHistory struct {
	samples []powerSample
	start   int
}

func (h *powerHistory) live() []powerSample { return h.samples[h.start:] }

func (h *powerHistory) add(s powerSample) {
	live := h.live()
	// Samples normally arrive in order; a clock step backwards is inserted
	// in place to keep the buffer sorted.
	i := sort.Search(len(live), func(i int) bool { return live[i].ts.After(s.ts) })
	pos := h.start + i
	h.samples = append(h.samples, powerSample{})
	copy(h.samples[pos+1:], h.samples[pos:])
	h.samples[pos] = s
}

// prune drops samples older than cutoff.
func (h *powerHistory) prune(cutoff time.Time) {
	for h.start < len(h.samples) && h.samples[h.start].ts.Before(cutoff) {
		h.start++
	}
	if h.start > 0 && h.start*2 >= len(h.samples) {
		n := copy(h.samples, h.samples[h.start:])
		h.samples = h.samples[:n]
		h.start = 0
	}
}

type driftMetric struct {
	key string
	dir Direction
	get func(models.Summary) *float64
}

var driftMetrics = []driftMetric{
	{key: MetricDSPowerAvg, dir: DirectionDS, get: func(s models.Summary) *float64 { return s.DSPowerAvg }},
	{key: MetricUSPowerAvg, dir: DirectionUS, get: func(s models.Summary) *float64 { return s.USPowerAvg }},
}

type driftDetector struct {
	threshold float64
	window    time.Duration
	history   map[string]*powerHistory
}

func newDriftDetector(threshold float64, window time.Duration) *driftDetector {
	if threshold <= 0 {
		threshold = DefaultDriftThresholdDB
	}
	if window <= 0 {
		window = DefaultDriftWindow
	}
	return &driftDetector{threshold: threshold, window: window, history: make(map[string]*powerHistory)}
}

func (d *driftDetector) observe(sum models.Summary, now time.Time) []Event {
	var events []Event
	for _, m := range driftMetrics {
		v := m.get(sum)
		if v == nil || math.IsNaN(*v) {
			continue
		}
		h := d.history[m.key]
		if h == nil {
			h = &powerHistory{}
			d.history[m.key] = h
		}
		h.add(powerSample{ts: now, value: *v})
		h.prune(now.Add(-d.window))

		live := h.live()
		if len(live) < 2 {
			continue
		}
		oldest := live[0].value
		drift := *v - oldest
		if math.Abs(drift) < d.threshold {
			continue
		}
		verb := "increased"
		if drift < 0 {
			verb = "decreased"
		}
		hours := d.window.Hours()
		events = append(events, newEvent(now, Event{
			Type:      EventPowerDrift,
			Direction: m.dir,
			Severity:  SeverityWarning,
			Message: fmt.Sprintf("%s average power %s by %.1f dB over %gh (%.1f -> %.1f dBmV)",
				strings.ToUpper(string(m.dir)), verb, math.Abs(drift), hours, oldest, *v),
			Detail: PowerDrift{
				Metric:      m.key,
				DriftDB:     round(drift, 2),
				WindowHours: hours,
				FromValue:   oldest,
				ToValue:     *v,
			},
		}))
	}
	return events
}

// historyLen reports the number of live samples for a metric.
func (d *driftDetector) historyLen(key string) int {
	if h := d.history[key]; h != nil {
		return len(h.live())
	}
	return 0
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
