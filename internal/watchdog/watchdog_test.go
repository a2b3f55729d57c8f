package watchdog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cablewatch/internal/models"
)

type sentAlert struct {
	title, message string
	level          Severity
	dedupKey       string
}

type recordingNotifier struct {
	configured bool
	err        error
	sent       []sentAlert
}

func (n *recordingNotifier) IsConfigured() bool { return n.configured }

func (n *recordingNotifier) Send(_ context.Context, title, message string, level Severity, dedupKey string) error {
	n.sent = append(n.sent, sentAlert{title: title, message: message, level: level, dedupKey: dedupKey})
	return n.err
}

type recordingStore struct {
	err     error
	records []Record
}

func (s *recordingStore) SaveWatchdogEvent(_ context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return s.err
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWatchdog(t *testing.T, cfg Config) (*Watchdog, *recordingStore, *recordingNotifier, *testClock) {
	t.Helper()
	store := &recordingStore{}
	notify := &recordingNotifier{configured: true}
	w := New(cfg, store, notify, slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	w.now = clock.now
	return w, store, notify, clock
}

func ds(mods ...string) []models.ChannelRecord {
	out := make([]models.ChannelRecord, len(mods))
	for i, m := range mods {
		out[i] = models.ChannelRecord{ChannelID: i + 1, Modulation: m, Power: 2}
	}
	return out
}

func us(n int) []models.ChannelRecord {
	out := make([]models.ChannelRecord, n)
	for i := range out {
		out[i] = models.ChannelRecord{ChannelID: i + 1, Modulation: "64QAM", Power: 44}
	}
	return out
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestCheck_ModulationDropDownstream(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{})
	ctx := context.Background()

	first := w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("256QAM")})
	assert.Empty(t, first)

	clock.advance(time.Minute)
	events := w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("64QAM")})
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, EventModulationDrop, ev.Type)
	assert.Equal(t, DirectionDS, ev.Direction)
	assert.Equal(t, SeverityWarning, ev.Severity)
	require.NotNil(t, ev.ChannelID)
	assert.Equal(t, 1, *ev.ChannelID)
	assert.Contains(t, ev.Message, "256QAM")
	assert.Contains(t, ev.Message, "64QAM")
	assert.Equal(t, ModulationDrop{Previous: "256QAM", Current: "64QAM"}, ev.Detail)
	assert.Equal(t, map[string]any{"previous": "256QAM", "current": "64QAM"}, ev.Details())
	assert.Equal(t, clock.t, ev.Timestamp)
	assert.NotEmpty(t, ev.ID)
}

func TestCheck_ModulationTransitions(t *testing.T) {
	tests := []struct {
		name      string
		from, to  string
		wantDrops int
	}{
		{"upgrade", "64QAM", "256QAM", 0},
		{"unchanged", "256QAM", "256QAM", 0},
		{"equal rank relabel", "256QAM", "QAM256", 0},
		{"vendor spelling downgrade", "qam_256", "64-QAM", 1},
		{"known to unknown", "256QAM", "OFDMA", 1},
		{"unknown to known", "OFDMA", "QPSK", 0},
		{"unknown to unknown", "FOO", "BAR", 0},
		{"empty current", "256QAM", "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, _, _, _ := newTestWatchdog(t, Config{})
			ctx := context.Background()
			w.Check(ctx, models.TelemetrySnapshot{USChannels: ds(tc.from)})
			events := w.Check(ctx, models.TelemetrySnapshot{USChannels: ds(tc.to)})
			assert.Len(t, eventsOfType(events, EventModulationDrop), tc.wantDrops)
		})
	}
}

func TestCheck_EmptyModulationKeepsPreviousLabel(t *testing.T) {
	w, _, _, _ := newTestWatchdog(t, Config{})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("256QAM")})
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("")}))

	events := w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("16QAM")})
	require.Len(t, events, 1)
	assert.Equal(t, ModulationDrop{Previous: "256QAM", Current: "16QAM"}, events[0].Detail)
}

func TestCheck_ModulationTrackedPerDirection(t *testing.T) {
	w, _, _, _ := newTestWatchdog(t, Config{})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("256QAM")})
	// Same channel id upstream is a different key: first observation.
	events := w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("256QAM"), USChannels: ds("QPSK")})
	assert.Empty(t, eventsOfType(events, EventModulationDrop))
}

func TestCheck_ChannelCountDrop(t *testing.T) {
	w, _, _, _ := newTestWatchdog(t, Config{})
	ctx := context.Background()

	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{USChannels: us(4)}))
	baseline, ok := w.Baseline()
	require.True(t, ok)
	assert.Equal(t, 4, baseline)

	events := w.Check(ctx, models.TelemetrySnapshot{USChannels: us(1)})
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventChannelCountDrop, ev.Type)
	assert.Equal(t, SeverityCritical, ev.Severity)
	assert.Equal(t, DirectionUS, ev.Direction)
	assert.Nil(t, ev.ChannelID)
	assert.Contains(t, ev.Message, "4")
	assert.Contains(t, ev.Message, "1")
	assert.Equal(t, ChannelCountDrop{Previous: 4, Current: 1, Baseline: 4}, ev.Detail)
}

func TestCheck_ChannelCountSeverityAndBaseline(t *testing.T) {
	w, _, _, _ := newTestWatchdog(t, Config{})
	ctx := context.Background()

	steps := []struct {
		count   int
		wantSev Severity // empty means no event
	}{
		{4, ""},
		{3, SeverityWarning},
		{3, ""},
		{6, ""},
		{2, SeverityWarning},
		{0, SeverityCritical},
		{0, ""},
		{8, ""},
	}
	for i, step := range steps {
		events := eventsOfType(w.Check(ctx, models.TelemetrySnapshot{USChannels: us(step.count)}), EventChannelCountDrop)
		if step.wantSev == "" {
			assert.Empty(t, events, "step %d", i)
		} else {
			require.Len(t, events, 1, "step %d", i)
			assert.Equal(t, step.wantSev, events[0].Severity, "step %d", i)
			assert.Equal(t, 4, events[0].Detail.(ChannelCountDrop).Baseline, "step %d", i)
		}
		baseline, _ := w.Baseline()
		assert.Equal(t, 4, baseline, "baseline changed at step %d", i)
	}
}

func TestCheck_PowerDrift(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{DriftThresholdDB: 2.0})
	ctx := context.Background()

	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(3.0)}}))

	clock.advance(time.Hour)
	events := w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(6.0)}})
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventPowerDrift, ev.Type)
	assert.Equal(t, DirectionDS, ev.Direction)
	assert.Contains(t, ev.Message, "increased")

	details := ev.Details()
	assert.Equal(t, 3.0, details["drift_db"])
	assert.Equal(t, MetricDSPowerAvg, details["metric"])
	assert.Equal(t, 24.0, details["window_hours"])
	assert.Equal(t, 3.0, details["from_value"])
	assert.Equal(t, 6.0, details["to_value"])
}

func TestCheck_PowerDriftBothMetricsIndependently(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(0), USPowerAvg: models.Float(45)}})
	clock.advance(time.Hour)
	events := w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(-4), USPowerAvg: models.Float(49)}})

	drifts := eventsOfType(events, EventPowerDrift)
	require.Len(t, drifts, 2)
	assert.Equal(t, DirectionDS, drifts[0].Direction)
	assert.Contains(t, drifts[0].Message, "decreased")
	assert.Equal(t, -4.0, drifts[0].Detail.(PowerDrift).DriftDB)
	assert.Equal(t, DirectionUS, drifts[1].Direction)
	assert.Equal(t, 4.0, drifts[1].Detail.(PowerDrift).DriftDB)
}

func TestCheck_PowerDriftBelowThresholdOrMissing(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(1)}})
	clock.advance(time.Minute)
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(3.9)}}))
	clock.advance(time.Minute)
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{}), "missing metric is skipped")
	assert.Equal(t, 2, w.drift.historyLen(MetricDSPowerAvg))
}

func TestCheck_PowerDriftPrunesWindow(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{DriftThresholdDB: 3, DriftWindow: 24 * time.Hour})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{USPowerAvg: models.Float(40)}})
	clock.advance(25 * time.Hour)

	// The 40 dBmV sample has aged out, leaving a single point.
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{USPowerAvg: models.Float(48)}}))
	assert.Equal(t, 1, w.drift.historyLen(MetricUSPowerAvg))

	clock.advance(time.Hour)
	events := w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{USPowerAvg: models.Float(51)}})
	require.Len(t, events, 1)
	assert.Equal(t, 48.0, events[0].Detail.(PowerDrift).FromValue)
}

func TestCheck_PowerDriftClockStepsBackwards(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{DriftThresholdDB: 3, DriftWindow: 24 * time.Hour})
	ctx := context.Background()
	start := clock.t

	w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(5)}})
	clock.advance(2 * time.Hour)
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(6)}}))

	// NTP correction puts the clock before the first sample.
	clock.t = start.Add(-time.Hour)
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(4)}}))

	live := w.drift.history[MetricDSPowerAvg].live()
	require.Len(t, live, 3)
	for i := 1; i < len(live); i++ {
		assert.False(t, live[i].ts.Before(live[i-1].ts), "sample %d out of order", i)
	}
	assert.Equal(t, 4.0, live[0].value)

	clock.t = start.Add(3 * time.Hour)
	events := w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(7.5)}})
	require.Len(t, events, 1)
	drift := events[0].Detail.(PowerDrift)
	assert.Equal(t, 4.0, drift.FromValue)
	assert.Equal(t, 3.5, drift.DriftDB)
}

func TestCheck_PowerDriftWindowBoundary(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{DriftThresholdDB: 3, DriftWindow: 24 * time.Hour})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{USPowerAvg: models.Float(40)}})

	// A sample exactly one window old is still inside it.
	clock.advance(24 * time.Hour)
	events := w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{USPowerAvg: models.Float(44)}})
	require.Len(t, events, 1)
	assert.Equal(t, 40.0, events[0].Detail.(PowerDrift).FromValue)
	assert.Equal(t, 2, w.drift.historyLen(MetricUSPowerAvg))

	clock.advance(time.Nanosecond)
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{USPowerAvg: models.Float(44)}}))
	assert.Equal(t, 2, w.drift.historyLen(MetricUSPowerAvg))
}

func TestCheck_PowerDriftHistoryCompacts(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{DriftThresholdDB: 3, DriftWindow: 24 * time.Hour})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if i > 0 {
			clock.advance(time.Hour)
		}
		assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{USPowerAvg: models.Float(45)}}))

		h := w.drift.history[MetricUSPowerAvg]
		assert.Less(t, h.start*2, len(h.samples), "dead prefix not compacted at sample %d", i)
		assert.LessOrEqual(t, len(h.live()), 25)
	}

	h := w.drift.history[MetricUSPowerAvg]
	assert.Equal(t, 25, w.drift.historyLen(MetricUSPowerAvg))
	assert.Equal(t, 0, h.start)
	assert.Len(t, h.samples, 25)
	assert.Equal(t, clock.t.Add(-24*time.Hour), h.live()[0].ts)
	assert.Equal(t, clock.t, h.live()[24].ts)
}

func TestCheck_MalformedSnapshotIsEmpty(t *testing.T) {
	w, store, _, _ := newTestWatchdog(t, Config{})
	ctx := context.Background()

	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{}))
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{}))
	assert.Empty(t, store.records)
	assert.Equal(t, 100.0, w.IngressScore(models.TelemetrySnapshot{}).Score)
}

func TestCheck_DispatchesToCollaborators(t *testing.T) {
	w, store, notify, _ := newTestWatchdog(t, Config{})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("256QAM", "256QAM"), USChannels: us(4)})
	events := w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("64QAM", "16QAM"), USChannels: us(2)})
	require.Len(t, events, 3)

	require.Len(t, notify.sent, 3)
	require.Len(t, store.records, 3)
	for i, ev := range events {
		assert.Equal(t, ev.Message, notify.sent[i].title)
		assert.Contains(t, notify.sent[i].message, string(ev.Type))
		assert.Contains(t, notify.sent[i].message, string(ev.Severity))
		assert.Equal(t, ev.Severity, notify.sent[i].level)
		assert.Equal(t, DedupKey(ev), notify.sent[i].dedupKey)

		assert.Equal(t, ev.ID, store.records[i]["id"])
		assert.Equal(t, string(ev.Type), store.records[i]["event_type"])
	}
	assert.Equal(t, "watchdog:modulation_drop:1:ds", notify.sent[0].dedupKey)
	assert.Equal(t, "watchdog:channel_count_drop:none:us", notify.sent[2].dedupKey)
	assert.Nil(t, store.records[2]["channel_id"])
}

func TestCheck_UnconfiguredNotifierStillStores(t *testing.T) {
	w, store, notify, _ := newTestWatchdog(t, Config{})
	notify.configured = false
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{USChannels: us(3)})
	w.Check(ctx, models.TelemetrySnapshot{USChannels: us(2)})

	assert.Empty(t, notify.sent)
	assert.Len(t, store.records, 1)
}

func TestCheck_CollaboratorFailuresAreIsolated(t *testing.T) {
	w, store, notify, clock := newTestWatchdog(t, Config{})
	notify.err = errors.New("telegram down")
	store.err = errors.New("disk full")
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{
		DSChannels: ds("256QAM"),
		USChannels: us(4),
		Summary:    models.Summary{DSPowerAvg: models.Float(0)},
	})
	clock.advance(time.Minute)
	events := w.Check(ctx, models.TelemetrySnapshot{
		DSChannels: ds("64QAM"),
		USChannels: us(3),
		Summary:    models.Summary{DSPowerAvg: models.Float(5)},
	})

	require.Len(t, events, 3)
	assert.Len(t, notify.sent, 3)
	assert.Len(t, store.records, 3)

	// State is not rolled back: the same snapshot again raises nothing new.
	assert.Empty(t, eventsOfType(w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("64QAM"), USChannels: us(3)}), EventModulationDrop))
	assert.Equal(t, 3, w.channels.previous)
}

type panickingNotifier struct{ calls int }

func (n *panickingNotifier) IsConfigured() bool { return true }

func (n *panickingNotifier) Send(context.Context, string, string, Severity, string) error {
	n.calls++
	panic("notifier exploded")
}

type panickingStore struct{ calls int }

func (s *panickingStore) SaveWatchdogEvent(context.Context, Record) error {
	s.calls++
	panic("store exploded")
}

func TestCheck_CollaboratorPanicsAreContained(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("notifier", func(t *testing.T) {
		store := &recordingStore{}
		notify := &panickingNotifier{}
		w := New(Config{}, store, notify, logger)

		w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("256QAM"), USChannels: us(4)})
		var events []Event
		require.NotPanics(t, func() {
			events = w.Check(ctx, models.TelemetrySnapshot{DSChannels: ds("64QAM"), USChannels: us(3)})
		})
		assert.Len(t, events, 2)
		assert.Equal(t, 2, notify.calls)
		assert.Len(t, store.records, 2, "events are stored after the notifier panics")
	})

	t.Run("storage", func(t *testing.T) {
		store := &panickingStore{}
		notify := &recordingNotifier{configured: true}
		w := New(Config{}, store, notify, logger)

		w.Check(ctx, models.TelemetrySnapshot{USChannels: us(4)})
		var events []Event
		require.NotPanics(t, func() {
			events = w.Check(ctx, models.TelemetrySnapshot{USChannels: us(1)})
		})
		require.Len(t, events, 1)
		assert.Equal(t, SeverityCritical, events[0].Severity)
		assert.Equal(t, 1, store.calls)
		assert.Len(t, notify.sent, 1)
		assert.Equal(t, 1, w.channels.previous)
	})
}

func TestCheck_NilCollaborators(t *testing.T) {
	w := New(Config{}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	w.Check(ctx, models.TelemetrySnapshot{USChannels: us(2)})
	assert.Len(t, w.Check(ctx, models.TelemetrySnapshot{USChannels: us(1)}), 1)
}

func TestSetDriftConfig(t *testing.T) {
	w, _, _, clock := newTestWatchdog(t, Config{})
	ctx := context.Background()

	w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(0)}})
	clock.advance(time.Minute)
	assert.Empty(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(1.5)}}))

	w.SetDriftConfig(1.0, 0)
	assert.Equal(t, DefaultDriftWindow, w.drift.window)
	clock.advance(time.Minute)
	assert.Len(t, w.Check(ctx, models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(1.5)}}), 1)
}

func TestEventRecord(t *testing.T) {
	ev := Event{
		ID:        "abc",
		Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Type:      EventModulationDrop,
		ChannelID: channelRef(7),
		Direction: DirectionUS,
		Message:   "m",
		Severity:  SeverityWarning,
		Detail:    ModulationDrop{Previous: "64QAM", Current: "QPSK"},
		Extra:     map[string]any{"frequency": "36 MHz", "previous": "ignored"},
	}
	rec := ev.Record()
	assert.Equal(t, 7, rec["channel_id"])
	assert.Equal(t, "us", rec["direction"])
	assert.Equal(t, map[string]any{"previous": "64QAM", "current": "QPSK", "frequency": "36 MHz"}, rec["details"])
}
