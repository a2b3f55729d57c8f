package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cablewatch/internal/models"
)

// Notifier delivers human-facing alerts.
type Notifier interface {
	IsConfigured() bool
	Send(ctx context.Context, title, message string, level Severity, dedupKey string) error
}

// Storage durably records emitted events.
type Storage interface {
	SaveWatchdogEvent(ctx context.Context, rec Record) error
}

type Config struct {
	DriftThresholdDB float64
	DriftWindow      time.Duration
}

// Watchdog owns all tracker state for one modem. It does no locking: a
// single goroutine is expected to drive Check.
type Watchdog struct {
	store  Storage
	notify Notifier
	log    *slog.Logger
	now    func() time.Time

	modulation *modulationTracker
	channels   channelCountTracker
	drift      *driftDetector
}

func New(cfg Config, store Storage, notify Notifier, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		store:      store,
		notify:     notify,
		log:        logger,
		now:        time.Now,
		modulation: newModulationTracker(),
		drift:      newDriftDetector(cfg.DriftThresholdDB, cfg.DriftWindow),
	}
}

// SetDriftConfig changes the drift threshold and window. Existing history
// is kept and pruned against the new window on the next check.
func (w *Watchdog) SetDriftConfig(threshold float64, window time.Duration) {
	if threshold > 0 {
		w.drift.threshold = threshold
	}
	if window > 0 {
		w.drift.window = window
	}
}

// Check runs every detector against snap, dispatches the resulting events
// and returns them in emission order: downstream modulation, upstream
// modulation, channel count, power drift.
func (w *Watchdog) Check(ctx context.Context, snap models.TelemetrySnapshot) []Event {
	now := w.now().UTC()

	var events []Event
	events = append(events, w.modulation.observe(DirectionDS, snap.DSChannels, now)...)
	events = append(events, w.modulation.observe(DirectionUS, snap.USChannels, now)...)
	events = append(events, w.channels.observe(snap.USChannels, now)...)
	events = append(events, w.drift.observe(snap.Summary, now)...)

	for _, ev := range events {
		w.dispatch(ctx, ev)
	}
	return events
}

// IngressScore scores the upstream channels of snap against the tracked
// baseline.
func (w *Watchdog) IngressScore(snap models.TelemetrySnapshot) IngressScore {
	return ComputeIngressScore(snap.USChannels, w.channels.baseline)
}

// PollInterval proposes the next poll interval for snap. It reads the
// channel tracker's previous count, so call it before Check for the same
// snapshot.
func (w *Watchdog) PollInterval(snap models.TelemetrySnapshot, base time.Duration) time.Duration {
	return AdaptivePollInterval(PollInput{
		Health:        snap.Summary.Health,
		Uncorrectable: snap.Summary.DSUncorrectableErrors,
		USCount:       len(snap.USChannels),
		PrevUSCount:   w.channels.previous,
		HasPrev:       w.channels.hasBaseline,
	}, base)
}

// Baseline returns the first observed upstream channel count and whether
// one has been recorded yet.
func (w *Watchdog) Baseline() (int, bool) {
	return w.channels.baseline, w.channels.hasBaseline
}

func (w *Watchdog) dispatch(ctx context.Context, ev Event) {
	w.notifyEvent(ctx, ev)
	w.storeEvent(ctx, ev)
	w.log.Info("watchdog event",
		"event_type", ev.Type,
		"severity", ev.Severity,
		"direction", ev.Direction,
		"message", ev.Message,
	)
}

func (w *Watchdog) notifyEvent(ctx context.Context, ev Event) {
	if w.notify == nil {
		return
	}
	defer w.recoverCollaborator("notifier", ev)
	if !w.notify.IsConfigured() {
		return
	}
	body := fmt.Sprintf("Type: %s\nSeverity: %s", ev.Type, ev.Severity)
	if err := w.notify.Send(ctx, ev.Message, body, ev.Severity, DedupKey(ev)); err != nil {
		w.log.Warn("notify watchdog event", "event_type", ev.Type, "id", ev.ID, "err", err)
	}
}

func (w *Watchdog) storeEvent(ctx context.Context, ev Event) {
	if w.store == nil {
		return
	}
	defer w.recoverCollaborator("storage", ev)
	if err := w.store.SaveWatchdogEvent(ctx, ev.Record()); err != nil {
		w.log.Error("save watchdog event", "event_type", ev.Type, "id", ev.ID, "err", err)
	}
}

// recoverCollaborator must be deferred directly.
func (w *Watchdog) recoverCollaborator(name string, ev Event) {
	if r := recover(); r != nil {
		w.log.Error("watchdog collaborator panicked", "collaborator", name, "event_type", ev.Type, "id", ev.ID, "panic", r)
	}
}

// DedupKey identifies repeated alerts for the same condition so a notifier
// can suppress them.
func DedupKey(ev Event) string {
	ch := "none"
	if ev.ChannelID != nil {
		ch = strconv.Itoa(*ev.ChannelID)
	}
	return fmt.Sprintf("watchdog:%s:%s:%s", ev.Type, ch, ev.Direction)
}

func newEvent(now time.Time, ev Event) Event {
	ev.ID = uuid.New().String()
	ev.Timestamp = now
	return ev
}
