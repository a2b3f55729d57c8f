package models

import "time"

const (
	HealthGood     = "good"
	HealthMarginal = "marginal"
	HealthPoor     = "poor"
)

// TelemetrySnapshot is one poll cycle's worth of modem state. It is treated
// as immutable once handed to the watchdog.
type TelemetrySnapshot struct {
	TS         time.Time       `json:"ts"`
	Summary    Summary         `json:"summary"`
	DSChannels []ChannelRecord `json:"ds_channels"`
	USChannels []ChannelRecord `json:"us_channels"`
}

// Summary holds the aggregate fields of a snapshot. Power averages are
// optional; a nil pointer means the source did not report the metric.
type Summary struct {
	Health                string   `json:"health"`
	DSPowerAvg            *float64 `json:"ds_power_avg,omitempty"`
	USPowerAvg            *float64 `json:"us_power_avg,omitempty"`
	DSSNRMin              *float64 `json:"ds_snr_min,omitempty"`
	DSUncorrectableErrors int64    `json:"ds_uncorrectable_errors"`
	DSCorrectedErrors     int64    `json:"ds_correctable_errors"`
}

type ChannelRecord struct {
	ChannelID           int     `json:"channel_id"`
	Modulation          string  `json:"modulation,omitempty"`
	Power               float64 `json:"power"`
	Frequency           string  `json:"frequency,omitempty"`
	SNR                 float64 `json:"snr,omitempty"`
	CorrectedErrors     int64   `json:"correctable_errors,omitempty"`
	UncorrectableErrors int64   `json:"uncorrectable_errors,omitempty"`
	Health              string  `json:"health,omitempty"`
}

// Float returns a pointer to v, for filling optional summary fields.
func Float(v float64) *float64 { return &v }

// StoredEvent is a watchdog event as read back from storage.
type StoredEvent struct {
	ID        string         `json:"id"`
	TS        time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	ChannelID *int           `json:"channel_id"`
	Direction string         `json:"direction"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
}

type EventCount struct {
	EventType string `json:"event_type"`
	Severity  string `json:"severity"`
	Count     int64  `json:"count"`
}

// SnapshotPoint is the summary row of a stored snapshot, used for charts.
type SnapshotPoint struct {
	TS              time.Time `json:"ts"`
	Health          string    `json:"health"`
	DSPowerAvg      *float64  `json:"ds_power_avg"`
	USPowerAvg      *float64  `json:"us_power_avg"`
	DSUncorrectable int64     `json:"ds_uncorrectable_errors"`
	DSChannelCount  int       `json:"ds_channel_count"`
	USChannelCount  int       `json:"us_channel_count"`
}

// Status is the live view of the poll loop served by /api/status and pushed
// to WebSocket clients after every cycle.
type Status struct {
	Polls               int64          `json:"polls"`
	LastPollAt          *time.Time     `json:"last_poll_at"`
	LastError           string         `json:"last_error,omitempty"`
	Health              string         `json:"health,omitempty"`
	PollIntervalSeconds float64        `json:"poll_interval_seconds"`
	NextPollAt          *time.Time     `json:"next_poll_at"`
	USChannelBaseline   *int           `json:"us_channel_baseline"`
	Ingress             *IngressStatus `json:"ingress"`
	EventsLastCycle     int            `json:"events_last_cycle"`
}

type IngressStatus struct {
	Score      float64            `json:"score"`
	Health     string             `json:"health"`
	Components map[string]float64 `json:"components"`
}
