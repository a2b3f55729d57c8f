package watchdog

import (
	"time"
)

type EventType string

const (
	EventModulationDrop   EventType = "modulation_drop"
	EventChannelCountDrop EventType = "channel_count_drop"
	EventPowerDrift       EventType = "power_drift"
	// EventIngressWarning is reserved; no current check emits it.
	EventIngressWarning EventType = "ingress_warning"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Direction string

const (
	DirectionDS   Direction = "ds"
	DirectionUS   Direction = "us"
	DirectionNone Direction = "none"
)

// Detail is the typed payload of an Event. The concrete variants are
// ModulationDrop, ChannelCountDrop and PowerDrift.
type Detail interface {
	Type() EventType
	fields() map[string]any
}

// ModulationDrop reports a channel moving to a lower-ranked modulation.
type ModulationDrop struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

func (ModulationDrop) Type() EventType { return EventModulationDrop }

func (d ModulationDrop) fields() map[string]any {
	return map[string]any{"previous": d.Previous, "current": d.Current}
}

// ChannelCountDrop reports the upstream channel count shrinking between polls.
type ChannelCountDrop struct {
	Previous int `json:"previous"`
	Current  int `json:"current"`
	Baseline int `json:"baseline"`
}

func (ChannelCountDrop) Type() EventType { return EventChannelCountDrop }

func (d ChannelCountDrop) fields() map[string]any {
	return map[string]any{"previous": d.Previous, "current": d.Current, "baseline": d.Baseline}
}

// PowerDrift reports a sustained change of an average power metric inside
// the drift window.
type PowerDrift struct {
	Metric      string  `json:"metric"`
	DriftDB     float64 `json:"drift_db"`
	WindowHours float64 `json:"window_hours"`
	FromValue   float64 `json:"from_value"`
	ToValue     float64 `json:"to_value"`
}

func (PowerDrift) Type() EventType { return EventPowerDrift }

func (d PowerDrift) fields() map[string]any {
	return map[string]any{
		"metric":       d.Metric,
		"drift_db":     d.DriftDB,
		"window_hours": d.WindowHours,
		"from_value":   d.FromValue,
		"to_value":     d.ToValue,
	}
}

// Event is a single watchdog finding. Events are created by a check and
// never mutated afterwards.
type Event struct {
	ID        string
	Timestamp time.Time
	Type      EventType
	ChannelID *int
	Direction Direction
	Message   string
	Severity  Severity
	Detail    Detail
	// Extra carries details that have no typed field yet.
	Extra map[string]any
}

// Details flattens the typed payload and Extra into a single map. Typed
// fields win over Extra on key collisions.
func (e Event) Details() map[string]any {
	out := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		out[k] = v
	}
	if e.Detail != nil {
		for k, v := range e.Detail.fields() {
			out[k] = v
		}
	}
	return out
}

// Record is the flat key/value form of an Event handed to storage.
type Record map[string]any

func (e Event) Record() Record {
	rec := Record{
		"id":         e.ID,
		"timestamp":  e.Timestamp,
		"event_type": string(e.Type),
		"direction":  string(e.Direction),
		"message":    e.Message,
		"severity":   string(e.Severity),
		"details":    e.Details(),
	}
	if e.ChannelID != nil {
		rec["channel_id"] = *e.ChannelID
	} else {
		rec["channel_id"] = nil
	}
	return rec
}

func channelRef(id int) *int { return &id }
