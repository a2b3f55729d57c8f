// Package watchdog implements the signal-quality watchdog for DOCSIS
// telemetry.
//
// A Watchdog consumes one models.TelemetrySnapshot per poll and keeps three
// pieces of state between calls:
//   - the last modulation seen per (direction, channel), to flag downgrades
//   - the first and the previous upstream channel count, to flag lost channels
//   - a 24h window of average power samples per direction, to flag drift
//
// ComputeIngressScore and AdaptivePollInterval are pure functions; the
// Watchdog wrappers only feed them the tracked baseline and previous count.
//
// Events are handed to a Notifier and a Storage collaborator. Failures in
// either are logged and never abort the remaining dispatch or checks.
package watchdog
