// Package config loads cablewatch settings.
//
// Environment variables (APP_*, MODEM_SOURCE_*, WATCHDOG_*, TELEGRAM_*)
// supply defaults; an optional YAML file overlays them. Watch re-reads the
// file on change so watchdog thresholds can be tuned without a restart.
package config
