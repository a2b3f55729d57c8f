package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cablewatch/internal/models"
	"cablewatch/internal/watchdog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) InsertSnapshot(ctx context.Context, snap models.TelemetrySnapshot) (int64, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO snapshots
		(ts,health,ds_power_avg,us_power_avg,ds_uncorrectable,ds_channel_count,us_channel_count,payload_json)
		VALUES (?,?,?,?,?,?,?,?)`,
		snap.TS.UTC(), snap.Summary.Health, nullFloat(snap.Summary.DSPowerAvg), nullFloat(snap.Summary.USPowerAvg),
		snap.Summary.DSUncorrectableErrors, len(snap.DSChannels), len(snap.USChannels), string(payload))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestSnapshot returns sql.ErrNoRows when nothing has been stored yet.
func (r *Repository) LatestSnapshot(ctx context.Context) (models.TelemetrySnapshot, error) {
	var snap models.TelemetrySnapshot
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload_json FROM snapshots ORDER BY ts DESC, id DESC LIMIT 1`).Scan(&payload)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (r *Repository) RecentSnapshots(ctx context.Context, from time.Time, limit int) ([]models.SnapshotPoint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ts,health,ds_power_avg,us_power_avg,ds_uncorrectable,ds_channel_count,us_channel_count
		FROM snapshots WHERE ts >= ? ORDER BY ts ASC LIMIT ?`, from.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.SnapshotPoint, 0)
	for rows.Next() {
		var p models.SnapshotPoint
		var dsPower, usPower sql.NullFloat64
		if err := rows.Scan(&p.TS, &p.Health, &dsPower, &usPower, &p.DSUncorrectable, &p.DSChannelCount, &p.USChannelCount); err != nil {
			return nil, err
		}
		if dsPower.Valid {
			p.DSPowerAvg = models.Float(dsPower.Float64)
		}
		if usPower.Valid {
			p.USPowerAvg = models.Float(usPower.Float64)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveWatchdogEvent persists the flat record form of a watchdog event.
func (r *Repository) SaveWatchdogEvent(ctx context.Context, rec watchdog.Record) error {
	id, _ := rec["id"].(string)
	if id == "" {
		return fmt.Errorf("watchdog event without id")
	}
	ts, ok := rec["timestamp"].(time.Time)
	if !ok {
		return fmt.Errorf("watchdog event %s: missing timestamp", id)
	}
	details, err := json.Marshal(rec["details"])
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	var channel sql.NullInt64
	if v, ok := rec["channel_id"].(int); ok {
		channel = sql.NullInt64{Int64: int64(v), Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO watchdog_events
		(id,ts,event_type,channel_id,direction,severity,message,details_json)
		VALUES (?,?,?,?,?,?,?,?)`,
		id, ts.UTC(), recString(rec, "event_type"), channel, recString(rec, "direction"),
		recString(rec, "severity"), recString(rec, "message"), string(details))
	return err
}

// RecentWatchdogEvents returns the newest events first. An empty eventType
// matches every type.
func (r *Repository) RecentWatchdogEvents(ctx context.Context, limit int, eventType string) ([]models.StoredEvent, error) {
	query := `SELECT id,ts,event_type,channel_id,direction,severity,message,details_json FROM watchdog_events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.StoredEvent, 0)
	for rows.Next() {
		var ev models.StoredEvent
		var channel sql.NullInt64
		var details string
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.EventType, &channel, &ev.Direction, &ev.Severity, &ev.Message, &details); err != nil {
			return nil, err
		}
		if channel.Valid {
			id := int(channel.Int64)
			ev.ChannelID = &id
		}
		_ = json.Unmarshal([]byte(details), &ev.Details)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repository) WatchdogEventCounts(ctx context.Context, since time.Time) ([]models.EventCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT event_type,severity,COUNT(*) FROM watchdog_events
		WHERE ts >= ? GROUP BY event_type,severity ORDER BY COUNT(*) DESC, event_type ASC`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.EventCount, 0)
	for rows.Next() {
		var c models.EventCount
		if err := rows.Scan(&c.EventType, &c.Severity, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	queries := []string{
		`DELETE FROM snapshots WHERE ts < ?`,
		`DELETE FROM watchdog_events WHERE ts < ?`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q, cutoff.UTC()); err != nil {
			return err
		}
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return nil
}

func (r *Repository) SaveTelegramSettings(ctx context.Context, token, chatID string) error {
	for k, v := range map[string]string{"telegram_token": token, "telegram_chat_id": chatID} {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO settings(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) LoadTelegramSettings(ctx context.Context) (token, chatID string, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key,value FROM settings WHERE key IN ('telegram_token','telegram_chat_id')`)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return "", "", err
		}
		if k == "telegram_token" {
			token = v
		}
		if k == "telegram_chat_id" {
			chatID = v
		}
	}
	return token, chatID, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func recString(rec watchdog.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}
