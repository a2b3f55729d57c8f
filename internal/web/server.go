package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cablewatch/internal/db"
	"cablewatch/internal/models"
	"cablewatch/internal/notifier"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	maxSnapshotPoints = 4096
)

type Server struct {
	repo    *db.Repository
	notify  *notifier.Telegram
	status  func() models.Status
	metrics http.Handler
	hub     http.Handler
	log     *slog.Logger
}

func NewServer(repo *db.Repository, notify *notifier.Telegram, status func() models.Status, metrics, hub http.Handler, logger *slog.Logger) *Server {
	return &Server{repo: repo, notify: notify, status: status, metrics: metrics, hub: hub, log: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/snapshots/latest", s.handleLatestSnapshot)
	mux.HandleFunc("/api/snapshots", s.handleSnapshots)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/events/summary", s.handleEventSummary)
	mux.HandleFunc("/api/alerts/test-telegram", s.handleTestTelegram)
	mux.HandleFunc("/settings/telegram", s.handleSettingsTelegram)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return logMiddleware(mux, s.log)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.repo.LatestSnapshot(r.Context())
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "no snapshots yet", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	rng := parseRange(r.URL.Query().Get("range"))
	points, err := s.repo.RecentSnapshots(r.Context(), time.Now().Add(-rng), maxSnapshotPoints)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, points)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = min(parsed, maxEventLimit)
		}
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))
	events, err := s.repo.RecentWatchdogEvents(r.Context(), limit, eventType)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, events)
}

func (s *Server) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	rangeParam := r.URL.Query().Get("range")
	if rangeParam == "" {
		rangeParam = "24h"
	}
	rng := parseRange(rangeParam)
	counts, err := s.repo.WatchdogEventCounts(r.Context(), time.Now().Add(-rng))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	writeJSON(w, map[string]any{
		"range":  rng.String(),
		"total":  total,
		"counts": counts,
	})
}

func (s *Server) handleTestTelegram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	msg := "cablewatch test alert: Telegram integration is working"
	if err := s.notify.SendText(r.Context(), msg); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

type telegramSettings struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`
}

func (s *Server) handleSettingsTelegram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in telegramSettings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&in); err != nil {
		http.Error(w, "invalid json: "+err.Error(), 400)
		return
	}
	token := strings.TrimSpace(in.Token)
	chatID := strings.TrimSpace(in.ChatID)
	if err := s.repo.SaveTelegramSettings(r.Context(), token, chatID); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	s.notify.Update(token, chatID)
	s.log.Info("telegram settings updated", "configured", s.notify.IsConfigured())
	writeJSON(w, map[string]any{"status": "ok", "configured": s.notify.IsConfigured()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "db not ready", 503)
		return
	}
	if st := s.status(); st.LastPollAt == nil && st.LastError != "" {
		http.Error(w, "modem source not ready", 503)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func parseRange(v string) time.Duration {
	if v == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Hour
	}
	if d <= 0 {
		return time.Hour
	}
	return d
}
