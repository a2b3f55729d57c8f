package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"cablewatch/internal/watchdog"
)

const DefaultDedupWindow = time.Hour

const apiBase = "https://api.telegram.org"

var severityRank = map[watchdog.Severity]int{
	watchdog.SeverityInfo:     0,
	watchdog.SeverityWarning:  1,
	watchdog.SeverityCritical: 2,
}

type sentAlert struct {
	at    time.Time
	level watchdog.Severity
}

type Telegram struct {
	HTTP *http.Client

	mu     sync.Mutex
	token  string
	chatID string
	window time.Duration
	sent   map[string]sentAlert
	now    func() time.Time
}

func NewTelegram(token, chatID string, dedupWindow time.Duration) *Telegram {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &Telegram{
		HTTP:   &http.Client{Timeout: 10 * time.Second},
		token:  token,
		chatID: chatID,
		window: dedupWindow,
		sent:   map[string]sentAlert{},
		now:    time.Now,
	}
}

func (t *Telegram) IsConfigured() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token != "" && t.chatID != ""
}

func (t *Telegram) Update(token, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
	t.chatID = chatID
}

// Send delivers an alert. A repeat of dedupKey inside the dedup window is
// dropped without error unless it escalates to a higher severity than the
// alert already sent; an empty key is never suppressed.
func (t *Telegram) Send(ctx context.Context, title, message string, level watchdog.Severity, dedupKey string) error {
	if dedupKey != "" && t.suppressed(dedupKey, level) {
		return nil
	}
	text := fmt.Sprintf("[%s] %s\n%s", strings.ToUpper(string(level)), title, message)
	if err := t.SendText(ctx, text); err != nil {
		return err
	}
	if dedupKey != "" {
		t.mu.Lock()
		t.sent[dedupKey] = sentAlert{at: t.now(), level: level}
		t.mu.Unlock()
	}
	return nil
}

func (t *Telegram) suppressed(key string, level watchdog.Severity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, prev := range t.sent {
		if now.Sub(prev.at) >= t.window {
			delete(t.sent, k)
		}
	}
	prev, ok := t.sent[key]
	return ok && severityRank[level] <= severityRank[prev.level]
}

// SendText posts a raw message, bypassing deduplication.
func (t *Telegram) SendText(ctx context.Context, msg string) error {
	t.mu.Lock()
	token, chatID := t.token, t.chatID
	t.mu.Unlock()
	if token == "" || chatID == "" {
		return fmt.Errorf("telegram not configured")
	}
	payload := map[string]any{"chat_id": chatID, "text": msg, "disable_web_page_preview": true}
	b, _ := json.Marshal(payload)
	u := fmt.Sprintf("%s/bot%s/sendMessage", apiBase, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}
