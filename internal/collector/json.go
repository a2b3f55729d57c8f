package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cablewatch/internal/models"
)

// JSONSource reads a snapshot document from an HTTP endpoint. Documents
// that carry channels but no summary health get one derived from them; a
// summary-only document is passed through as is.
type JSONSource struct {
	URL  string
	HTTP *http.Client
	now  func() time.Time
}

func (s *JSONSource) Fetch(ctx context.Context) (models.TelemetrySnapshot, error) {
	var snap models.TelemetrySnapshot
	b, err := get(ctx, s.HTTP, s.URL, "application/json")
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.TS.IsZero() {
		snap.TS = s.now().UTC()
	}
	if snap.Summary.Health == "" && (len(snap.DSChannels) > 0 || len(snap.USChannels) > 0) {
		snap.Summary = Summarize(snap.DSChannels, snap.USChannels)
	}
	return snap, nil
}

func get(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = res.Status
		}
		return nil, fmt.Errorf("GET %s failed: %s", url, msg)
	}
	return b, nil
}
