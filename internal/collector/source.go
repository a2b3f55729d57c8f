package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cablewatch/internal/config"
	"cablewatch/internal/models"
)

// ErrNoData is returned when the modem answered with neither channels nor a
// summary.
var ErrNoData = errors.New("collector: snapshot is empty")

const defaultFetchTimeout = 15 * time.Second

// Source produces one telemetry snapshot per call.
type Source interface {
	Fetch(ctx context.Context) (models.TelemetrySnapshot, error)
}

// NewSource returns the Source for the configured kind. It builds the HTTP
// client once and reuses it across polls.
func NewSource(cfg config.SourceConfig) (Source, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := &http.Client{Timeout: timeout}
	switch cfg.Kind {
	case config.SourceJSON:
		return &JSONSource{URL: cfg.URL, HTTP: client, now: time.Now}, nil
	case config.SourcePrometheus:
		return &PrometheusSource{URL: cfg.URL, HTTP: client, now: time.Now}, nil
	default:
		return nil, fmt.Errorf("collector: unsupported source kind %q", cfg.Kind)
	}
}
