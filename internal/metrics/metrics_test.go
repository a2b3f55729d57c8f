package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cablewatch/internal/models"
	"cablewatch/internal/watchdog"
)

func TestObserveEvents(t *testing.T) {
	r := New()
	r.ObserveEvents([]watchdog.Event{
		{Type: watchdog.EventModulationDrop, Severity: watchdog.SeverityWarning},
		{Type: watchdog.EventModulationDrop, Severity: watchdog.SeverityWarning},
		{Type: watchdog.EventChannelCountDrop, Severity: watchdog.SeverityCritical},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.events.WithLabelValues("modulation_drop", "warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("channel_count_drop", "critical")))
}

func TestObserveSnapshotAndGauges(t *testing.T) {
	r := New()
	r.ObserveSnapshot(models.TelemetrySnapshot{
		Summary:    models.Summary{DSPowerAvg: models.Float(2.5), USPowerAvg: models.Float(44)},
		DSChannels: make([]models.ChannelRecord, 24),
		USChannels: make([]models.ChannelRecord, 4),
	})
	r.ObserveIngress(72.5)
	r.ObservePollInterval(5 * time.Minute)
	r.PollFailed()

	assert.Equal(t, 24.0, testutil.ToFloat64(r.channels.WithLabelValues("ds")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.channels.WithLabelValues("us")))
	assert.Equal(t, 44.0, testutil.ToFloat64(r.powerAvg.WithLabelValues("us")))
	assert.Equal(t, 72.5, testutil.ToFloat64(r.ingressScore))
	assert.Equal(t, 300.0, testutil.ToFloat64(r.pollInterval))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.pollErrors))

	r.ObserveSnapshot(models.TelemetrySnapshot{Summary: models.Summary{DSPowerAvg: models.Float(1)}})
	assert.Equal(t, 1, testutil.CollectAndCount(r.powerAvg))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveIngress(90)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(string(body), "cablewatch_ingress_score 90"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
