package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cablewatch/internal/models"
	"cablewatch/internal/watchdog"
)

const namespace = "cablewatch"

// Recorder owns a private Prometheus registry for cablewatch series.
type Recorder struct {
	reg *prometheus.Registry

	events       *prometheus.CounterVec
	ingressScore prometheus.Gauge
	pollInterval prometheus.Gauge
	pollErrors   prometheus.Counter
	channels     *prometheus.GaugeVec
	powerAvg     *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "watchdog_events_total", Help: "Watchdog events emitted, by type and severity."},
			[]string{"type", "severity"},
		),
		ingressScore: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "ingress_score", Help: "Latest upstream ingress score (0-100)."},
		),
		pollInterval: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "poll_interval_seconds", Help: "Delay chosen before the next poll."},
		),
		pollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "poll_errors_total", Help: "Polls that failed to produce a snapshot."},
		),
		channels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "channels", Help: "Channels reported in the latest snapshot."},
			[]string{"direction"},
		),
		powerAvg: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "power_avg_dbmv", Help: "Average channel power in the latest snapshot."},
			[]string{"direction"},
		),
	}
	r.reg.MustRegister(
		r.events, r.ingressScore, r.pollInterval, r.pollErrors, r.channels, r.powerAvg,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) ObserveEvents(events []watchdog.Event) {
	for _, ev := range events {
		r.events.WithLabelValues(string(ev.Type), string(ev.Severity)).Inc()
	}
}

// ObserveSnapshot updates the channel and power gauges. A power average the
// modem did not report removes the series instead of exporting zero.
func (r *Recorder) ObserveSnapshot(snap models.TelemetrySnapshot) {
	r.channels.WithLabelValues(string(watchdog.DirectionDS)).Set(float64(len(snap.DSChannels)))
	r.channels.WithLabelValues(string(watchdog.DirectionUS)).Set(float64(len(snap.USChannels)))
	r.setPower(watchdog.DirectionDS, snap.Summary.DSPowerAvg)
	r.setPower(watchdog.DirectionUS, snap.Summary.USPowerAvg)
}

func (r *Recorder) setPower(dir watchdog.Direction, v *float64) {
	if v == nil {
		r.powerAvg.DeleteLabelValues(string(dir))
		return
	}
	r.powerAvg.WithLabelValues(string(dir)).Set(*v)
}

func (r *Recorder) ObserveIngress(score float64) { r.ingressScore.Set(score) }

func (r *Recorder) ObservePollInterval(d time.Duration) { r.pollInterval.Set(d.Seconds()) }

func (r *Recorder) PollFailed() { r.pollErrors.Inc() }
