package collector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"cablewatch/internal/models"
)

// Metric families read from a DOCSIS modem exporter.
const (
	famDSPower         = "docsis_downstream_power_dbmv"
	famDSSNR           = "docsis_downstream_snr_db"
	famDSModulation    = "docsis_downstream_modulation_info"
	famDSFrequency     = "docsis_downstream_frequency_hz"
	famDSCorrected     = "docsis_downstream_corrected_codewords_total"
	famDSUncorrectable = "docsis_downstream_uncorrectable_codewords_total"
	famUSPower         = "docsis_upstream_power_dbmv"
	famUSModulation    = "docsis_upstream_modulation_info"
	famUSFrequency     = "docsis_upstream_frequency_hz"

	labelChannel    = "channel_id"
	labelModulation = "modulation"
)

// PrometheusSource scrapes a modem exporter's text exposition and rebuilds
// the per-channel tables from its labelled series.
type PrometheusSource struct {
	URL  string
	HTTP *http.Client
	now  func() time.Time
}

func (s *PrometheusSource) Fetch(ctx context.Context) (models.TelemetrySnapshot, error) {
	var snap models.TelemetrySnapshot
	b, err := get(ctx, s.HTTP, s.URL, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		return snap, err
	}
	mfs, err := parseMetrics(bytes.NewReader(b))
	if err != nil {
		return snap, err
	}

	ds := channelTable{}
	ds.setFloat(mfs[famDSPower], func(c *models.ChannelRecord, v float64) { c.Power = v })
	ds.setFloat(mfs[famDSSNR], func(c *models.ChannelRecord, v float64) { c.SNR = v })
	ds.setFloat(mfs[famDSFrequency], func(c *models.ChannelRecord, v float64) { c.Frequency = formatHz(v) })
	ds.setFloat(mfs[famDSCorrected], func(c *models.ChannelRecord, v float64) { c.CorrectedErrors = int64(v) })
	ds.setFloat(mfs[famDSUncorrectable], func(c *models.ChannelRecord, v float64) { c.UncorrectableErrors = int64(v) })
	ds.setModulation(mfs[famDSModulation])

	us := channelTable{}
	us.setFloat(mfs[famUSPower], func(c *models.ChannelRecord, v float64) { c.Power = v })
	us.setFloat(mfs[famUSFrequency], func(c *models.ChannelRecord, v float64) { c.Frequency = formatHz(v) })
	us.setModulation(mfs[famUSModulation])

	snap.TS = s.now().UTC()
	snap.DSChannels = ds.records()
	snap.USChannels = us.records()
	snap.Summary = Summarize(snap.DSChannels, snap.USChannels)
	return snap, nil
}

// parseMetrics decodes a Prometheus text exposition. A partial parse that
// still yielded families is accepted.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

type channelTable map[int]*models.ChannelRecord

func (t channelTable) get(m *dto.Metric) (*models.ChannelRecord, bool) {
	raw := labelValue(m, labelChannel)
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	c, ok := t[id]
	if !ok {
		c = &models.ChannelRecord{ChannelID: id}
		t[id] = c
	}
	return c, true
}

func (t channelTable) setFloat(mf *dto.MetricFamily, set func(*models.ChannelRecord, float64)) {
	if mf == nil {
		return
	}
	for _, m := range mf.GetMetric() {
		c, ok := t.get(m)
		if !ok {
			continue
		}
		set(c, metricValue(m))
	}
}

// setModulation reads an info-style family where the sample value is 1 and
// the modulation is carried in a label.
func (t channelTable) setModulation(mf *dto.MetricFamily) {
	if mf == nil {
		return
	}
	for _, m := range mf.GetMetric() {
		if metricValue(m) == 0 {
			continue
		}
		c, ok := t.get(m)
		if !ok {
			continue
		}
		c.Modulation = labelValue(m, labelModulation)
	}
}

func (t channelTable) records() []models.ChannelRecord {
	out := make([]models.ChannelRecord, 0, len(t))
	for _, c := range t {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

func formatHz(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
