package collector

import (
	"math"

	"cablewatch/internal/models"
)

// DOCSIS operating ranges.
const (
	dsPowerGood     = 7.0
	dsPowerMarginal = 10.0
	dsSNRGood       = 33.0
	dsSNRMarginal   = 30.0
	usPowerGoodMin  = 35.0
	usPowerGoodMax  = 49.0
	usPowerMargMin  = 30.0
	usPowerMargMax  = 54.0
)

var healthRank = map[string]int{
	models.HealthGood:     0,
	models.HealthMarginal: 1,
	models.HealthPoor:     2,
}

// Summarize grades each channel that has no health yet and derives the
// snapshot summary. Overall health is the worst channel health; with no
// channels at all there is nothing to grade and the summary is zero.
func Summarize(ds, us []models.ChannelRecord) models.Summary {
	if len(ds) == 0 && len(us) == 0 {
		return models.Summary{}
	}
	sum := models.Summary{Health: models.HealthGood}

	var dsPower float64
	snrMin := math.Inf(1)
	for i := range ds {
		c := &ds[i]
		if c.Health == "" {
			c.Health = worse(dsPowerHealth(c.Power), dsSNRHealth(c.SNR))
		}
		sum.Health = worse(sum.Health, c.Health)
		dsPower += c.Power
		if c.SNR > 0 && c.SNR < snrMin {
			snrMin = c.SNR
		}
		sum.DSCorrectedErrors += c.CorrectedErrors
		sum.DSUncorrectableErrors += c.UncorrectableErrors
	}
	if len(ds) > 0 {
		sum.DSPowerAvg = models.Float(round2(dsPower / float64(len(ds))))
	}
	if !math.IsInf(snrMin, 1) {
		sum.DSSNRMin = models.Float(snrMin)
	}

	var usPower float64
	for i := range us {
		c := &us[i]
		if c.Health == "" {
			c.Health = usPowerHealth(c.Power)
		}
		sum.Health = worse(sum.Health, c.Health)
		usPower += c.Power
	}
	if len(us) > 0 {
		sum.USPowerAvg = models.Float(round2(usPower / float64(len(us))))
	}
	return sum
}

func dsPowerHealth(p float64) string {
	switch a := math.Abs(p); {
	case a <= dsPowerGood:
		return models.HealthGood
	case a <= dsPowerMarginal:
		return models.HealthMarginal
	default:
		return models.HealthPoor
	}
}

// dsSNRHealth treats a zero SNR as not reported.
func dsSNRHealth(snr float64) string {
	switch {
	case snr == 0 || snr >= dsSNRGood:
		return models.HealthGood
	case snr >= dsSNRMarginal:
		return models.HealthMarginal
	default:
		return models.HealthPoor
	}
}

func usPowerHealth(p float64) string {
	switch {
	case p >= usPowerGoodMin && p <= usPowerGoodMax:
		return models.HealthGood
	case p >= usPowerMargMin && p <= usPowerMargMax:
		return models.HealthMarginal
	default:
		return models.HealthPoor
	}
}

func worse(a, b string) string {
	if healthRank[b] > healthRank[a] {
		return b
	}
	return a
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
