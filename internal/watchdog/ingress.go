package watchdog

import (
	"cablewatch/internal/models"
)

// Weight constants for the ingress score. They must sum to 1.0.
const (
	weightPower        = 0.4
	weightModulation   = 0.3
	weightChannelCount = 0.3
)

// Upstream transmit power bands in dBmV. A modem that has to shout above
// powerGoodMax is compensating for return-path loss or ingress.
const (
	powerGoodMax     = 49.0
	powerMarginalMax = 54.0
)

// Score thresholds that map an ingress score to a health label.
const (
	ThresholdGood     = 80.0
	ThresholdMarginal = 50.0
)

// Component keys of IngressScore.Components.
const (
	ComponentPower        = "power_score"
	ComponentModulation   = "modulation_score"
	ComponentChannelCount = "channel_score"
)

// IngressScore is the composite return-path health score.
type IngressScore struct {
	// Score is in the range 0–100, rounded to one decimal.
	Score float64 `json:"score"`

	// Health is one of "good", "marginal", "poor".
	Health string `json:"health"`

	// Components holds the per-factor scores (each 0–100). Empty when there
	// are no upstream channels.
	Components map[string]float64 `json:"components"`
}

// ComputeIngressScore scores the upstream path from the current upstream
// channels and the channel-count baseline. It does not touch any state.
//
//	score = power*0.4 + modulation*0.3 + channel_count*0.3
//
// No upstream channels is the trivial case and scores a perfect 100.
func ComputeIngressScore(us []models.ChannelRecord, baseline int) IngressScore {
	if len(us) == 0 {
		return IngressScore{Score: 100, Health: models.HealthGood, Components: map[string]float64{}}
	}

	maxPower := us[0].Power
	var modSum float64
	for _, ch := range us {
		if ch.Power > maxPower {
			maxPower = ch.Power
		}
		modSum += min(100, float64(ModulationRank(ch.Modulation))*15)
	}

	power := powerScore(maxPower)
	modulation := modSum / float64(len(us))
	channels := 100.0
	if baseline > 0 {
		channels = min(100, float64(len(us))/float64(baseline)*100)
	}

	score := power*weightPower + modulation*weightModulation + channels*weightChannelCount
	score = round(clamp(score, 0, 100), 1)

	return IngressScore{
		Score:  score,
		Health: healthFromScore(score),
		Components: map[string]float64{
			ComponentPower:        round(power, 1),
			ComponentModulation:   round(modulation, 1),
			ComponentChannelCount: round(channels, 1),
		},
	}
}

func powerScore(p float64) float64 {
	switch {
	case p <= powerGoodMax:
		return 100
	case p <= powerMarginalMax:
		return 100 - (p-powerGoodMax)/(powerMarginalMax-powerGoodMax)*50
	default:
		return max(0, 50-(p-powerMarginalMax)*10)
	}
}

func healthFromScore(score float64) string {
	switch {
	case score >= ThresholdGood:
		return models.HealthGood
	case score >= ThresholdMarginal:
		return models.HealthMarginal
	default:
		return models.HealthPoor
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
