package irrigation

import (
	"math"

	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
)

// Decide turns today's forecast entry into an irrigation recommendation.
// Only series[0] is consulted; an absent ET0 falls back to DefaultET0.
func Decide(series ForecastSeries, params Params) (Decision, error) {
	if err := params.Validate(); err != nil {
		return Decision{}, err
	}
	if len(series) == 0 {
		return Decision{}, apperrors.Wrap(apperrors.CodeInvalidInput, "forecast series is empty", nil)
	}

	today := series[0]
	et0 := today.ET0()
	rain := today.PrecipitationMM

	etc := params.Kc * et0
	need := math.Max(0, etc-rain)
	liters := need * params.AreaM2
	minutes := round1(liters / params.FlowRateLPM)

	return Decision{
		Irrigate: need > 0,
		NeedMM:   need,
		Minutes:  minutes,
		ET0:      et0,
		Rain:     rain,
	}, nil
}

// Validate rejects knobs that would make the runtime arithmetic meaningless.
func (p Params) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"kc", p.Kc},
		{"areaM2", p.AreaM2},
		{"flowRateLpm", p.FlowRateLPM},
	}
	for _, c := range checks {
		if !(c.value > 0) || math.IsInf(c.value, 0) {
			return apperrors.Wrap(apperrors.CodeInvalidConfig, c.name+" must be a positive number", nil)
		}
	}
	return nil
}

// ClassifySufficiency rates rainfall against ET0 without dividing, so et0 == 0
// is always Sufficient.
func ClassifySufficiency(et0, rain float64) Sufficiency {
	switch {
	case rain >= et0:
		return Sufficient
	case rain >= 0.5*et0:
		return Partial
	default:
		return InsufficientFull
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// AssessSufficiency validates explicit readings and classifies them.
func AssessSufficiency(req SufficiencyRequest) (SufficiencyResponse, error) {
	if req.ET0 == nil || req.Rain == nil {
		return SufficiencyResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "et0 and rain are required", nil)
	}
	et0, rain := *req.ET0, *req.Rain
	if !nonNegative(et0) || !nonNegative(rain) {
		return SufficiencyResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "et0 and rain must be non-negative numbers", nil)
	}
	tier := ClassifySufficiency(et0, rain)
	return SufficiencyResponse{Sufficiency: tier, Advice: tier.Advice(), ET0: et0, Rain: rain}, nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
