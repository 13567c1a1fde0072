package irrigation

// DefaultET0 substitutes an absent reference evapotranspiration value (mm/day).
const DefaultET0 = 4.0

// DailyWeather is one forecast day as returned by the weather provider.
type DailyWeather struct {
	Date            string   `json:"date"`
	PrecipitationMM float64  `json:"precipitationMm"`
	ET0MM           *float64 `json:"et0Mm"`
}

// ET0 returns the day's ET0, or DefaultET0 when the provider had none.
func (d DailyWeather) ET0() float64 {
	if d.ET0MM == nil {
		return DefaultET0
	}
	return *d.ET0MM
}

// ForecastSeries is chronological; index 0 is today.
type ForecastSeries []DailyWeather

// Float returns a pointer to v, handy for building DailyWeather literals.
func Float(v float64) *float64 {
	return &v
}

// Params carries the crop and hardware knobs of a decision.
type Params struct {
	Kc          float64 `json:"kc"`
	AreaM2      float64 `json:"areaM2"`
	FlowRateLPM float64 `json:"flowRateLpm"`
}

// DefaultParams mirrors the single-field setup the engine was tuned for.
func DefaultParams() Params {
	return Params{Kc: 0.9, AreaM2: 100, FlowRateLPM: 10}
}

// Decision is derived per request and never stored.
type Decision struct {
	Irrigate bool    `json:"irrigate"`
	NeedMM   float64 `json:"needMm"`
	Minutes  float64 `json:"minutes"`
	ET0      float64 `json:"et0"`
	Rain     float64 `json:"rain"`
}

// Sufficiency is the coarse three-tier rainfall rating used in chat answers.
type Sufficiency string

const (
	Sufficient       Sufficiency = "sufficient"
	Partial          Sufficiency = "partial"
	InsufficientFull Sufficiency = "insufficient_full"
)

// Advice returns the canned recommendation for the tier.
func (s Sufficiency) Advice() string {
	switch s {
	case Sufficient:
		return "🌧 Rainfall is sufficient. No irrigation needed."
	case Partial:
		return "💧 Rainfall covered ~50% of crop need. Apply light irrigation."
	default:
		return "⚠️ Rainfall insufficient. Full irrigation recommended."
	}
}

// Request is the payload accepted by the recommendation service.
type Request struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Days        int      `json:"days"`
	Timezone    string   `json:"timezone"`
	Kc          float64  `json:"kc"`
	AreaM2      float64  `json:"areaM2"`
	FlowRateLPM float64  `json:"flowRateLpm"`
}

// Response is serialized back to API consumers.
type Response struct {
	Decision    Decision       `json:"decision"`
	Sufficiency Sufficiency    `json:"sufficiency"`
	Advice      string         `json:"advice"`
	Params      Params         `json:"params"`
	Forecast    ForecastSeries `json:"forecast"`
}

// ForecastRequest selects a location and horizon.
type ForecastRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Days      int      `json:"days"`
	Timezone  string   `json:"timezone"`
}

// Location is the resolved query handed to the provider.
type Location struct {
	Latitude  float64
	Longitude float64
	Days      int
	Timezone  string
}

// Config wires runtime defaults for the irrigation domain.
type Config struct {
	Params    Params
	Latitude  float64
	Longitude float64
	Days      int
	Timezone  string
}

// SufficiencyRequest carries readings typed in by a user.
type SufficiencyRequest struct {
	ET0  *float64 `json:"et0"`
	Rain *float64 `json:"rain"`
}

// SufficiencyResponse rates the readings and repeats them back.
type SufficiencyResponse struct {
	Sufficiency Sufficiency `json:"sufficiency"`
	Advice      string      `json:"advice"`
	ET0         float64     `json:"et0"`
	Rain        float64     `json:"rain"`
}
