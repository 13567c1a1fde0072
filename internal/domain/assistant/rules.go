package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
)

// ForecastFunc supplies the forecast used by weather related rules.
type ForecastFunc func(ctx context.Context) (irrigation.ForecastSeries, error)

// Reply is the outcome of rule matching. Matched is false for no match.
type Reply struct {
	Text    string
	Rule    string
	Matched bool
}

// NoMatch signals that the conversation should go to the fallback generator.
var NoMatch = Reply{}

var (
	et0Pattern  = regexp.MustCompile(`et0\s*=?\s*([\d.]+)`)
	rainPattern = regexp.MustCompile(`rain\s*=?\s*([\d.]+)`)

	greetings = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {}, "hii": {}, "good morning": {}, "good evening": {},
	}
)

// rule is one row of the dispatch table. answer may decline with ok=false, in
// which case evaluation continues with the next row.
type rule struct {
	name   string
	match  func(text string) bool
	answer func(ctx context.Context, text string, fc *forecastCache) (reply string, ok bool, err error)
}

// RuleSet answers known questions with canned or computed text. The first
// matching row wins.
type RuleSet struct {
	rules []rule
}

// NewRuleSet builds the default dispatch table.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: defaultRules()}
}

// Names lists the rules in evaluation order.
func (r *RuleSet) Names() []string {
	names := make([]string, 0, len(r.rules))
	for _, rl := range r.rules {
		names = append(names, rl.name)
	}
	return names
}

// Respond evaluates the table against text. Matching itself never fails; an
// error is only returned when a matched rule could not load the forecast.
func (r *RuleSet) Respond(ctx context.Context, text string, forecast ForecastFunc) (Reply, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	fc := &forecastCache{fetch: forecast}
	for _, rl := range r.rules {
		if !rl.match(normalized) {
			continue
		}
		answer, ok, err := rl.answer(ctx, normalized, fc)
		if err != nil {
			return Reply{Rule: rl.name}, err
		}
		if ok {
			return Reply{Text: answer, Rule: rl.name, Matched: true}, nil
		}
	}
	return NoMatch, nil
}

func defaultRules() []rule {
	return []rule{
		{
			name:   "greeting",
			match:  isGreeting,
			answer: fixed("👋 Hello! How can I help you with irrigation or weather today?"),
		},
		{
			name:   "small_talk",
			match:  containsAll("how are you"),
			answer: fixed("😊 I'm doing great! Ready to help you with irrigation and weather advice."),
		},
		{
			name:   "irrigation_rule",
			match:  containsAll("et0", "rain"),
			answer: answerSufficiency,
		},
		{
			name: "forecast",
			match: func(t string) bool {
				return containsAny("weather", "forecast")(t) && !containsAny("strawberry", "crop")(t)
			},
			answer: answerForecast,
		},
		{
			name:   "rain_tomorrow",
			match:  containsAll("rain tomorrow"),
			answer: answerRainTomorrow,
		},
		{
			name:   "rain_total",
			match:  containsAll("last 3 days rain"),
			answer: answerRainTotal,
		},
		{
			name:   "irrigate_after_rain",
			match:  containsAll("irrigate after rain"),
			answer: fixed("💡 Wait 1–2 days after heavy rain before irrigating, unless soil dries quickly."),
		},
		{
			name:   "best_time",
			match:  containsAll("best time", "irrigate"),
			answer: fixed("⏰ Best irrigation time is early morning or late evening to reduce evaporation."),
		},
		{
			name:   "crop_water",
			match:  containsAll("which crop needs more water"),
			answer: fixed("🌱 Paddy needs the most water now, while wheat requires moderate irrigation."),
		},
		{
			name:   "wheat_hours",
			match:  containsAll("how many hours", "wheat"),
			answer: fixed("🌾 Wheat usually requires ~2–3 hours of irrigation per acre depending on soil."),
		},
		{
			name:   "paddy_hours",
			match:  containsAll("how many hours", "paddy"),
			answer: fixed("🌾 Paddy requires ~4–6 hours of irrigation per acre depending on water depth."),
		},
		{
			name:   "drip_or_flood",
			match:  containsAll("drip or flood"),
			answer: fixed("💧 Drip is more water-efficient, but flood may be used for paddy fields."),
		},
		{
			name:   "drought",
			match:  containsAny("drought", "shortage"),
			answer: fixed("⚠️ Warning: Low rainfall this week, conserve water and use efficient irrigation."),
		},
	}
}

// ExtractReadings pulls the first numbers following "et0" and "rain" out of a
// lower-cased message.
func ExtractReadings(text string) (et0, rain float64, ok bool) {
	et0Match := et0Pattern.FindStringSubmatch(text)
	rainMatch := rainPattern.FindStringSubmatch(text)
	if et0Match == nil || rainMatch == nil {
		return 0, 0, false
	}
	et0, err := strconv.ParseFloat(et0Match[1], 64)
	if err != nil {
		return 0, 0, false
	}
	rain, err = strconv.ParseFloat(rainMatch[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return et0, rain, true
}

func answerSufficiency(_ context.Context, text string, _ *forecastCache) (string, bool, error) {
	et0, rain, ok := ExtractReadings(text)
	if !ok {
		return "", false, nil
	}
	return irrigation.ClassifySufficiency(et0, rain).Advice(), true, nil
}

func answerForecast(ctx context.Context, _ string, fc *forecastCache) (string, bool, error) {
	series, err := fc.get(ctx)
	if err != nil {
		return "", false, err
	}
	lines := make([]string, 0, len(series)+1)
	lines = append(lines, "🌦 Weather forecast:")
	for _, day := range series {
		et0 := "n/a"
		if day.ET0MM != nil {
			et0 = formatMM(*day.ET0MM) + "mm"
		}
		lines = append(lines, fmt.Sprintf("%s: rain=%smm, ET0=%s", day.Date, formatMM(day.PrecipitationMM), et0))
	}
	return strings.Join(lines, "\n"), true, nil
}

func answerRainTomorrow(ctx context.Context, _ string, fc *forecastCache) (string, bool, error) {
	series, err := fc.get(ctx)
	if err != nil {
		return "", false, err
	}
	if len(series) < 2 {
		return "", false, nil
	}
	return fmt.Sprintf("🌧 Rain expected tomorrow: %smm", formatMM(series[1].PrecipitationMM)), true, nil
}

func answerRainTotal(ctx context.Context, _ string, fc *forecastCache) (string, bool, error) {
	series, err := fc.get(ctx)
	if err != nil {
		return "", false, err
	}
	var total float64
	for _, day := range series {
		total += day.PrecipitationMM
	}
	return fmt.Sprintf("🌧 Total rain in last 3 days: %smm", formatMM(total)), true, nil
}

func isGreeting(text string) bool {
	_, ok := greetings[text]
	return ok
}

func fixed(text string) func(context.Context, string, *forecastCache) (string, bool, error) {
	return func(context.Context, string, *forecastCache) (string, bool, error) {
		return text, true, nil
	}
}

func containsAll(parts ...string) func(string) bool {
	return func(text string) bool {
		for _, p := range parts {
			if !strings.Contains(text, p) {
				return false
			}
		}
		return true
	}
}

func containsAny(parts ...string) func(string) bool {
	return func(text string) bool {
		for _, p := range parts {
			if strings.Contains(text, p) {
				return true
			}
		}
		return false
	}
}

// formatMM prints the shortest exact representation, keeping one decimal for
// whole numbers so 0 reads as "0.0".
func formatMM(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// forecastCache fetches at most once per Respond call.
type forecastCache struct {
	fetch  ForecastFunc
	series irrigation.ForecastSeries
	err    error
	done   bool
}

func (c *forecastCache) get(ctx context.Context) (irrigation.ForecastSeries, error) {
	if c.done {
		return c.series, c.err
	}
	c.done = true
	if c.fetch == nil {
		c.err = apperrors.Wrap(apperrors.CodeProviderUnavailable, "no forecast provider configured", nil)
		return nil, c.err
	}
	c.series, c.err = c.fetch(ctx)
	if c.err != nil && !isAppError(c.err) {
		c.err = apperrors.Wrap(apperrors.CodeProviderUnavailable, "weather provider unavailable", c.err)
	}
	return c.series, c.err
}

func isAppError(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr)
}
