package static

import (
	"context"
	"time"

	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
	"github.com/yanqian/irrigation-assistant/pkg/util"
)

type sample struct {
	precip float64
	et0    float64
}

// demoDays is the offline demo series, starting today.
var demoDays = []sample{
	{precip: 0.2, et0: 4.47},
	{precip: 1.2, et0: 3.95},
	{precip: 0.0, et0: 5.1},
}

// Provider serves a fixed forecast dated from the current day. It ignores the
// location and never fails, which makes it suitable for demos and tests.
type Provider struct {
	now func() time.Time
}

// NewProvider constructs the static provider.
func NewProvider() *Provider {
	return &Provider{now: util.NowUTC}
}

// Fetch returns up to len(demoDays) entries.
func (p *Provider) Fetch(ctx context.Context, _, _ float64, days int, _ string) (irrigation.ForecastSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days <= 0 || days > len(demoDays) {
		days = len(demoDays)
	}
	today := p.now()
	series := make(irrigation.ForecastSeries, 0, days)
	for i := 0; i < days; i++ {
		series = append(series, irrigation.DailyWeather{
			Date:            util.AddDays(today, i),
			PrecipitationMM: demoDays[i].precip,
			ET0MM:           irrigation.Float(demoDays[i].et0),
		})
	}
	return series, nil
}

var _ irrigation.ForecastProvider = (*Provider)(nil)
