package weather

import (
	"context"
	"time"

	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
	"github.com/yanqian/irrigation-assistant/pkg/metrics"
)

// Instrumented records fetch latency and outcome around another provider.
type Instrumented struct {
	next    irrigation.ForecastProvider
	metrics *metrics.Collector
}

// NewInstrumented wraps next.
func NewInstrumented(next irrigation.ForecastProvider, collector *metrics.Collector) *Instrumented {
	return &Instrumented{next: next, metrics: collector}
}

// Fetch implements irrigation.ForecastProvider.
func (p *Instrumented) Fetch(ctx context.Context, lat, lon float64, days int, timezone string) (irrigation.ForecastSeries, error) {
	start := time.Now()
	series, err := p.next.Fetch(ctx, lat, lon, days, timezone)
	p.metrics.RecordWeatherFetch(err, time.Since(start))
	return series, err
}

var _ irrigation.ForecastProvider = (*Instrumented)(nil)
