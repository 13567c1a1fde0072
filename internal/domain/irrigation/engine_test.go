package irrigation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
)

func TestDecideReferenceDay(t *testing.T) {
	series := ForecastSeries{{Date: "d0", PrecipitationMM: 1.2, ET0MM: Float(4.47)}}

	got, err := Decide(series, DefaultParams())
	require.NoError(t, err)
	require.True(t, got.Irrigate)
	require.InDelta(t, 2.823, got.NeedMM, 1e-9)
	require.Equal(t, 28.2, got.Minutes)
	require.Equal(t, 4.47, got.ET0)
	require.Equal(t, 1.2, got.Rain)
}

func TestDecideUsesOnlyToday(t *testing.T) {
	series := ForecastSeries{
		{Date: "d0", PrecipitationMM: 10, ET0MM: Float(3)},
		{Date: "d1", PrecipitationMM: 0, ET0MM: Float(9)},
	}

	got, err := Decide(series, DefaultParams())
	require.NoError(t, err)
	require.False(t, got.Irrigate)
	require.Equal(t, 0.0, got.NeedMM)
	require.Equal(t, 0.0, got.Minutes)
}

func TestDecideDefaultsAbsentET0(t *testing.T) {
	series := ForecastSeries{{Date: "d0", PrecipitationMM: 0}}

	got, err := Decide(series, DefaultParams())
	require.NoError(t, err)
	require.Equal(t, DefaultET0, got.ET0)
	require.InDelta(t, 3.6, got.NeedMM, 1e-9)
	require.Equal(t, 36.0, got.Minutes)
	require.False(t, math.IsNaN(got.Minutes))
}

func TestDecideTraceDemandStillIrrigates(t *testing.T) {
	series := ForecastSeries{{Date: "d0", PrecipitationMM: 3.59, ET0MM: Float(4)}}

	got, err := Decide(series, DefaultParams())
	require.NoError(t, err)
	require.True(t, got.Irrigate)
	require.Greater(t, got.NeedMM, 0.0)
}

func TestDecideRejectsInvalidConfig(t *testing.T) {
	series := ForecastSeries{{Date: "d0", PrecipitationMM: 0, ET0MM: Float(4)}}
	cases := []struct {
		name   string
		params Params
	}{
		{name: "zero kc", params: Params{Kc: 0, AreaM2: 100, FlowRateLPM: 10}},
		{name: "negative area", params: Params{Kc: 0.9, AreaM2: -1, FlowRateLPM: 10}},
		{name: "zero flow", params: Params{Kc: 0.9, AreaM2: 100, FlowRateLPM: 0}},
		{name: "nan flow", params: Params{Kc: 0.9, AreaM2: 100, FlowRateLPM: math.NaN()}},
		{name: "inf area", params: Params{Kc: 0.9, AreaM2: math.Inf(1), FlowRateLPM: 10}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decide(series, tc.params)
			require.Error(t, err)
			require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidConfig))
		})
	}
}

func TestDecideRejectsEmptySeries(t *testing.T) {
	_, err := Decide(nil, DefaultParams())
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestDecideNeedNeverNegative(t *testing.T) {
	for et0 := 0.0; et0 <= 12; et0 += 0.37 {
		for rain := 0.0; rain <= 15; rain += 0.53 {
			series := ForecastSeries{{Date: "d0", PrecipitationMM: rain, ET0MM: Float(et0)}}
			got, err := Decide(series, DefaultParams())
			require.NoError(t, err)
			require.GreaterOrEqual(t, got.NeedMM, 0.0)
			require.GreaterOrEqual(t, got.Minutes, 0.0)
			require.InDelta(t, math.Max(0, 0.9*et0-rain), got.NeedMM, 1e-12)
			require.Equal(t, got.NeedMM > 0, got.Irrigate)
		}
	}
}

func TestDecideDeterministic(t *testing.T) {
	series := ForecastSeries{{Date: "d0", PrecipitationMM: 0.2, ET0MM: Float(4.47)}}
	params := Params{Kc: 1.15, AreaM2: 250, FlowRateLPM: 12.5}

	first, err := Decide(series, params)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Decide(series, params)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestClassifySufficiency(t *testing.T) {
	cases := []struct {
		name string
		et0  float64
		rain float64
		want Sufficiency
	}{
		{name: "rain equals et0", et0: 5, rain: 5, want: Sufficient},
		{name: "rain exceeds et0", et0: 3, rain: 8, want: Sufficient},
		{name: "half boundary", et0: 10, rain: 5, want: Partial},
		{name: "just below half", et0: 10, rain: 4.99, want: InsufficientFull},
		{name: "zero et0 dry", et0: 0, rain: 0, want: Sufficient},
		{name: "et0 five rain two", et0: 5, rain: 2, want: InsufficientFull},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifySufficiency(tc.et0, tc.rain))
		})
	}
}

func TestSufficiencyAdviceDistinct(t *testing.T) {
	seen := map[string]struct{}{}
	for _, s := range []Sufficiency{Sufficient, Partial, InsufficientFull} {
		seen[s.Advice()] = struct{}{}
	}
	require.Len(t, seen, 3)
}

func TestAssessSufficiency(t *testing.T) {
	resp, err := AssessSufficiency(SufficiencyRequest{ET0: Float(5), Rain: Float(2)})
	require.NoError(t, err)
	require.Equal(t, InsufficientFull, resp.Sufficiency)
	require.Equal(t, InsufficientFull.Advice(), resp.Advice)

	resp, err = AssessSufficiency(SufficiencyRequest{ET0: Float(0), Rain: Float(0)})
	require.NoError(t, err)
	require.Equal(t, Sufficient, resp.Sufficiency)

	for _, req := range []SufficiencyRequest{
		{ET0: Float(4)},
		{Rain: Float(1)},
		{ET0: Float(-1), Rain: Float(1)},
		{ET0: Float(math.NaN()), Rain: Float(1)},
		{ET0: Float(4), Rain: Float(math.Inf(1))},
	} {
		_, err := AssessSufficiency(req)
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	}
}
