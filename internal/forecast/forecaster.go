// Package forecast predicts the next day's hourly consumption from learned
// baselines, adjusted by the user's recent trend.
package forecast

import (
	"context"
	"time"

	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/internal/tariff"
)

const (
	// trendWindowDays is how far back recent readings are compared to the
	// baseline mean to derive a per-hour trend factor.
	trendWindowDays = 7

	// Trend factors are clamped so a handful of unusual days cannot swing a
	// forecast beyond half or one-and-a-half times the baseline.
	minTrendFactor = 0.5
	maxTrendFactor = 1.5

	// confidenceZ is the 95% two-sided normal quantile used for the bands.
	confidenceZ = 1.96
)

type Forecaster struct {
	db    *sqlite.Client
	rates *tariff.Schedule
}

func NewForecaster(db *sqlite.Client, rates *tariff.Schedule) *Forecaster {
	return &Forecaster{
		db:    db,
		rates: rates,
	}
}

type HourlyForecast struct {
	Hour          int     `json:"hour"`
	Predicted     float64 `json:"predicted"`
	LowerBound    float64 `json:"lowerBound"`
	UpperBound    float64 `json:"upperBound"`
	EstimatedCost float64 `json:"estimatedCost"`
	PeakHour      bool    `json:"peakHour"`
}

type Forecast struct {
	Status string           `json:"status"`
	Hours  []HourlyForecast `json:"hours"`
}

// DayAhead produces one forecast row per hour that has a trained baseline.
// Status mirrors baseline readiness: "ready" with all 24 hours, "partial"
// with some, "collecting" with none.
func (f *Forecaster) DayAhead(ctx context.Context, userID string) (*Forecast, error) {
	baselines, err := f.db.GetBaselines(userID)
	if err != nil {
		return nil, err
	}

	if len(baselines) == 0 {
		return &Forecast{Status: "collecting", Hours: []HourlyForecast{}}, nil
	}

	recent, err := f.db.GetReadingsSince(userID, time.Now().AddDate(0, 0, -trendWindowDays))
	if err != nil {
		return nil, err
	}

	recentByHour := make(map[int][]float64, 24)
	for _, r := range recent {
		recentByHour[r.HourOfDay] = append(recentByHour[r.HourOfDay], r.HourlyConsumption)
	}

	hours := make([]HourlyForecast, 0, len(baselines))
	for _, b := range baselines {
		predicted := b.Mean * trendFactor(b, recentByHour[b.Hour])
		band := confidenceZ * b.StdDev

		lower := predicted - band
		if lower < 0 {
			lower = 0
		}

		hours = append(hours, HourlyForecast{
			Hour:          b.Hour,
			Predicted:     predicted,
			LowerBound:    lower,
			UpperBound:    predicted + band,
			EstimatedCost: predicted / 1000 * f.rates.RateAt(b.Hour),
			PeakHour:      f.rates.IsPeak(b.Hour),
		})
	}

	status := "partial"
	if len(hours) == 24 {
		status = "ready"
	}

	return &Forecast{Status: status, Hours: hours}, nil
}

func trendFactor(b models.BaselineStats, recent []float64) float64 {
	if b.Mean <= 0 || len(recent) == 0 {
		return 1
	}

	var sum float64
	for _, v := range recent {
		sum += v
	}
	factor := (sum / float64(len(recent))) / b.Mean

	if factor < minTrendFactor {
		return minTrendFactor
	}
	if factor > maxTrendFactor {
		return maxTrendFactor
	}
	return factor
}
