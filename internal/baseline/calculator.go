package baseline

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/cache/redis"
	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/pkg/logger"
)

// ReliableSampleCount is the number of hourly samples (30 days) after which
// a user's baselines are considered fully trained.
const ReliableSampleCount = 720

type Calculator struct {
	db    *sqlite.Client
	cache *redis.Client
}

func NewCalculator(db *sqlite.Client, cache *redis.Client) *Calculator {
	return &Calculator{
		db:    db,
		cache: cache,
	}
}

// Recalculate rebuilds the per-hour baselines for a user from their full
// consumption history. Hours with no samples get no row, so the detector
// treats them as insufficient data. Returns the upserted rows sorted by hour;
// an empty slice means no history exists yet.
func (c *Calculator) Recalculate(ctx context.Context, userID string) ([]models.BaselineStats, error) {
	start := time.Now()

	readings, err := c.db.GetReadings(userID)
	if err != nil {
		return nil, err
	}

	if len(readings) == 0 {
		logger.Info("No consumption history for baseline calculation", zap.String("user_id", userID))
		return []models.BaselineStats{}, nil
	}

	byHour := make(map[int][]float64, 24)
	for _, r := range readings {
		byHour[r.HourOfDay] = append(byHour[r.HourOfDay], r.HourlyConsumption)
	}

	now := time.Now()
	baselines := make([]models.BaselineStats, 0, len(byHour))

	for hour := 0; hour < 24; hour++ {
		samples, ok := byHour[hour]
		if !ok {
			continue
		}

		b := models.BaselineStats{
			UserID:      userID,
			Hour:        hour,
			Mean:        mean(samples),
			StdDev:      sampleStdDev(samples),
			Min:         minOf(samples),
			Max:         maxOf(samples),
			DataPoints:  len(samples),
			LastUpdated: now,
		}

		if err := c.db.UpsertBaseline(&b); err != nil {
			return nil, err
		}

		// Threshold is owned by the feedback loop; reflect the stored value.
		stored, err := c.db.GetBaseline(userID, hour)
		if err != nil {
			return nil, err
		}
		b.ThresholdMultiplier = stored.ThresholdMultiplier

		baselines = append(baselines, b)
	}

	if err := c.cache.InvalidateBaselines(ctx, userID); err != nil {
		logger.Warn("Failed to invalidate baseline cache", zap.Error(err))
	}

	metrics.BaselineRecomputeDuration.Observe(time.Since(start).Seconds())

	logger.Info("Baselines recalculated",
		zap.String("user_id", userID),
		zap.Int("hours", len(baselines)),
		zap.Int("samples", len(readings)),
	)

	return baselines, nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev uses Bessel's correction and returns 0 when fewer than two
// samples exist.
func sampleStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	m := mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - m
		sumSq += diff * diff
	}

	variance := sumSq / float64(n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
