package anomaly

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/internal/tariff"
	"github.com/wattwise/backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	metrics.Init()
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	return db
}

func seedBaseline(t *testing.T, db *sqlite.Client, userID string, hour int, values []float64) {
	t.Helper()

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sumSq float64
	minV, maxV := values[0], values[0]
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	stdDev := 0.0
	if len(values) > 1 {
		stdDev = math.Sqrt(sumSq / float64(len(values)-1))
	}

	err := db.UpsertBaseline(&models.BaselineStats{
		UserID:      userID,
		Hour:        hour,
		Mean:        mean,
		StdDev:      stdDev,
		Min:         minV,
		Max:         maxV,
		DataPoints:  len(values),
		LastUpdated: time.Now(),
	})
	require.NoError(t, err)
}

func newTestDetector(db *sqlite.Client) *Detector {
	rates := tariff.NewSchedule(17, 21, 0.28, 0.12, 0.15)
	return NewDetector(db, rates, nil, nil, DefaultMinDataPoints)
}

func at(hour int) time.Time {
	return time.Date(2026, 9, 1, hour, 30, 0, 0, time.UTC)
}

func TestAnalyze_EveningScenario(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	// mean 1100, sample stddev ~158
	seedBaseline(t, db, "user-1", 19, []float64{900, 1000, 1100, 1200, 1300})

	result, err := d.Analyze(context.Background(), "user-1", 1200, at(19))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.False(t, result.IsAnomaly, "1200W at hour 19 is within normal range")

	result, err = d.Analyze(context.Background(), "user-1", 1800, at(19))
	require.NoError(t, err)
	assert.True(t, result.IsAnomaly, "1800W at hour 19 is a spike")
	assert.Contains(t, []string{models.ConfidenceMedium, models.ConfidenceHigh}, result.Confidence)
	assert.Positive(t, result.DeviationPercent)
	assert.Contains(t, result.Deviation, "above normal")
	assert.NotEmpty(t, result.EventID)
	assert.Positive(t, result.EstimatedExtraCost)
}

func TestAnalyze_NightDipScenario(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	// mean 190, sample stddev ~7.9
	seedBaseline(t, db, "user-1", 3, []float64{180, 185, 190, 195, 200})

	result, err := d.Analyze(context.Background(), "user-1", 50, at(3))
	require.NoError(t, err)
	assert.True(t, result.IsAnomaly, "50W at hour 3 is a dip")
	assert.Negative(t, result.ZScore)
	assert.Negative(t, result.DeviationPercent)
	assert.Contains(t, result.Deviation, "below normal")
}

func TestAnalyze_NoBaselineReturnsCollecting(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	result, err := d.Analyze(context.Background(), "user-1", 1000, at(12))
	require.NoError(t, err)
	assert.Equal(t, "collecting", result.Status)
	assert.False(t, result.IsAnomaly)

	events, err := db.GetAnomalyHistory("user-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events, "no event is persisted without a baseline")
}

func TestAnalyze_InsufficientDataPointsSkipsDetection(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	seedBaseline(t, db, "user-1", 12, []float64{100, 900})

	result, err := d.Analyze(context.Background(), "user-1", 5000, at(12))
	require.NoError(t, err)
	assert.Equal(t, "collecting", result.Status)
	assert.False(t, result.IsAnomaly)
}

func TestAnalyze_ZeroVariance(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	seedBaseline(t, db, "user-1", 8, []float64{500, 500, 500, 500, 500})

	result, err := d.Analyze(context.Background(), "user-1", 500, at(8))
	require.NoError(t, err)
	assert.False(t, result.IsAnomaly, "value equal to mean is never flagged")

	result, err = d.Analyze(context.Background(), "user-1", 501, at(8))
	require.NoError(t, err)
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, models.ConfidenceHigh, result.Confidence)
	assert.InDelta(t, ZeroVarianceZ, result.ZScore, 1e-9)

	result, err = d.Analyze(context.Background(), "user-1", 400, at(8))
	require.NoError(t, err)
	assert.True(t, result.IsAnomaly)
	assert.InDelta(t, -ZeroVarianceZ, result.ZScore, 1e-9)
}

func TestAnalyze_DuplicateInputLogsTwoEvents(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	seedBaseline(t, db, "user-1", 19, []float64{1000, 1050, 1100, 1150, 1200})

	ts := at(19)
	first, err := d.Analyze(context.Background(), "user-1", 2500, ts)
	require.NoError(t, err)
	second, err := d.Analyze(context.Background(), "user-1", 2500, ts)
	require.NoError(t, err)

	require.True(t, first.IsAnomaly)
	require.True(t, second.IsAnomaly)
	assert.NotEqual(t, first.EventID, second.EventID)

	events, err := db.GetAnomalyHistory("user-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 2, "analysis is event logging, not a dedup cache")
}

func TestAnalyze_RespectsAdaptiveThreshold(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	// mean 100, sample stddev 10 (approximately): use exact baseline row
	require.NoError(t, db.UpsertBaseline(&models.BaselineStats{
		UserID:      "user-1",
		Hour:        10,
		Mean:        100,
		StdDev:      10,
		Min:         80,
		Max:         120,
		DataPoints:  50,
		LastUpdated: time.Now(),
	}))

	// z = 2.5 flags at the default threshold of 2.0
	result, err := d.Analyze(context.Background(), "user-1", 125, at(10))
	require.NoError(t, err)
	assert.True(t, result.IsAnomaly)

	// raise threshold to 3.0; the same reading is now tolerated
	for i := 0; i < 10; i++ {
		_, err := db.RaiseThreshold("user-1", 10, models.ThresholdStep, 3.0)
		require.NoError(t, err)
	}

	result, err = d.Analyze(context.Background(), "user-1", 125, at(10))
	require.NoError(t, err)
	assert.False(t, result.IsAnomaly)
}

func TestClassifyConfidence_MonotonicInZ(t *testing.T) {
	rank := map[string]int{
		models.ConfidenceLow:    0,
		models.ConfidenceMedium: 1,
		models.ConfidenceHigh:   2,
	}

	prev := -1
	for absZ := 0.0; absZ <= 10.0; absZ += 0.05 {
		tier := rank[classifyConfidence(absZ)]
		assert.GreaterOrEqual(t, tier, prev, "confidence must never decrease as |z| grows (|z|=%.2f)", absZ)
		prev = tier
	}

	assert.Equal(t, models.ConfidenceLow, classifyConfidence(1.9))
	assert.Equal(t, models.ConfidenceMedium, classifyConfidence(2.0))
	assert.Equal(t, models.ConfidenceMedium, classifyConfidence(2.99))
	assert.Equal(t, models.ConfidenceHigh, classifyConfidence(3.0))
}

func TestClassifyCause_Deterministic(t *testing.T) {
	for _, hour := range []int{0, 3, 7, 12, 19, 23} {
		for _, spike := range []bool{true, false} {
			c1, r1 := classifyCause(spike, hour, 60)
			c2, r2 := classifyCause(spike, hour, 60)
			assert.Equal(t, c1, c2)
			assert.Equal(t, r1, r2)
			assert.NotEmpty(t, c1)
			assert.NotEmpty(t, r1)
		}
	}

	cause, _ := classifyCause(true, 2, 60)
	assert.Contains(t, cause, "overnight")
}

func TestDescribeDeviation(t *testing.T) {
	assert.Equal(t, "+50% above normal", describeDeviation(50.4))
	assert.Equal(t, "-74% below normal", describeDeviation(-73.7))
}

func TestAnalyze_EventFieldsPersisted(t *testing.T) {
	db := newTestDB(t)
	d := newTestDetector(db)

	seedBaseline(t, db, "user-1", 19, []float64{1000, 1050, 1100, 1150, 1200})

	result, err := d.Analyze(context.Background(), "user-1", 1800, at(19))
	require.NoError(t, err)
	require.True(t, result.IsAnomaly)

	event, err := db.GetAnomalyEvent(result.EventID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, 19, event.HourOfDay)
	assert.Equal(t, models.StatusDetected, event.Status)
	assert.InDelta(t, 1100, event.ExpectedMean, 1e-9)
	assert.InDelta(t, result.ZScore, event.ZScore, 1e-9)
	assert.Nil(t, event.Feedback)
}

func TestGetAnomalyEvent_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAnomalyEvent(uuid.New().String())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
