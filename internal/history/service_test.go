package history

import (
	"context"
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

func insertEvent(t *testing.T, db *sqlite.Client, userID string, ts time.Time, hour int, deviationPercent float64, cause string) {
	t.Helper()

	require.NoError(t, db.InsertAnomalyEvent(&models.AnomalyEvent{
		ID:               uuid.New().String(),
		UserID:           userID,
		Timestamp:        ts,
		HourOfDay:        hour,
		Consumption:      1000,
		ExpectedMean:     800,
		ExpectedStdDev:   50,
		ZScore:           4,
		Confidence:       models.ConfidenceHigh,
		Deviation:        "+25% above normal",
		DeviationPercent: deviationPercent,
		PossibleCause:    cause,
		Status:           models.StatusDetected,
	}))
}

func TestHistory_SummaryStatistics(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	now := time.Now()
	insertEvent(t, db, "user-1", now.Add(-1*time.Hour), 19, 40, "evening peak")
	insertEvent(t, db, "user-1", now.Add(-2*time.Hour), 19, 60, "evening peak")
	insertEvent(t, db, "user-1", now.Add(-3*time.Hour), 3, -70, "overnight load")

	result, err := svc.History(context.Background(), "user-1", 7)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalAnomalies)
	assert.InDelta(t, 10.0, result.Summary.AvgDeviationPercent, 1e-9) // (40+60-70)/3
	assert.Equal(t, 19, result.Summary.MostCommonHour)
	assert.Equal(t, "evening peak", result.Summary.MostCommonCause)
}

func TestHistory_SortedNewestFirst(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	now := time.Now()
	insertEvent(t, db, "user-1", now.Add(-3*time.Hour), 10, 30, "a")
	insertEvent(t, db, "user-1", now.Add(-1*time.Hour), 11, 30, "b")
	insertEvent(t, db, "user-1", now.Add(-2*time.Hour), 12, 30, "c")

	result, err := svc.History(context.Background(), "user-1", 7)
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 3)

	assert.Equal(t, 11, result.Anomalies[0].HourOfDay)
	assert.Equal(t, 12, result.Anomalies[1].HourOfDay)
	assert.Equal(t, 10, result.Anomalies[2].HourOfDay)
}

func TestHistory_TrailingWindowFiltersOldEvents(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	now := time.Now()
	insertEvent(t, db, "user-1", now.Add(-2*time.Hour), 19, 40, "recent")
	insertEvent(t, db, "user-1", now.AddDate(0, 0, -10), 19, 40, "old")

	result, err := svc.History(context.Background(), "user-1", 7)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalAnomalies)
	assert.Equal(t, "recent", result.Anomalies[0].PossibleCause)
}

func TestHistory_EmptyWindow(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	result, err := svc.History(context.Background(), "user-1", 7)
	require.NoError(t, err)

	assert.Zero(t, result.TotalAnomalies)
	assert.NotNil(t, result.Anomalies)
	assert.Empty(t, result.Anomalies)
}

func TestBaselines_StatusProgression(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	result, err := svc.Baselines(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCollecting, result.Status)
	assert.Empty(t, result.Baselines)

	for hour := 0; hour < 12; hour++ {
		require.NoError(t, db.UpsertBaseline(&models.BaselineStats{
			UserID: "user-1", Hour: hour, Mean: 100, DataPoints: 10, LastUpdated: time.Now(),
		}))
	}

	result, err = svc.Baselines(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, result.Status)
	assert.Len(t, result.Baselines, 12)

	for hour := 12; hour < 24; hour++ {
		require.NoError(t, db.UpsertBaseline(&models.BaselineStats{
			UserID: "user-1", Hour: hour, Mean: 100, DataPoints: 10, LastUpdated: time.Now(),
		}))
	}

	result, err = svc.Baselines(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
	assert.Len(t, result.Baselines, 24)
}

func TestModeHelpers(t *testing.T) {
	assert.Equal(t, 19, modeInt(map[int]int{3: 1, 19: 4, 7: 2}))
	assert.Equal(t, 3, modeInt(map[int]int{3: 2, 19: 2}), "ties break to the smaller hour")
	assert.Equal(t, "a", modeString(map[string]int{"a": 3, "b": 1}))
}
