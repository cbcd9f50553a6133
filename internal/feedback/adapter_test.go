package feedback

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
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

func seedAnomaly(t *testing.T, db *sqlite.Client, userID string, hour int, consumption, mean float64) string {
	t.Helper()

	require.NoError(t, db.UpsertBaseline(&models.BaselineStats{
		UserID:      userID,
		Hour:        hour,
		Mean:        mean,
		StdDev:      mean / 10,
		Min:         mean * 0.8,
		Max:         mean * 1.2,
		DataPoints:  30,
		LastUpdated: time.Now(),
	}))

	id := uuid.New().String()
	require.NoError(t, db.InsertAnomalyEvent(&models.AnomalyEvent{
		ID:               id,
		UserID:           userID,
		Timestamp:        time.Now(),
		HourOfDay:        hour,
		Consumption:      consumption,
		ExpectedMean:     mean,
		ExpectedStdDev:   mean / 10,
		ZScore:           (consumption - mean) / (mean / 10),
		Confidence:       models.ConfidenceHigh,
		Deviation:        "+50% above normal",
		DeviationPercent: 50,
		Status:           models.StatusDetected,
	}))

	return id
}

func TestSubmit_WasNormalMarksFalsePositiveAndRaisesThreshold(t *testing.T) {
	db := newTestDB(t)
	a := NewAdapter(db, nil)

	eventID := seedAnomaly(t, db, "user-1", 19, 1800, 1100)

	outcome, err := a.Submit(context.Background(), Submission{
		UserID:    "user-1",
		AnomalyID: eventID,
		Appliance: "oven",
		WasNormal: true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusFalsePositive, outcome.Status)
	assert.InDelta(t, 2.1, outcome.NewThreshold, 1e-9)
	assert.Equal(t, 1, outcome.FeedbackCount)

	event, err := db.GetAnomalyEvent(eventID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFalsePositive, event.Status)
	require.NotNil(t, event.Feedback)
	assert.Equal(t, "oven", event.Feedback.Appliance)
	assert.True(t, event.Feedback.WasNormal)
	assert.False(t, event.Feedback.SubmittedAt.IsZero())
}

func TestSubmit_NotNormalAcknowledgesWithoutThresholdChange(t *testing.T) {
	db := newTestDB(t)
	a := NewAdapter(db, nil)

	eventID := seedAnomaly(t, db, "user-1", 19, 1800, 1100)

	outcome, err := a.Submit(context.Background(), Submission{
		UserID:    "user-1",
		AnomalyID: eventID,
		WasNormal: false,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusAcknowledged, outcome.Status)
	assert.InDelta(t, models.DefaultThresholdMultiplier, outcome.NewThreshold, 1e-9)

	event, err := db.GetAnomalyEvent(eventID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, event.Status)
}

func TestSubmit_ThresholdConvergesToCeiling(t *testing.T) {
	db := newTestDB(t)
	a := NewAdapter(db, nil)

	var last float64
	for i := 0; i < 25; i++ {
		eventID := seedAnomaly(t, db, "user-1", 19, 1800, 1100)

		outcome, err := a.Submit(context.Background(), Submission{
			UserID:    "user-1",
			AnomalyID: eventID,
			WasNormal: true,
		})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, outcome.NewThreshold, last, "threshold never decreases")
		assert.LessOrEqual(t, outcome.NewThreshold, models.MaxThresholdMultiplier)
		last = outcome.NewThreshold
		assert.Equal(t, i+1, outcome.FeedbackCount)
	}

	assert.InDelta(t, models.MaxThresholdMultiplier, last, 1e-9, "threshold saturates at the ceiling")
}

func TestSubmit_PatternTypeFollowsDeviationDirection(t *testing.T) {
	db := newTestDB(t)
	a := NewAdapter(db, nil)

	spikeID := seedAnomaly(t, db, "user-1", 19, 1800, 1100)
	dipID := seedAnomaly(t, db, "user-1", 3, 50, 190)

	_, err := a.Submit(context.Background(), Submission{UserID: "user-1", AnomalyID: spikeID, WasNormal: true})
	require.NoError(t, err)
	_, err = a.Submit(context.Background(), Submission{UserID: "user-1", AnomalyID: dipID, WasNormal: true})
	require.NoError(t, err)

	spikePattern, err := db.GetFeedbackPattern("user-1", 19, models.PatternSpike)
	require.NoError(t, err)
	assert.Equal(t, 1, spikePattern.Occurrences)

	dipPattern, err := db.GetFeedbackPattern("user-1", 3, models.PatternDip)
	require.NoError(t, err)
	assert.Equal(t, 1, dipPattern.Occurrences)

	_, err = db.GetFeedbackPattern("user-1", 3, models.PatternSpike)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmit_UnknownAnomalyIsNotFound(t *testing.T) {
	db := newTestDB(t)
	a := NewAdapter(db, nil)

	_, err := a.Submit(context.Background(), Submission{
		UserID:    "user-1",
		AnomalyID: uuid.New().String(),
		WasNormal: true,
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmit_AdjustedThresholdMirrorsBaseline(t *testing.T) {
	db := newTestDB(t)
	a := NewAdapter(db, nil)

	eventID := seedAnomaly(t, db, "user-1", 19, 1800, 1100)

	outcome, err := a.Submit(context.Background(), Submission{
		UserID:    "user-1",
		AnomalyID: eventID,
		WasNormal: true,
	})
	require.NoError(t, err)

	pattern, err := db.GetFeedbackPattern("user-1", 19, models.PatternSpike)
	require.NoError(t, err)
	assert.InDelta(t, outcome.NewThreshold, pattern.AdjustedThreshold, 1e-9)

	stored, err := db.GetThreshold("user-1", 19)
	require.NoError(t, err)
	assert.InDelta(t, outcome.NewThreshold, stored, 1e-9)
}
