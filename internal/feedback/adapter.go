// Package feedback folds user corrections on anomaly events back into the
// per-hour detection thresholds.
package feedback

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/cache/redis"
	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/pkg/logger"
)

type Adapter struct {
	db    *sqlite.Client
	cache *redis.Client
}

func NewAdapter(db *sqlite.Client, cache *redis.Client) *Adapter {
	return &Adapter{
		db:    db,
		cache: cache,
	}
}

type Submission struct {
	UserID          string
	AnomalyID       string
	Appliance       string
	DurationMinutes int
	WasNormal       bool
}

type Outcome struct {
	Status        string
	NewThreshold  float64
	FeedbackCount int
}

// Submit records the user's verdict on an anomaly event. "This was normal"
// marks the event a false positive and raises the hour's threshold by one
// step (every submission, clamped at the ceiling), making the detector less
// sensitive there. Any other verdict acknowledges the event and leaves the
// threshold unchanged.
func (a *Adapter) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	event, err := a.db.GetAnomalyEvent(sub.AnomalyID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != "" && sub.UserID != event.UserID {
		return nil, models.ErrNotFound
	}

	status := models.StatusAcknowledged
	if sub.WasNormal {
		status = models.StatusFalsePositive
	}

	err = a.db.SetAnomalyFeedback(sub.AnomalyID, status, &models.EventFeedback{
		Appliance:       sub.Appliance,
		DurationMinutes: sub.DurationMinutes,
		WasNormal:       sub.WasNormal,
		SubmittedAt:     time.Now(),
	})
	if err != nil {
		return nil, err
	}

	var threshold float64
	if sub.WasNormal {
		threshold, err = a.db.RaiseThreshold(event.UserID, event.HourOfDay, models.ThresholdStep, models.MaxThresholdMultiplier)
		if err != nil {
			return nil, err
		}
		metrics.ThresholdAdjustments.Inc()
	} else {
		threshold, err = a.db.GetThreshold(event.UserID, event.HourOfDay)
		if err != nil {
			return nil, err
		}
	}

	pattern := models.PatternDip
	if event.Consumption > event.ExpectedMean {
		pattern = models.PatternSpike
	}

	count, err := a.db.UpsertFeedbackPattern(event.UserID, event.HourOfDay, pattern, threshold, time.Now())
	if err != nil {
		return nil, err
	}

	if err := a.cache.InvalidateBaselines(ctx, event.UserID); err != nil {
		logger.Warn("Failed to invalidate baseline cache", zap.Error(err))
	}

	metrics.FeedbackSubmitted.WithLabelValues(strconv.FormatBool(sub.WasNormal)).Inc()

	logger.Info("Anomaly feedback processed",
		zap.String("anomaly_id", sub.AnomalyID),
		zap.String("status", status),
		zap.String("pattern", pattern),
		zap.Float64("threshold", threshold),
		zap.Int("feedback_count", count),
	)

	return &Outcome{
		Status:        status,
		NewThreshold:  threshold,
		FeedbackCount: count,
	}, nil
}
