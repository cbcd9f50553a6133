// Package history is the read side of anomaly detection: event history with
// summary statistics, and baseline listings with training status.
package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/cache/redis"
	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/pkg/logger"
)

// Baseline set readiness.
const (
	StatusReady      = "ready"
	StatusPartial    = "partial"
	StatusCollecting = "collecting"
)

const DefaultWindowDays = 30

type Service struct {
	db    *sqlite.Client
	cache *redis.Client
}

func NewService(db *sqlite.Client, cache *redis.Client) *Service {
	return &Service{
		db:    db,
		cache: cache,
	}
}

type Summary struct {
	AvgDeviationPercent float64 `json:"avgDeviationPercent"`
	MostCommonHour      int     `json:"mostCommonHour"`
	MostCommonCause     string  `json:"mostCommonCause"`
}

type HistoryResult struct {
	TotalAnomalies int                   `json:"totalAnomalies"`
	Anomalies      []models.AnomalyEvent `json:"anomalies"`
	Summary        Summary               `json:"summary"`
}

// History returns the user's anomaly events within the trailing window,
// newest first, with aggregate statistics over the returned set.
func (s *Service) History(ctx context.Context, userID string, days int) (*HistoryResult, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}

	since := time.Now().AddDate(0, 0, -days)
	events, err := s.db.GetAnomalyHistory(userID, since)
	if err != nil {
		return nil, err
	}

	result := &HistoryResult{
		TotalAnomalies: len(events),
		Anomalies:      events,
	}
	if len(events) == 0 {
		result.Anomalies = []models.AnomalyEvent{}
		return result, nil
	}

	var deviationSum float64
	hourCounts := make(map[int]int)
	causeCounts := make(map[string]int)

	for _, e := range events {
		deviationSum += e.DeviationPercent
		hourCounts[e.HourOfDay]++
		causeCounts[e.PossibleCause]++
	}

	result.Summary = Summary{
		AvgDeviationPercent: deviationSum / float64(len(events)),
		MostCommonHour:      modeInt(hourCounts),
		MostCommonCause:     modeString(causeCounts),
	}

	return result, nil
}

type BaselinesResult struct {
	Status    string                 `json:"status"`
	Baselines []models.BaselineStats `json:"baselines"`
}

// Baselines lists the user's hourly baselines. Status is "ready" with all 24
// hours present, "partial" with some, "collecting" with none. Reads through
// the per-user cache.
func (s *Service) Baselines(ctx context.Context, userID string) (*BaselinesResult, error) {
	baselines, hit, err := s.cache.GetBaselines(ctx, userID)
	if err != nil {
		logger.Warn("Baseline cache read failed", zap.Error(err))
	}
	if hit {
		metrics.CacheHits.WithLabelValues("baselines").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("baselines").Inc()

		baselines, err = s.db.GetBaselines(userID)
		if err != nil {
			return nil, err
		}

		if err := s.cache.SetBaselines(ctx, userID, baselines); err != nil {
			logger.Warn("Baseline cache write failed", zap.Error(err))
		}
	}

	status := StatusCollecting
	switch {
	case len(baselines) == 24:
		status = StatusReady
	case len(baselines) > 0:
		status = StatusPartial
	}

	if baselines == nil {
		baselines = []models.BaselineStats{}
	}

	return &BaselinesResult{
		Status:    status,
		Baselines: baselines,
	}, nil
}

func modeInt(counts map[int]int) int {
	best, bestCount := 0, -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best
}

func modeString(counts map[string]int) string {
	best, bestCount := "", -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best
}
