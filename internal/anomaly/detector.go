package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/internal/tariff"
	"github.com/wattwise/backend/pkg/logger"
)

// Confidence tier cutpoints. Tiers are monotonic in |z|: anything at or above
// HighConfidenceZ is high, between MediumConfidenceZ and HighConfidenceZ is
// medium, and between the adaptive threshold and MediumConfidenceZ is low.
const (
	HighConfidenceZ   = 3.0
	MediumConfidenceZ = 2.0
)

// ZeroVarianceZ is the sentinel z-score recorded when the baseline has zero
// variance and the reading differs from the mean. JSON cannot carry ±Inf, so
// the sign of the deviation is applied to this constant instead.
const ZeroVarianceZ = 99.0

// zeroVarianceEpsilon separates measurement noise from a real deviation when
// the baseline stddev is zero.
const zeroVarianceEpsilon = 1e-6

// DefaultMinDataPoints is the minimum baseline sample count before detection
// is trusted.
const DefaultMinDataPoints = 5

// Publisher receives every detected anomaly, e.g. the websocket hub.
type Publisher interface {
	Publish(event *models.AnomalyEvent)
}

// Notifier delivers alerts for high-confidence anomalies.
type Notifier interface {
	AnomalyDetected(ctx context.Context, event *models.AnomalyEvent)
}

type Detector struct {
	db            *sqlite.Client
	rates         *tariff.Schedule
	publisher     Publisher
	notifier      Notifier
	minDataPoints int
}

func NewDetector(db *sqlite.Client, rates *tariff.Schedule, publisher Publisher, notifier Notifier, minDataPoints int) *Detector {
	if minDataPoints <= 0 {
		minDataPoints = DefaultMinDataPoints
	}
	return &Detector{
		db:            db,
		rates:         rates,
		publisher:     publisher,
		notifier:      notifier,
		minDataPoints: minDataPoints,
	}
}

// Result is the outcome of analyzing a single reading. Status is "ok" when a
// baseline was available and "collecting" when detection was skipped for lack
// of data.
type Result struct {
	Status             string  `json:"status"`
	IsAnomaly          bool    `json:"isAnomaly"`
	ZScore             float64 `json:"zScore"`
	Confidence         string  `json:"confidence,omitempty"`
	Deviation          string  `json:"deviation,omitempty"`
	DeviationPercent   float64 `json:"deviationPercent,omitempty"`
	PossibleCause      string  `json:"possibleCause,omitempty"`
	Recommendation     string  `json:"recommendation,omitempty"`
	EstimatedExtraCost float64 `json:"estimatedExtraCost,omitempty"`
	EventID            string  `json:"eventId,omitempty"`
}

// Analyze scores one consumption reading against the user's hourly baseline
// and persists an AnomalyEvent when it crosses the adaptive threshold.
// Analyzing the same reading twice creates two events: this is event logging,
// not a dedup cache.
func (d *Detector) Analyze(ctx context.Context, userID string, consumption float64, ts time.Time) (*Result, error) {
	start := time.Now()
	hour := ts.Hour()

	b, err := d.db.GetBaseline(userID, hour)
	if errors.Is(err, models.ErrNotFound) {
		metrics.AnalyzeDuration.WithLabelValues("collecting").Observe(time.Since(start).Seconds())
		return &Result{Status: "collecting", IsAnomaly: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	if b.DataPoints < d.minDataPoints {
		logger.Debug("Baseline below minimum sample count, skipping detection",
			zap.String("user_id", userID),
			zap.Int("hour", hour),
			zap.Int("data_points", b.DataPoints),
		)
		metrics.AnalyzeDuration.WithLabelValues("collecting").Observe(time.Since(start).Seconds())
		return &Result{Status: "collecting", IsAnomaly: false}, nil
	}

	z, flagged := score(consumption, b)
	metrics.ZScoreObserved.Observe(math.Abs(z))

	if !flagged {
		metrics.AnalyzeDuration.WithLabelValues("normal").Observe(time.Since(start).Seconds())
		return &Result{Status: "ok", IsAnomaly: false, ZScore: z}, nil
	}

	deviationPercent := deviationPct(consumption, b.Mean)
	cause, recommendation := classifyCause(consumption > b.Mean, hour, deviationPercent)
	extraCost := math.Abs(consumption-b.Mean) / 1000 * d.rates.RateAt(hour)

	event := &models.AnomalyEvent{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Timestamp:          ts,
		HourOfDay:          hour,
		Consumption:        consumption,
		ExpectedMean:       b.Mean,
		ExpectedStdDev:     b.StdDev,
		ZScore:             z,
		Confidence:         classifyConfidence(math.Abs(z)),
		Deviation:          describeDeviation(deviationPercent),
		DeviationPercent:   deviationPercent,
		PossibleCause:      cause,
		Recommendation:     recommendation,
		EstimatedExtraCost: extraCost,
		Status:             models.StatusDetected,
	}

	if err := d.db.InsertAnomalyEvent(event); err != nil {
		return nil, err
	}

	metrics.AnomaliesDetected.WithLabelValues(event.Confidence).Inc()
	metrics.AnalyzeDuration.WithLabelValues("anomaly").Observe(time.Since(start).Seconds())

	if d.publisher != nil {
		d.publisher.Publish(event)
	}
	if d.notifier != nil && event.Confidence == models.ConfidenceHigh {
		go d.notifier.AnomalyDetected(context.WithoutCancel(ctx), event)
	}

	return &Result{
		Status:             "ok",
		IsAnomaly:          true,
		ZScore:             event.ZScore,
		Confidence:         event.Confidence,
		Deviation:          event.Deviation,
		DeviationPercent:   event.DeviationPercent,
		PossibleCause:      event.PossibleCause,
		Recommendation:     event.Recommendation,
		EstimatedExtraCost: event.EstimatedExtraCost,
		EventID:            event.ID,
	}, nil
}

// score computes the z-score for a reading and whether it crosses the
// adaptive threshold. With zero variance any deviation beyond epsilon is a
// deterministic anomaly carrying the sentinel z-score.
func score(consumption float64, b *models.BaselineStats) (float64, bool) {
	if b.StdDev == 0 {
		diff := consumption - b.Mean
		if math.Abs(diff) <= zeroVarianceEpsilon {
			return 0, false
		}
		return math.Copysign(ZeroVarianceZ, diff), true
	}

	z := (consumption - b.Mean) / b.StdDev
	return z, math.Abs(z) >= b.ThresholdMultiplier
}

func classifyConfidence(absZ float64) string {
	switch {
	case absZ >= HighConfidenceZ:
		return models.ConfidenceHigh
	case absZ >= MediumConfidenceZ:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func deviationPct(consumption, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return (consumption - mean) / mean * 100
}

func describeDeviation(percent float64) string {
	if percent >= 0 {
		return fmt.Sprintf("+%.0f%% above normal", percent)
	}
	return fmt.Sprintf("-%.0f%% below normal", -percent)
}
