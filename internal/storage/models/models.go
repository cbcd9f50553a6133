package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by store lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Anomaly event lifecycle states.
const (
	StatusDetected      = "detected"
	StatusAcknowledged  = "acknowledged"
	StatusResolved      = "resolved"
	StatusFalsePositive = "false_positive"
)

// Confidence tiers, ordered low < medium < high.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Feedback pattern types.
const (
	PatternSpike = "spike"
	PatternDip   = "dip"
)

// Threshold multiplier bounds and default. The multiplier is the z-score
// magnitude above which a reading is flagged, adapted per user per hour.
const (
	DefaultThresholdMultiplier = 2.0
	MinThresholdMultiplier     = 1.5
	MaxThresholdMultiplier     = 3.5
	ThresholdStep              = 0.1
)

// ConsumptionReading is one raw, append-only sample of hourly consumption.
type ConsumptionReading struct {
	ID                string
	UserID            string
	Timestamp         time.Time
	HourlyConsumption float64
	DayOfWeek         int
	HourOfDay         int
	Temperature       *float64
}

// BaselineStats is the learned consumption profile for one (user, hour) pair.
// Statistical fields are replaced on recompute; ThresholdMultiplier is owned
// by the feedback loop and survives recomputes.
type BaselineStats struct {
	UserID              string    `json:"userId"`
	Hour                int       `json:"hour"`
	Mean                float64   `json:"mean"`
	StdDev              float64   `json:"stdDev"`
	Min                 float64   `json:"min"`
	Max                 float64   `json:"max"`
	DataPoints          int       `json:"dataPoints"`
	ThresholdMultiplier float64   `json:"thresholdMultiplier"`
	LastUpdated         time.Time `json:"lastUpdated"`
}

// EventFeedback is the user's report on a single anomaly event.
type EventFeedback struct {
	Appliance       string    `json:"appliance"`
	DurationMinutes int       `json:"duration"`
	WasNormal       bool      `json:"wasNormal"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// AnomalyEvent is one detected deviation from the hourly baseline. Events are
// never deleted; they form the audit trail the feedback loop learns from.
type AnomalyEvent struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"userId"`
	Timestamp          time.Time      `json:"timestamp"`
	HourOfDay          int            `json:"hourOfDay"`
	Consumption        float64        `json:"consumption"`
	ExpectedMean       float64        `json:"expectedMean"`
	ExpectedStdDev     float64        `json:"expectedStdDev"`
	ZScore             float64        `json:"zScore"`
	Confidence         string         `json:"confidence"`
	Deviation          string         `json:"deviation"`
	DeviationPercent   float64        `json:"deviationPercent"`
	PossibleCause      string         `json:"possibleCause"`
	Recommendation     string         `json:"recommendation"`
	EstimatedExtraCost float64        `json:"estimatedExtraCost"`
	Status             string         `json:"status"`
	Feedback           *EventFeedback `json:"userFeedback,omitempty"`
}

// FeedbackPattern aggregates user corrections per (user, hour, pattern type).
type FeedbackPattern struct {
	UserID            string
	Hour              int
	PatternType       string
	Occurrences       int
	LastOccurrence    time.Time
	AdjustedThreshold float64
}
