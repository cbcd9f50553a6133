package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/anomaly"
	"github.com/wattwise/backend/internal/baseline"
	"github.com/wattwise/backend/internal/feedback"
	"github.com/wattwise/backend/internal/forecast"
	"github.com/wattwise/backend/internal/history"
	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/pkg/logger"
)

type AnomalyHandler struct {
	db         *sqlite.Client
	calculator *baseline.Calculator
	detector   *anomaly.Detector
	adapter    *feedback.Adapter
	historySvc *history.Service
	forecaster *forecast.Forecaster
}

func NewAnomalyHandler(
	db *sqlite.Client,
	calculator *baseline.Calculator,
	detector *anomaly.Detector,
	adapter *feedback.Adapter,
	historySvc *history.Service,
	forecaster *forecast.Forecaster,
) *AnomalyHandler {
	return &AnomalyHandler{
		db:         db,
		calculator: calculator,
		detector:   detector,
		adapter:    adapter,
		historySvc: historySvc,
		forecaster: forecaster,
	}
}

// RecordConsumption appends one raw reading to the consumption history.
func (h *AnomalyHandler) RecordConsumption(c *fiber.Ctx) error {
	var req struct {
		UserID            string   `json:"userId"`
		HourlyConsumption *float64 `json:"hourlyConsumption"`
		Timestamp         string   `json:"timestamp"`
		Temperature       *float64 `json:"temperature"`
	}

	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.UserID == "" {
		return badRequest(c, "userId is required")
	}
	if req.HourlyConsumption == nil {
		return badRequest(c, "hourlyConsumption is required")
	}
	if *req.HourlyConsumption < 0 {
		return badRequest(c, "hourlyConsumption must not be negative")
	}

	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		return badRequest(c, "timestamp must be RFC3339")
	}

	reading := &models.ConsumptionReading{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		Timestamp:         ts,
		HourlyConsumption: *req.HourlyConsumption,
		DayOfWeek:         int(ts.Weekday()),
		HourOfDay:         ts.Hour(),
		Temperature:       req.Temperature,
	}

	if err := h.db.InsertReading(reading); err != nil {
		logger.Error("Failed to store consumption reading", zap.Error(err))
		return storeError(c)
	}

	metrics.ReadingsIngested.Inc()

	return c.JSON(fiber.Map{
		"success":   true,
		"readingId": reading.ID,
	})
}

// CalculateBaselines rebuilds the user's 24 hourly baselines from history.
func (h *AnomalyHandler) CalculateBaselines(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
	}

	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "userId is required")
	}

	baselines, err := h.calculator.Recalculate(c.Context(), req.UserID)
	if err != nil {
		logger.Error("Failed to calculate baselines", zap.Error(err))
		return storeError(c)
	}

	if len(baselines) == 0 {
		return c.JSON(fiber.Map{
			"success":        true,
			"status":         history.StatusCollecting,
			"baselinesCount": 0,
			"baselines":      []models.BaselineStats{},
			"message":        "No consumption history yet; submit readings first",
		})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"baselinesCount": len(baselines),
		"baselines":      baselines,
	})
}

// Analyze scores one reading against the hourly baseline.
func (h *AnomalyHandler) Analyze(c *fiber.Ctx) error {
	var req struct {
		UserID           string   `json:"userId"`
		ConsumptionValue *float64 `json:"consumptionValue"`
		Timestamp        string   `json:"timestamp"`
	}

	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.UserID == "" {
		return badRequest(c, "userId is required")
	}
	if req.ConsumptionValue == nil {
		return badRequest(c, "consumptionValue is required")
	}
	if *req.ConsumptionValue < 0 {
		return badRequest(c, "consumptionValue must not be negative")
	}

	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		return badRequest(c, "timestamp must be RFC3339")
	}

	result, err := h.detector.Analyze(c.Context(), req.UserID, *req.ConsumptionValue, ts)
	if err != nil {
		logger.Error("Failed to analyze reading", zap.Error(err))
		return storeError(c)
	}

	return c.JSON(result)
}

// GetHistory returns the anomaly history within a trailing day window.
func (h *AnomalyHandler) GetHistory(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if userID == "" {
		return badRequest(c, "userId is required")
	}

	days := c.QueryInt("days", history.DefaultWindowDays)
	if days < 0 {
		return badRequest(c, "days must not be negative")
	}

	result, err := h.historySvc.History(c.Context(), userID, days)
	if err != nil {
		logger.Error("Failed to load anomaly history", zap.Error(err))
		return storeError(c)
	}

	return c.JSON(result)
}

// Report submits user feedback on an anomaly event and adapts the threshold.
func (h *AnomalyHandler) Report(c *fiber.Ctx) error {
	var req struct {
		UserID    string `json:"userId"`
		AnomalyID string `json:"anomalyId"`
		Appliance string `json:"appliance"`
		Duration  int    `json:"duration"`
		WasNormal *bool  `json:"wasNormal"`
	}

	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.UserID == "" {
		return badRequest(c, "userId is required")
	}
	if req.AnomalyID == "" {
		return badRequest(c, "anomalyId is required")
	}
	if req.WasNormal == nil {
		return badRequest(c, "wasNormal is required")
	}

	outcome, err := h.adapter.Submit(c.Context(), feedback.Submission{
		UserID:          req.UserID,
		AnomalyID:       req.AnomalyID,
		Appliance:       req.Appliance,
		DurationMinutes: req.Duration,
		WasNormal:       *req.WasNormal,
	})
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Anomaly not found",
		})
	}
	if err != nil {
		logger.Error("Failed to process anomaly feedback", zap.Error(err))
		return storeError(c)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Feedback recorded",
		"status":        outcome.Status,
		"newThreshold":  outcome.NewThreshold,
		"feedbackCount": outcome.FeedbackCount,
	})
}

// GetBaselines lists the user's hourly baselines with training status.
func (h *AnomalyHandler) GetBaselines(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if userID == "" {
		return badRequest(c, "userId is required")
	}

	result, err := h.historySvc.Baselines(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to load baselines", zap.Error(err))
		return storeError(c)
	}

	return c.JSON(result)
}

// GetForecast returns a day-ahead hourly consumption forecast.
func (h *AnomalyHandler) GetForecast(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if userID == "" {
		return badRequest(c, "userId is required")
	}

	result, err := h.forecaster.DayAhead(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to build forecast", zap.Error(err))
		return storeError(c)
	}

	return c.JSON(result)
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func storeError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Storage operation failed",
	})
}
