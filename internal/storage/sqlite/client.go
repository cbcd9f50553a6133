package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS consumption_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		hourly_consumption REAL NOT NULL CHECK (hourly_consumption >= 0),
		day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
		hour_of_day INTEGER NOT NULL CHECK (hour_of_day BETWEEN 0 AND 23),
		temperature REAL
	);
	CREATE INDEX IF NOT EXISTS idx_consumption_user ON consumption_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_consumption_user_hour ON consumption_history(user_id, hour_of_day);
	CREATE INDEX IF NOT EXISTS idx_consumption_timestamp ON consumption_history(timestamp);

	CREATE TABLE IF NOT EXISTS baseline_statistics (
		user_id TEXT NOT NULL,
		hour INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
		mean REAL NOT NULL DEFAULT 0,
		std_dev REAL NOT NULL DEFAULT 0 CHECK (std_dev >= 0),
		min REAL NOT NULL DEFAULT 0,
		max REAL NOT NULL DEFAULT 0,
		data_points INTEGER NOT NULL DEFAULT 0 CHECK (data_points >= 0),
		threshold_multiplier REAL NOT NULL DEFAULT 2.0,
		last_updated INTEGER NOT NULL,
		PRIMARY KEY (user_id, hour)
	);

	CREATE TABLE IF NOT EXISTS anomaly_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		hour_of_day INTEGER NOT NULL CHECK (hour_of_day BETWEEN 0 AND 23),
		consumption REAL NOT NULL,
		expected_mean REAL NOT NULL,
		expected_std_dev REAL NOT NULL,
		z_score REAL NOT NULL,
		confidence TEXT NOT NULL,
		deviation TEXT NOT NULL,
		deviation_percent REAL NOT NULL,
		possible_cause TEXT,
		recommendation TEXT,
		estimated_extra_cost REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'detected',
		fb_appliance TEXT,
		fb_duration INTEGER,
		fb_was_normal INTEGER,
		fb_submitted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_events_user ON anomaly_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_events_user_time ON anomaly_events(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_status ON anomaly_events(status);

	CREATE TABLE IF NOT EXISTS user_feedback (
		user_id TEXT NOT NULL,
		hour INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
		pattern_type TEXT NOT NULL,
		occurrences INTEGER NOT NULL DEFAULT 1 CHECK (occurrences >= 1),
		last_occurrence INTEGER NOT NULL,
		adjusted_threshold REAL NOT NULL,
		PRIMARY KEY (user_id, hour, pattern_type)
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertReading(r *models.ConsumptionReading) error {
	query := `
		INSERT INTO consumption_history (id, user_id, timestamp, hourly_consumption, day_of_week, hour_of_day, temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var temp sql.NullFloat64
	if r.Temperature != nil {
		temp = sql.NullFloat64{Float64: *r.Temperature, Valid: true}
	}

	_, err := c.db.Exec(
		query,
		r.ID,
		r.UserID,
		r.Timestamp.Unix(),
		r.HourlyConsumption,
		r.DayOfWeek,
		r.HourOfDay,
		temp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	logger.Debug("Consumption reading stored",
		zap.String("user_id", r.UserID),
		zap.Int("hour", r.HourOfDay),
		zap.Float64("consumption", r.HourlyConsumption),
	)
	return nil
}

func (c *Client) GetReadings(userID string) ([]models.ConsumptionReading, error) {
	query := `
		SELECT id, user_id, timestamp, hourly_consumption, day_of_week, hour_of_day, temperature
		FROM consumption_history
		WHERE user_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := c.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

func (c *Client) GetReadingsSince(userID string, since time.Time) ([]models.ConsumptionReading, error) {
	query := `
		SELECT id, user_id, timestamp, hourly_consumption, day_of_week, hour_of_day, temperature
		FROM consumption_history
		WHERE user_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := c.db.Query(query, userID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]models.ConsumptionReading, error) {
	var readings []models.ConsumptionReading
	for rows.Next() {
		var r models.ConsumptionReading
		var ts int64
		var temp sql.NullFloat64

		err := rows.Scan(&r.ID, &r.UserID, &ts, &r.HourlyConsumption, &r.DayOfWeek, &r.HourOfDay, &temp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Timestamp = time.Unix(ts, 0)
		if temp.Valid {
			t := temp.Float64
			r.Temperature = &t
		}
		readings = append(readings, r)
	}

	return readings, nil
}

// UpsertBaseline writes the statistical fields for one (user, hour) row.
// threshold_multiplier is deliberately left out of the update set so that
// feedback-driven adjustments survive baseline recomputes.
func (c *Client) UpsertBaseline(b *models.BaselineStats) error {
	query := `
		INSERT INTO baseline_statistics (user_id, hour, mean, std_dev, min, max, data_points, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, hour) DO UPDATE SET
			mean = excluded.mean,
			std_dev = excluded.std_dev,
			min = excluded.min,
			max = excluded.max,
			data_points = excluded.data_points,
			last_updated = excluded.last_updated
	`

	_, err := c.db.Exec(
		query,
		b.UserID,
		b.Hour,
		b.Mean,
		b.StdDev,
		b.Min,
		b.Max,
		b.DataPoints,
		b.LastUpdated.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}

	return nil
}

func (c *Client) GetBaseline(userID string, hour int) (*models.BaselineStats, error) {
	query := `
		SELECT user_id, hour, mean, std_dev, min, max, data_points, threshold_multiplier, last_updated
		FROM baseline_statistics
		WHERE user_id = ? AND hour = ?
	`

	var b models.BaselineStats
	var lastUpdated int64

	err := c.db.QueryRow(query, userID, hour).Scan(
		&b.UserID,
		&b.Hour,
		&b.Mean,
		&b.StdDev,
		&b.Min,
		&b.Max,
		&b.DataPoints,
		&b.ThresholdMultiplier,
		&lastUpdated,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	b.LastUpdated = time.Unix(lastUpdated, 0)
	return &b, nil
}

func (c *Client) GetBaselines(userID string) ([]models.BaselineStats, error) {
	query := `
		SELECT user_id, hour, mean, std_dev, min, max, data_points, threshold_multiplier, last_updated
		FROM baseline_statistics
		WHERE user_id = ?
		ORDER BY hour ASC
	`

	rows, err := c.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get baselines: %w", err)
	}
	defer rows.Close()

	var baselines []models.BaselineStats
	for rows.Next() {
		var b models.BaselineStats
		var lastUpdated int64

		err := rows.Scan(&b.UserID, &b.Hour, &b.Mean, &b.StdDev, &b.Min, &b.Max, &b.DataPoints, &b.ThresholdMultiplier, &lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		b.LastUpdated = time.Unix(lastUpdated, 0)
		baselines = append(baselines, b)
	}

	return baselines, nil
}

// RaiseThreshold bumps the threshold multiplier for one (user, hour) by step,
// clamped to max, in a single UPDATE so concurrent feedback submissions
// cannot lose increments. Returns the value after the bump.
func (c *Client) RaiseThreshold(userID string, hour int, step, max float64) (float64, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE baseline_statistics SET threshold_multiplier = MIN(?, threshold_multiplier + ?) WHERE user_id = ? AND hour = ?`,
		max, step, userID, hour,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to raise threshold: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return 0, models.ErrNotFound
	}

	var threshold float64
	err = tx.QueryRow(
		`SELECT threshold_multiplier FROM baseline_statistics WHERE user_id = ? AND hour = ?`,
		userID, hour,
	).Scan(&threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to read threshold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit threshold update: %w", err)
	}

	logger.Debug("Threshold raised",
		zap.String("user_id", userID),
		zap.Int("hour", hour),
		zap.Float64("threshold", threshold),
	)
	return threshold, nil
}

func (c *Client) GetThreshold(userID string, hour int) (float64, error) {
	var threshold float64
	err := c.db.QueryRow(
		`SELECT threshold_multiplier FROM baseline_statistics WHERE user_id = ? AND hour = ?`,
		userID, hour,
	).Scan(&threshold)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get threshold: %w", err)
	}

	return threshold, nil
}

func (c *Client) InsertAnomalyEvent(e *models.AnomalyEvent) error {
	query := `
		INSERT INTO anomaly_events (id, user_id, timestamp, hour_of_day, consumption, expected_mean,
			expected_std_dev, z_score, confidence, deviation, deviation_percent, possible_cause,
			recommendation, estimated_extra_cost, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		e.ID,
		e.UserID,
		e.Timestamp.Unix(),
		e.HourOfDay,
		e.Consumption,
		e.ExpectedMean,
		e.ExpectedStdDev,
		e.ZScore,
		e.Confidence,
		e.Deviation,
		e.DeviationPercent,
		e.PossibleCause,
		e.Recommendation,
		e.EstimatedExtraCost,
		e.Status,
	)

	if err != nil {
		return fmt.Errorf("failed to insert anomaly event: %w", err)
	}

	logger.Info("Anomaly event recorded",
		zap.String("event_id", e.ID),
		zap.String("user_id", e.UserID),
		zap.Int("hour", e.HourOfDay),
		zap.String("confidence", e.Confidence),
		zap.Float64("z_score", e.ZScore),
	)

	return nil
}

func (c *Client) GetAnomalyEvent(id string) (*models.AnomalyEvent, error) {
	query := `
		SELECT id, user_id, timestamp, hour_of_day, consumption, expected_mean, expected_std_dev,
			z_score, confidence, deviation, deviation_percent, possible_cause, recommendation,
			estimated_extra_cost, status, fb_appliance, fb_duration, fb_was_normal, fb_submitted_at
		FROM anomaly_events
		WHERE id = ?
	`

	e, err := scanEvent(c.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}

	return e, nil
}

func (c *Client) GetAnomalyHistory(userID string, since time.Time) ([]models.AnomalyEvent, error) {
	query := `
		SELECT id, user_id, timestamp, hour_of_day, consumption, expected_mean, expected_std_dev,
			z_score, confidence, deviation, deviation_percent, possible_cause, recommendation,
			estimated_extra_cost, status, fb_appliance, fb_duration, fb_was_normal, fb_submitted_at
		FROM anomaly_events
		WHERE user_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := c.db.Query(query, userID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get anomaly history: %w", err)
	}
	defer rows.Close()

	var events []models.AnomalyEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.AnomalyEvent, error) {
	var e models.AnomalyEvent
	var ts int64
	var cause, recommendation sql.NullString
	var fbAppliance sql.NullString
	var fbDuration, fbWasNormal, fbSubmittedAt sql.NullInt64

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&ts,
		&e.HourOfDay,
		&e.Consumption,
		&e.ExpectedMean,
		&e.ExpectedStdDev,
		&e.ZScore,
		&e.Confidence,
		&e.Deviation,
		&e.DeviationPercent,
		&cause,
		&recommendation,
		&e.EstimatedExtraCost,
		&e.Status,
		&fbAppliance,
		&fbDuration,
		&fbWasNormal,
		&fbSubmittedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan anomaly event: %w", err)
	}

	e.Timestamp = time.Unix(ts, 0)
	e.PossibleCause = cause.String
	e.Recommendation = recommendation.String

	if fbSubmittedAt.Valid {
		e.Feedback = &models.EventFeedback{
			Appliance:       fbAppliance.String,
			DurationMinutes: int(fbDuration.Int64),
			WasNormal:       fbWasNormal.Int64 == 1,
			SubmittedAt:     time.Unix(fbSubmittedAt.Int64, 0),
		}
	}

	return &e, nil
}

func (c *Client) SetAnomalyFeedback(id, status string, fb *models.EventFeedback) error {
	wasNormal := 0
	if fb.WasNormal {
		wasNormal = 1
	}

	res, err := c.db.Exec(
		`UPDATE anomaly_events SET status = ?, fb_appliance = ?, fb_duration = ?, fb_was_normal = ?, fb_submitted_at = ? WHERE id = ?`,
		status,
		fb.Appliance,
		fb.DurationMinutes,
		wasNormal,
		fb.SubmittedAt.Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set anomaly feedback: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	logger.Info("Anomaly feedback stored",
		zap.String("event_id", id),
		zap.String("status", status),
		zap.Bool("was_normal", fb.WasNormal),
	)

	return nil
}

// UpsertFeedbackPattern increments the occurrence counter for one
// (user, hour, pattern) and mirrors the current threshold. Returns the
// cumulative occurrence count.
func (c *Client) UpsertFeedbackPattern(userID string, hour int, pattern string, threshold float64, at time.Time) (int, error) {
	query := `
		INSERT INTO user_feedback (user_id, hour, pattern_type, occurrences, last_occurrence, adjusted_threshold)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, hour, pattern_type) DO UPDATE SET
			occurrences = occurrences + 1,
			last_occurrence = excluded.last_occurrence,
			adjusted_threshold = excluded.adjusted_threshold
	`

	_, err := c.db.Exec(query, userID, hour, pattern, at.Unix(), threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert feedback pattern: %w", err)
	}

	var occurrences int
	err = c.db.QueryRow(
		`SELECT occurrences FROM user_feedback WHERE user_id = ? AND hour = ? AND pattern_type = ?`,
		userID, hour, pattern,
	).Scan(&occurrences)
	if err != nil {
		return 0, fmt.Errorf("failed to read feedback occurrences: %w", err)
	}

	return occurrences, nil
}

func (c *Client) GetFeedbackPattern(userID string, hour int, pattern string) (*models.FeedbackPattern, error) {
	query := `
		SELECT user_id, hour, pattern_type, occurrences, last_occurrence, adjusted_threshold
		FROM user_feedback
		WHERE user_id = ? AND hour = ? AND pattern_type = ?
	`

	var p models.FeedbackPattern
	var last int64

	err := c.db.QueryRow(query, userID, hour, pattern).Scan(
		&p.UserID,
		&p.Hour,
		&p.PatternType,
		&p.Occurrences,
		&last,
		&p.AdjustedThreshold,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback pattern: %w", err)
	}

	p.LastOccurrence = time.Unix(last, 0)
	return &p, nil
}
