// Package notify delivers high-confidence anomaly alerts to an external
// notification webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/pkg/circuitbreaker"
	"github.com/wattwise/backend/pkg/logger"
	"github.com/wattwise/backend/pkg/retry"
)

type Notifier struct {
	webhookURL string
	client     *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retryCfg   retry.Config
}

func NewNotifier(webhookURL string, timeout time.Duration) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker("notification-webhook", circuitbreaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			Logger:           logger.Log,
		}),
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			Logger:       logger.Log,
		},
	}
}

// AnomalyDetected posts the event to the configured webhook. Delivery is
// best effort: failures are logged and counted, never surfaced to the
// detection path.
func (n *Notifier) AnomalyDetected(ctx context.Context, event *models.AnomalyEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":       "anomaly_detected",
		"userId":     event.UserID,
		"eventId":    event.ID,
		"hourOfDay":  event.HourOfDay,
		"confidence": event.Confidence,
		"deviation":  event.Deviation,
		"cause":      event.PossibleCause,
		"timestamp":  event.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to marshal notification payload", zap.Error(err))
		return
	}

	err = n.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, n.retryCfg, func() error {
			return n.post(ctx, payload)
		})
	})

	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		logger.Warn("Anomaly notification delivery failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return
	}

	metrics.NotificationsSent.WithLabelValues("delivered").Inc()
	logger.Info("Anomaly notification delivered", zap.String("event_id", event.ID))
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}

	return nil
}
