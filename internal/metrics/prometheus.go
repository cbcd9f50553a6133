package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalyzeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wattwise_analyze_duration_seconds",
			Help:    "Anomaly analysis duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"result"},
	)

	AnomaliesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattwise_anomalies_detected_total",
			Help: "Total anomalies detected by confidence tier",
		},
		[]string{"confidence"},
	)

	ZScoreObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wattwise_zscore_abs",
			Help:    "Absolute z-scores of analyzed readings",
			Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 6, 10},
		},
	)

	BaselineRecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wattwise_baseline_recompute_duration_seconds",
			Help:    "Baseline recalculation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	ReadingsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wattwise_readings_ingested_total",
			Help: "Total consumption readings ingested",
		},
	)

	FeedbackSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattwise_feedback_submitted_total",
			Help: "Total anomaly feedback submissions",
		},
		[]string{"was_normal"},
	)

	ThresholdAdjustments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wattwise_threshold_adjustments_total",
			Help: "Total adaptive threshold increases from feedback",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattwise_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattwise_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattwise_notifications_sent_total",
			Help: "Total anomaly notifications by delivery status",
		},
		[]string{"status"},
	)

	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wattwise_stream_subscribers",
			Help: "Currently connected anomaly stream subscribers",
		},
	)
)

func Init() {
	prometheus.MustRegister(AnalyzeDuration)
	prometheus.MustRegister(AnomaliesDetected)
	prometheus.MustRegister(ZScoreObserved)
	prometheus.MustRegister(BaselineRecomputeDuration)
	prometheus.MustRegister(ReadingsIngested)
	prometheus.MustRegister(FeedbackSubmitted)
	prometheus.MustRegister(ThresholdAdjustments)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(StreamSubscribers)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
