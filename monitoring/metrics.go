package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heartrisk"

var (
	once sync.Once

	predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Count of completed predictions by outcome.",
		},
		[]string{"outcome"},
	)

	predictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Count of failed prediction requests by reason.",
		},
		[]string{"reason"},
	)

	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent inside the classifier per prediction.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	modelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when a classifier artifact is loaded.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(predictions, predictionErrors, inferenceDuration, modelLoaded)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObservePrediction(highRisk bool, elapsed time.Duration) {
	outcome := "low_risk"
	if highRisk {
		outcome = "high_risk"
	}
	predictions.WithLabelValues(outcome).Inc()
	inferenceDuration.Observe(elapsed.Seconds())
}

func IncPredictionError(reason string) {
	predictionErrors.WithLabelValues(reason).Inc()
}

func SetModelLoaded(loaded bool) {
	if loaded {
		modelLoaded.Set(1)
		return
	}
	modelLoaded.Set(0)
}
