// Package metrics exports search progress as OpenTelemetry metrics and sets
// up the metric and trace providers.
package metrics

const meterName = "github.com/inantubek/rmnist/internal/metrics"

// Metric names
const (
	MetricIterations        = "tuner.iterations"
	MetricEvaluations       = "tuner.evaluations"
	MetricEvaluationErrors  = "tuner.evaluation.errors"
	MetricIterationDuration = "tuner.iteration.duration"
	MetricCurrentCorrect    = "tuner.current.correct"
	MetricBestCorrect       = "tuner.best.correct"
	MetricBestLoss          = "tuner.best.loss"
)
