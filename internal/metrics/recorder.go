package metrics

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/inantubek/rmnist/internal/anneal"
)

// Recorder is an anneal.Observer that feeds iteration records into otel instruments.
type Recorder struct {
	iterations  metric.Int64Counter
	evaluations metric.Int64Counter
	evalErrors  metric.Int64Counter
	duration    metric.Float64Histogram
	current     metric.Int64Gauge
	bestCorrect metric.Int64Gauge
	bestLoss    metric.Float64Gauge
}

// NewRecorder creates the instruments on meter, or on the global meter provider when meter is nil.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	iterations, err := meter.Int64Counter(MetricIterations,
		metric.WithDescription("Completed search iterations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create iteration counter: %w", err)
	}

	evaluations, err := meter.Int64Counter(MetricEvaluations,
		metric.WithDescription("Trial configurations sent to the evaluator"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation counter: %w", err)
	}

	evalErrors, err := meter.Int64Counter(MetricEvaluationErrors,
		metric.WithDescription("Failed evaluations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation error counter: %w", err)
	}

	duration, err := meter.Float64Histogram(MetricIterationDuration,
		metric.WithDescription("Wall time of one iteration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	current, err := meter.Int64Gauge(MetricCurrentCorrect,
		metric.WithDescription("Correct predictions of the current configuration"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create current score gauge: %w", err)
	}

	bestCorrect, err := meter.Int64Gauge(MetricBestCorrect,
		metric.WithDescription("Correct predictions of the best configuration"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create best score gauge: %w", err)
	}

	bestLoss, err := meter.Float64Gauge(MetricBestLoss,
		metric.WithDescription("Loss of the best configuration"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create best loss gauge: %w", err)
	}

	return &Recorder{
		iterations:  iterations,
		evaluations: evaluations,
		evalErrors:  evalErrors,
		duration:    duration,
		current:     current,
		bestCorrect: bestCorrect,
		bestLoss:    bestLoss,
	}, nil
}

// Observe implements anneal.Observer
func (r *Recorder) Observe(rec anneal.Record) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("move", rec.Move),
		attribute.String("accepted", strconv.FormatBool(rec.Accepted)),
		attribute.String("cache_hit", strconv.FormatBool(rec.CacheHit)),
	)

	r.iterations.Add(ctx, 1, attrs)
	if !rec.CacheHit {
		r.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("move", rec.Move)))
	}
	r.duration.Record(ctx, rec.Duration.Seconds(), attrs)
	r.current.Record(ctx, int64(rec.CurrentScore.Correct))
	r.bestCorrect.Record(ctx, int64(rec.BestScore.Correct))
	r.bestLoss.Record(ctx, rec.BestScore.Loss)
}

// RecordEvaluationError counts a failed evaluation
func (r *Recorder) RecordEvaluationError(ctx context.Context) {
	r.evalErrors.Add(ctx, 1)
}
