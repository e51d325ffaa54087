package evaluator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/inantubek/rmnist/pkg/models"
)

const tracerName = "github.com/inantubek/rmnist/internal/evaluator"

type tracedEvaluator struct {
	next   Evaluator
	tracer trace.Tracer
}

// Traced wraps next so every evaluation runs inside an "evaluate" span
// from the global tracer provider.
func Traced(next Evaluator) Evaluator {
	return &tracedEvaluator{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (t *tracedEvaluator) Evaluate(ctx context.Context, cfg models.Configuration) (models.Score, error) {
	ctx, span := t.tracer.Start(ctx, "evaluate",
		trace.WithAttributes(
			attribute.Float64("config.weight_decay", cfg.WeightDecay),
			attribute.Float64("config.lr", cfg.LearningRate),
			attribute.Int("config.nk1", cfg.Kernels1),
			attribute.Int("config.nk2", cfg.Kernels2),
			attribute.Int("config.ensemble_size", cfg.EnsembleSize),
		),
	)
	defer span.End()

	score, err := t.next.Evaluate(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return score, err
	}

	span.SetAttributes(
		attribute.Int("score.correct", score.Correct),
		attribute.Float64("score.loss", score.Loss),
	)
	span.SetStatus(codes.Ok, "")
	return score, nil
}
