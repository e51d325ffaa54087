// Package evaluator holds the contract for the external scoring function and
// adapters that reach a training job over HTTP or as a subprocess.
//
// Evaluators are expected to be deterministic for a fixed configuration; the
// score cache relies on it. An evaluator that trains with an unseeded random
// state makes cached scores stale approximations, and nothing here detects that.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/inantubek/rmnist/pkg/config"
	"github.com/inantubek/rmnist/pkg/models"
)

// Evaluator trains and validates a model for one configuration.
type Evaluator interface {
	Evaluate(ctx context.Context, cfg models.Configuration) (models.Score, error)
}

// Func adapts a plain function to Evaluator
type Func func(ctx context.Context, cfg models.Configuration) (models.Score, error)

// Evaluate calls f
func (f Func) Evaluate(ctx context.Context, cfg models.Configuration) (models.Score, error) {
	return f(ctx, cfg)
}

// ScoreParser extracts a Score from a JSON document using gjson paths.
type ScoreParser struct {
	CorrectPath string
	LossPath    string // optional
}

// Parse reads the correct count and loss out of doc
func (p ScoreParser) Parse(doc []byte) (models.Score, error) {
	if !gjson.ValidBytes(doc) {
		return models.Score{}, &InvalidResponseError{Reason: "response is not valid JSON"}
	}

	correct := gjson.GetBytes(doc, p.CorrectPath)
	if !correct.Exists() {
		return models.Score{}, &InvalidResponseError{Reason: fmt.Sprintf("missing field %q", p.CorrectPath)}
	}
	if correct.Type != gjson.Number {
		return models.Score{}, &InvalidResponseError{Reason: fmt.Sprintf("field %q is not a number", p.CorrectPath)}
	}

	score := models.Score{Correct: int(correct.Int())}
	if p.LossPath == "" {
		return score, nil
	}

	loss := gjson.GetBytes(doc, p.LossPath)
	if !loss.Exists() {
		return models.Score{}, &InvalidResponseError{Reason: fmt.Sprintf("missing field %q", p.LossPath)}
	}
	if loss.Type != gjson.Number {
		return models.Score{}, &InvalidResponseError{Reason: fmt.Sprintf("field %q is not a number", p.LossPath)}
	}
	score.Loss = loss.Float()
	return score, nil
}

// FromConfig builds the evaluator selected by cfg.Kind
func FromConfig(cfg config.Evaluator) (Evaluator, error) {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid evaluator timeout: %w", err)
	}
	parser := ScoreParser{CorrectPath: cfg.CorrectPath, LossPath: cfg.LossPath}

	var ev Evaluator
	switch cfg.Kind {
	case "http":
		ev = NewHTTPEvaluator(cfg.URL, parser).
			WithHeaders(cfg.Headers).
			WithTimeout(timeout)
	case "command":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("evaluator command is required")
		}
		ev = NewCommandEvaluator(cfg.Command, parser).
			WithWorkDir(cfg.WorkDir).
			WithTimeout(timeout)
	default:
		return nil, &UnknownEvaluatorError{Kind: cfg.Kind}
	}

	if cfg.Trace {
		ev = Traced(ev)
	}
	return ev, nil
}

// UnknownEvaluatorError indicates an unknown evaluator kind
type UnknownEvaluatorError struct {
	Kind string
}

func (e *UnknownEvaluatorError) Error() string {
	return "unknown evaluator kind: " + e.Kind
}

// InvalidResponseError indicates the training job answered with something unusable
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return "invalid evaluator response: " + e.Reason
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
