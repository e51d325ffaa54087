package anneal

import (
	"errors"
	"fmt"

	"github.com/inantubek/rmnist/pkg/models"
)

// ErrEvaluation matches every *EvaluationError
var ErrEvaluation = errors.New("evaluation failed")

// EvaluationError reports an evaluator failure for one configuration
type EvaluationError struct {
	Config models.Configuration
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of %s failed: %v", e.Config, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Is reports ErrEvaluation as a match
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}
