package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/inantubek/rmnist/pkg/logger"
	"github.com/inantubek/rmnist/pkg/models"
)

// CommandEvaluator runs a training command once per configuration.
//
// The configuration is appended to the command line as
// --weight_decay, --lr, --nk1, --nk2 and --ensemble_size flags. The command may
// print progress freely; the last line of stdout that is a JSON object is
// taken as the result.
type CommandEvaluator struct {
	argv    []string
	parser  ScoreParser
	workDir string
	timeout time.Duration
}

// NewCommandEvaluator creates an evaluator running argv
func NewCommandEvaluator(argv []string, parser ScoreParser) *CommandEvaluator {
	return &CommandEvaluator{
		argv:   append([]string(nil), argv...),
		parser: parser,
	}
}

// WithWorkDir sets the working directory of the command
func (e *CommandEvaluator) WithWorkDir(dir string) *CommandEvaluator {
	e.workDir = dir
	return e
}

// WithTimeout bounds each evaluation. Zero means no bound.
func (e *CommandEvaluator) WithTimeout(timeout time.Duration) *CommandEvaluator {
	e.timeout = timeout
	return e
}

// Args returns the full argument list used for cfg
func (e *CommandEvaluator) Args(cfg models.Configuration) []string {
	args := append([]string(nil), e.argv[1:]...)
	return append(args,
		"--weight_decay", strconv.FormatFloat(cfg.WeightDecay, 'g', -1, 64),
		"--lr", strconv.FormatFloat(cfg.LearningRate, 'g', -1, 64),
		"--nk1", strconv.Itoa(cfg.Kernels1),
		"--nk2", strconv.Itoa(cfg.Kernels2),
		"--ensemble_size", strconv.Itoa(cfg.EnsembleSize),
	)
}

// Evaluate runs the command and parses its final JSON line
func (e *CommandEvaluator) Evaluate(ctx context.Context, cfg models.Configuration) (models.Score, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.argv[0], e.Args(cfg)...)
	cmd.Dir = e.workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running evaluation command", "command", e.argv[0], "config", cfg.String())
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = "..." + msg[len(msg)-200:]
		}
		return models.Score{}, fmt.Errorf("evaluation command failed: %w: %s", err, msg)
	}

	line, ok := lastJSONLine(stdout.Bytes())
	if !ok {
		return models.Score{}, &InvalidResponseError{Reason: "command printed no JSON object"}
	}
	return e.parser.Parse(line)
}

// lastJSONLine walks out from the end so arbitrarily long log lines
// before the result never hide it.
func lastJSONLine(out []byte) ([]byte, bool) {
	for len(out) > 0 {
		start := bytes.LastIndexByte(out, '\n') + 1
		line := bytes.TrimSpace(out[start:])
		if len(line) > 0 && line[0] == '{' && gjson.ValidBytes(line) {
			return line, true
		}
		if start == 0 {
			break
		}
		out = out[:start-1]
	}
	return nil, false
}
