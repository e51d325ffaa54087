package config

import (
	"math"
	"time"

	"github.com/inantubek/rmnist/pkg/models"
)

// Config represents the tuner daemon configuration
type Config struct {
	LogLevel  string    `yaml:"log_level"`
	LogFormat string    `yaml:"log_format"` // json or text
	Search    Search    `yaml:"search"`
	Moves     Moves     `yaml:"moves"`
	Cache     Cache     `yaml:"cache"`
	Evaluator Evaluator `yaml:"evaluator"`
	Runner    Runner    `yaml:"runner"`
	Server    Server    `yaml:"server"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Search holds the acceptance parameters and the starting point
type Search struct {
	EnergyScale float64              `yaml:"energy_scale"`
	Seed        int64                `yaml:"seed"` // 0 = seed from the clock
	Initial     models.Configuration `yaml:"initial"`
}

// Moves configures the neighbor move set
type Moves struct {
	RateFactor    float64 `yaml:"rate_factor"`
	RateFloor     float64 `yaml:"rate_floor"`
	RateCeiling   float64 `yaml:"rate_ceiling"`
	KernelStep    int     `yaml:"kernel_step"`
	KernelFloor   int     `yaml:"kernel_floor"`
	EnsembleStep  int     `yaml:"ensemble_step"` // 0 disables the ensemble moves
	EnsembleFloor int     `yaml:"ensemble_floor"`
}

// Cache configures cache key quantization
type Cache struct {
	Quantum float64 `yaml:"quantum"`
}

// Evaluator selects and configures the external scoring backend
type Evaluator struct {
	Kind        string            `yaml:"kind"` // http or command
	URL         string            `yaml:"url,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Command     []string          `yaml:"command,omitempty"`
	WorkDir     string            `yaml:"work_dir,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty"` // e.g. "30m"; empty = no timeout
	CorrectPath string            `yaml:"correct_path"`      // gjson path to the correct count
	LossPath    string            `yaml:"loss_path"`         // gjson path to the loss
	Trace       bool              `yaml:"trace"`
}

// Runner configures the driver loop around the annealer
type Runner struct {
	MaxIterations int          `yaml:"max_iterations"` // 0 = unbounded
	Patience      int          `yaml:"patience"`       // iterations without a new best; 0 = off
	TimeBudget    string       `yaml:"time_budget"`    // e.g. "12h"; empty = unbounded
	Retry         *RetryPolicy `yaml:"retry,omitempty"`
}

// RetryPolicy represents retry configuration for failed evaluations
type RetryPolicy struct {
	Enabled    bool   `yaml:"enabled"`
	MaxRetries int    `yaml:"max_retries"`
	Backoff    string `yaml:"backoff"` // exponential, linear, constant
	BaseMs     int    `yaml:"base_ms"`
	MaxMs      int    `yaml:"max_ms"`
}

// Server configures the control channel
type Server struct {
	HTTPAddr       string `yaml:"http_addr"`
	GRPCAddr       string `yaml:"grpc_addr"`
	CallbackURL    string `yaml:"callback_url,omitempty"`
	CallbackSecret string `yaml:"callback_secret,omitempty"`
}

// Telemetry configures metrics and tracing export
type Telemetry struct {
	Metrics      bool   `yaml:"metrics"`
	TraceStdout  bool   `yaml:"trace_stdout"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Default returns a configuration matching the reference search setup:
// energy scale 80, rates stepped by 10^0.25 and kernel counts by 2 with a floor of 2.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Search: Search{
			EnergyScale: 80,
			Initial:     models.DefaultConfiguration(),
		},
		Moves: Moves{
			RateFactor:    math.Pow(10, 0.25),
			RateFloor:     1e-6,
			RateCeiling:   1e2,
			KernelStep:    2,
			KernelFloor:   2,
			EnsembleStep:  0,
			EnsembleFloor: 1,
		},
		Cache: Cache{
			Quantum: 1e-6,
		},
		Evaluator: Evaluator{
			Kind:        "command",
			CorrectPath: "correct",
			LossPath:    "loss",
		},
		Server: Server{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
		Telemetry: Telemetry{
			Metrics: true,
		},
	}
}

// GetTimeout parses the evaluator timeout. An empty value means no timeout.
func (e *Evaluator) GetTimeout() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(e.Timeout)
}

// GetTimeBudget parses the runner time budget. An empty value means unbounded.
func (r *Runner) GetTimeBudget() (time.Duration, error) {
	if r.TimeBudget == "" {
		return 0, nil
	}
	return time.ParseDuration(r.TimeBudget)
}
