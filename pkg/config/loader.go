package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", cfg.LogFormat)
	}

	if err := validateSearch(&cfg.Search); err != nil {
		return fmt.Errorf("search validation failed: %w", err)
	}
	if err := validateMoves(&cfg.Moves, cfg.Search.Initial.Kernels1, cfg.Search.Initial.Kernels2); err != nil {
		return fmt.Errorf("moves validation failed: %w", err)
	}
	if cfg.Cache.Quantum <= 0 {
		return fmt.Errorf("cache.quantum must be positive")
	}
	// Rates below the quantum would all share one cache key.
	if cfg.Moves.RateFloor < cfg.Cache.Quantum {
		return fmt.Errorf("moves.rate_floor (%v) must not be below cache.quantum (%v)", cfg.Moves.RateFloor, cfg.Cache.Quantum)
	}
	if err := validateEvaluator(&cfg.Evaluator); err != nil {
		return fmt.Errorf("evaluator validation failed: %w", err)
	}
	if err := validateRunner(&cfg.Runner); err != nil {
		return fmt.Errorf("runner validation failed: %w", err)
	}
	if cfg.Server.CallbackURL != "" {
		if _, err := url.ParseRequestURI(cfg.Server.CallbackURL); err != nil {
			return fmt.Errorf("server.callback_url is not a valid URL: %w", err)
		}
	}

	return nil
}

func validateSearch(s *Search) error {
	if s.EnergyScale <= 0 {
		return fmt.Errorf("energy_scale must be positive, got %v", s.EnergyScale)
	}
	if err := s.Initial.Validate(); err != nil {
		return fmt.Errorf("initial: %w", err)
	}
	return nil
}

func validateMoves(m *Moves, nk1, nk2 int) error {
	if m.RateFactor <= 1 {
		return fmt.Errorf("rate_factor must be greater than 1, got %v", m.RateFactor)
	}
	if m.RateFloor <= 0 || m.RateCeiling <= m.RateFloor {
		return fmt.Errorf("rate bounds must satisfy 0 < rate_floor < rate_ceiling")
	}
	if m.KernelStep <= 0 {
		return fmt.Errorf("kernel_step must be positive")
	}
	if m.KernelFloor < 1 {
		return fmt.Errorf("kernel_floor must be at least 1")
	}
	if nk1 < m.KernelFloor || nk2 < m.KernelFloor {
		return fmt.Errorf("initial kernel counts must be at least kernel_floor (%d)", m.KernelFloor)
	}
	if m.EnsembleStep < 0 {
		return fmt.Errorf("ensemble_step cannot be negative")
	}
	if m.EnsembleFloor < 1 {
		return fmt.Errorf("ensemble_floor must be at least 1")
	}
	return nil
}

func validateEvaluator(e *Evaluator) error {
	switch e.Kind {
	case "http":
		if e.URL == "" {
			return fmt.Errorf("url is required for kind http")
		}
		if _, err := url.ParseRequestURI(e.URL); err != nil {
			return fmt.Errorf("url is invalid: %w", err)
		}
	case "command":
		if len(e.Command) == 0 || strings.TrimSpace(e.Command[0]) == "" {
			return fmt.Errorf("command is required for kind command")
		}
	default:
		return fmt.Errorf("invalid kind: %q (must be http or command)", e.Kind)
	}
	if e.CorrectPath == "" {
		return fmt.Errorf("correct_path is required")
	}
	if _, err := e.GetTimeout(); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

func validateRunner(r *Runner) error {
	if r.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative")
	}
	if r.Patience < 0 {
		return fmt.Errorf("patience cannot be negative")
	}
	if _, err := r.GetTimeBudget(); err != nil {
		return fmt.Errorf("invalid time_budget: %w", err)
	}
	if r.Retry != nil {
		if r.Retry.MaxRetries < 0 {
			return fmt.Errorf("retry.max_retries cannot be negative")
		}
		validBackoff := map[string]bool{"exponential": true, "linear": true, "constant": true}
		if r.Retry.Enabled && !validBackoff[r.Retry.Backoff] {
			return fmt.Errorf("invalid retry.backoff: %s (must be exponential, linear, or constant)", r.Retry.Backoff)
		}
		if r.Retry.BaseMs < 0 || r.Retry.MaxMs < 0 {
			return fmt.Errorf("retry delays cannot be negative")
		}
	}
	return nil
}
