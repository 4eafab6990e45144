package engine

import (
	"time"

	"github.com/agenticaivc/intentgraph/internal/config"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// ResolvedConfig is the graph's Config after defaults and bounds have been
// applied and validated (spec.md §4.2).
type ResolvedConfig struct {
	Timeout           time.Duration
	MaxParallel       int
	MaxAttempts       int
	BackoffMultiplier int
	RetryOnErrors     []string
	NoRetryErrors     []string
}

// Warning is a non-fatal configuration notice (e.g. maxParallel > 50).
type Warning struct {
	Message string
}

// ConfigResolver normalizes a graph's declared Config against engine
// defaults, validating bounds eagerly (spec.md §4.2). Any violation is
// fatal and must surface before the first node runs.
type ConfigResolver struct {
	defaults config.EngineConfig
}

// NewConfigResolver constructs a ConfigResolver against the process-wide
// engine defaults.
func NewConfigResolver(defaults config.EngineConfig) *ConfigResolver {
	return &ConfigResolver{defaults: defaults}
}

// Resolve applies documented defaults (timeout 300s, maxParallel 5,
// maxAttempts 3, backoffMultiplier 2) and validates bounds. maxParallelOverride,
// when > 0, overrides the graph's declared concurrency (the CLI's
// --maxParallel flag).
func (r *ConfigResolver) Resolve(cfg graph.Config, maxParallelOverride int) (ResolvedConfig, []Warning, error) {
	resolved := ResolvedConfig{
		Timeout:           cfg.Timeout,
		MaxParallel:       cfg.Concurrency.MaxParallel,
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		RetryOnErrors:     cfg.Retry.RetryOnErrors,
		NoRetryErrors:     cfg.Retry.NoRetryErrors,
	}

	if resolved.Timeout <= 0 {
		resolved.Timeout = r.defaults.DefaultTimeout
	}
	if resolved.MaxParallel <= 0 {
		resolved.MaxParallel = r.defaults.DefaultMaxParallel
	}
	if resolved.MaxAttempts <= 0 {
		resolved.MaxAttempts = r.defaults.DefaultMaxAttempts
	}
	if resolved.BackoffMultiplier <= 0 {
		resolved.BackoffMultiplier = r.defaults.DefaultBackoffMult
	}
	if maxParallelOverride > 0 {
		resolved.MaxParallel = maxParallelOverride
	}

	var errs graph.ValidationErrors
	if resolved.Timeout < time.Second || resolved.Timeout > 3600*time.Second {
		errs = append(errs, graph.ValidationError{Field: "config.timeout", Message: "must be in 1..3600 seconds"})
	}
	if resolved.MaxParallel < 1 || resolved.MaxParallel > 100 {
		errs = append(errs, graph.ValidationError{Field: "config.concurrency.maxParallel", Message: "must be in 1..100"})
	}
	if resolved.MaxAttempts < 1 || resolved.MaxAttempts > 10 {
		errs = append(errs, graph.ValidationError{Field: "config.retry.maxAttempts", Message: "must be in 1..10"})
	}
	if resolved.BackoffMultiplier < 1 || resolved.BackoffMultiplier > 10 {
		errs = append(errs, graph.ValidationError{Field: "config.retry.backoffMultiplier", Message: "must be in 1..10"})
	}
	if len(errs) > 0 {
		return ResolvedConfig{}, nil, &graph.EngineError{Kind: graph.KindConfigInvalid, Reason: errs.Error(), Err: graph.ErrConfigInvalid}
	}

	var warnings []Warning
	if resolved.MaxParallel > r.defaults.MaxParallelWarnAbove {
		warnings = append(warnings, Warning{Message: "maxParallel exceeds recommended ceiling"})
	}
	if resolved.Timeout > r.defaults.TimeoutWarnAbove {
		warnings = append(warnings, Warning{Message: "timeout exceeds recommended ceiling"})
	}

	return resolved, warnings, nil
}
