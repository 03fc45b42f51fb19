// Package config aggregates the engine's component configurations. The
// engine only defines types and defaults here; loading values from files or
// the environment is the host process's concern.
package config

import (
	"time"

	"queryflow/internal/breaker"
	"queryflow/internal/cache"
	"queryflow/internal/optimizer"
	"queryflow/internal/orchestrator"
)

// Config carries every tunable the engine exposes.
type Config struct {
	Cache        cache.Config
	Breaker      breaker.Config
	Optimizer    optimizer.Config
	Orchestrator orchestrator.Config

	// ResultTTL is how long query results stay cached.
	ResultTTL time.Duration
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		Cache:        cache.DefaultConfig(),
		Breaker:      breaker.DefaultConfig(),
		Optimizer:    optimizer.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		ResultTTL:    5 * time.Minute,
	}
}
