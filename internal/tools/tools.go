// Package tools hosts the tool orchestrators. Each orchestrator is a
// state-free transformation from a validated request to a normalized result:
// build variables, objective, and reformulated constraints, hand the model to
// an injected solver adapter, then enrich the raw solution with domain
// analytics.
package tools

import (
	"log/slog"

	"github.com/optikit/optikit/internal/solver"
)

// Toolbox bundles the solver registry and logger the orchestrators run with.
// A Toolbox holds no per-call state; concurrent calls on one instance are
// independent.
type Toolbox struct {
	reg *solver.Registry
	log *slog.Logger
}

// New builds a Toolbox around the given adapter registry.
func New(reg *solver.Registry, log *slog.Logger) *Toolbox {
	if log == nil {
		log = slog.Default()
	}
	return &Toolbox{reg: reg, log: log}
}
