package guard

import (
	"context"
	"log/slog"
)

// AuditGuard always returns success but emits a structured log line
// recording guard name, actor, node/edge id, and correlation id (guard
// parameters are not logged) — the supplemented "audit"
// guard type of spec.md's guard declaration enum (§3).
type AuditGuard struct {
	name   string
	logger *slog.Logger
}

// NewAuditGuard constructs an AuditGuard logging through logger.
func NewAuditGuard(name string, logger *slog.Logger) *AuditGuard {
	return &AuditGuard{name: name, logger: logger}
}

func (g *AuditGuard) Name() string { return g.name }

func (g *AuditGuard) Init(ctx context.Context) error { return nil }

func (g *AuditGuard) Validate(ctx context.Context, in Input) (Result, error) {
	return Result{Status: StatusSuccess}, nil
}

func (g *AuditGuard) Execute(ctx context.Context, in Input) (Result, error) {
	g.logger.InfoContext(ctx, "audit",
		"guard", g.name,
		"actor", in.User.ID,
		"node", in.NodeID,
		"edge", in.EdgeID,
		"correlationId", in.CorrelationID,
	)
	return Result{Status: StatusSuccess}, nil
}

func (g *AuditGuard) Cleanup(ctx context.Context) error { return nil }
