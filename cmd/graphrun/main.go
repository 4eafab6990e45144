// graphrun is the reference driver for running a single intent graph
// document to completion (spec.md §6): it loads the graph, builds its
// declared guards, executes it through the engine façade, and prints the
// resulting ExecutionResult as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/agenticaivc/intentgraph/internal/config"
	"github.com/agenticaivc/intentgraph/internal/engine"
	"github.com/agenticaivc/intentgraph/internal/guard"
	"github.com/agenticaivc/intentgraph/internal/observer"
	"github.com/agenticaivc/intentgraph/internal/platformlog"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

const usage = `graphrun - run an intent graph document to completion

USAGE:
    graphrun <graph-file> [options]

OPTIONS:
    -failNode <id>       Force the named node to fail on every attempt (testing)
    -maxParallel <n>      Override the graph's declared concurrency.maxParallel
    -correlationId <id>   Correlation id attached to every guard invocation
    -user <id>            Guard-visible user id (default: anonymous)
    -roles <r1,r2,...>    Comma-separated guard-visible user roles

EXAMPLES:
    graphrun ./examples/approval.yaml
    graphrun ./examples/approval.yaml -failNode review -maxParallel 2
`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" || os.Args[1] == "--help" {
		fmt.Print(usage)
		os.Exit(0)
	}

	path := os.Args[1]

	fs := flag.NewFlagSet("graphrun", flag.ExitOnError)
	failNode := fs.String("failNode", "", "force this node id to fail on every attempt")
	maxParallel := fs.Int("maxParallel", 0, "override the graph's declared max parallel")
	correlationID := fs.String("correlationId", "", "correlation id for guard invocations")
	userID := fs.String("user", "anonymous", "guard-visible user id")
	roles := fs.String("roles", "", "comma-separated guard-visible user roles")
	fs.Parse(os.Args[2:])

	if err := run(path, *failNode, *maxParallel, *correlationID, *userID, *roles); err != nil {
		fmt.Fprintln(os.Stderr, "graphrun:", err)
		os.Exit(1)
	}
}

func run(path, failNode string, maxParallel int, correlationID, userID, roles string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := platformlog.New(cfg.Logging)

	g, err := graph.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	registry := guard.NewRegistry()
	primary, err := guard.NewRedisRateLimitStore(cfg.Redis)
	var fallback guard.RateLimitStore = guard.NewMemoryRateLimitStore(cfg.RateLimit.FallbackMaxSize)
	var primaryStore guard.RateLimitStore = fallback
	if err == nil {
		primaryStore = primary
	} else {
		logger.Warn("redis rate limit store unavailable, using in-memory store only", "error", err)
	}
	if regErr := guard.RegisterDefaults(registry, cfg.JWT, guard.RateLimitStores{Primary: primaryStore, Fallback: fallback}, cfg.RateLimit, logger.Slog()); regErr != nil {
		return fmt.Errorf("register guard factories: %w", regErr)
	}

	guards, err := engine.BuildNodeGuards(g, registry)
	if err != nil {
		return fmt.Errorf("build guards: %w", err)
	}

	handlers := engine.NewMapHandlerRegistry()
	registerReferenceHandlers(handlers)

	obsManager := observer.NewManager(logger)

	e := engine.New(cfg.Engine, handlers, obsManager, logger)

	opts := engine.ExecutionOptions{
		MaxParallelOverride: maxParallel,
		FailNode:            failNode,
		CorrelationID:       correlationID,
		User:                engine.GuardUser{ID: userID, Roles: splitNonEmpty(roles)},
	}

	result, err := e.Execute(context.Background(), g, nil, guards, opts)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))

	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// registerReferenceHandlers wires the small set of built-in handlers the
// reference driver ships with (spec.md §6's "echo" and "noop" handlers);
// a production embedder registers its own domain handlers instead.
func registerReferenceHandlers(registry *engine.MapHandlerRegistry) {
	registry.Register("echo", func(ctx context.Context, node graph.Node, nodeCtx *engine.NodeContext) (any, error) {
		return map[string]any{"node": node.ID, "input": nodeCtx.Input}, nil
	})
	registry.Register("noop", func(ctx context.Context, node graph.Node, nodeCtx *engine.NodeContext) (any, error) {
		return nil, nil
	})
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
