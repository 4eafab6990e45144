package guard

import (
	"log/slog"

	"github.com/agenticaivc/intentgraph/internal/config"
)

// RegisterDefaults registers the core guard-type factories (spec.md §6
// guard factory table) against registry: rbac, rate_limit, and audit. The
// "custom" type is left to callers — it has no concrete core
// implementation (see custom.go).
func RegisterDefaults(registry *Registry, jwtCfg config.JWTConfig, rateLimitStores RateLimitStores, opConf config.RateLimitConfig, logger *slog.Logger) error {
	if err := registry.Register("rbac", func(name string, cfg map[string]any) (Guard, error) {
		return NewRBACGuard(name, decodeRBACConfig(cfg), jwtCfg)
	}); err != nil {
		return err
	}

	if err := registry.Register("rate_limit", func(name string, cfg map[string]any) (Guard, error) {
		return NewRateLimitGuard(name, decodeRateLimitConfig(cfg), rateLimitStores.Primary, rateLimitStores.Fallback, opConf), nil
	}); err != nil {
		return err
	}

	if err := registry.Register("audit", func(name string, cfg map[string]any) (Guard, error) {
		return NewAuditGuard(name, logger), nil
	}); err != nil {
		return err
	}

	return nil
}

// RateLimitStores bundles the primary (typically Redis) and fallback
// (in-memory) stores every rate_limit guard instance shares.
type RateLimitStores struct {
	Primary  RateLimitStore
	Fallback RateLimitStore
}

func decodeRBACConfig(cfg map[string]any) RBACConfig {
	out := RBACConfig{}
	if v, ok := cfg["requiredRoles"].(string); ok {
		out.RequiredRoles = v
	}
	if v, ok := cfg["requiredPermissions"].([]any); ok {
		out.RequiredPermissions = toStringSlice(v)
	}
	if v, ok := cfg["allowSuperuser"].(bool); ok {
		out.AllowSuperuser = v
	}
	if v, ok := cfg["jwtBacked"].(bool); ok {
		out.JWTBacked = v
	}
	if v, ok := cfg["hierarchy"].(map[string]any); ok {
		out.Hierarchy = make(map[string][]string, len(v))
		for role, parents := range v {
			if list, ok := parents.([]any); ok {
				out.Hierarchy[role] = toStringSlice(list)
			}
		}
	}
	return out
}

func decodeRateLimitConfig(cfg map[string]any) RateLimitConfig {
	out := RateLimitConfig{}
	if v, ok := cfg["maxRequests"].(int); ok {
		out.MaxRequests = int64(v)
	} else if v, ok := cfg["maxRequests"].(float64); ok {
		out.MaxRequests = int64(v)
	}
	if v, ok := cfg["windowSeconds"].(int); ok {
		out.WindowSeconds = int64(v)
	} else if v, ok := cfg["windowSeconds"].(float64); ok {
		out.WindowSeconds = int64(v)
	}
	if v, ok := cfg["burstLimit"].(float64); ok {
		out.BurstLimit = int64(v)
	}
	if v, ok := cfg["bypassRoles"].([]any); ok {
		out.BypassRoles = toStringSlice(v)
	}
	return out
}

func toStringSlice(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
