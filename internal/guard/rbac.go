package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenticaivc/intentgraph/internal/auth"
	"github.com/agenticaivc/intentgraph/internal/config"
)

// RoleHierarchy is a user-supplied map from role to directly inherited
// roles, cycle-checked at construction (spec.md §9: "a cycle is a config
// error, never a runtime one").
type RoleHierarchy struct {
	inherits map[string][]string
}

// NewRoleHierarchy builds a RoleHierarchy, rejecting a cyclic map via DFS
// with a recursion stack.
func NewRoleHierarchy(inherits map[string][]string) (*RoleHierarchy, error) {
	h := &RoleHierarchy{inherits: inherits}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(inherits))

	var visit func(role string) error
	visit = func(role string) error {
		color[role] = gray
		for _, parent := range h.inherits[role] {
			switch color[parent] {
			case gray:
				return fmt.Errorf("role hierarchy cycle involving %q", parent)
			case white:
				if err := visit(parent); err != nil {
					return err
				}
			}
		}
		color[role] = black
		return nil
	}

	for role := range inherits {
		if color[role] == white {
			if err := visit(role); err != nil {
				return nil, err
			}
		}
	}

	return h, nil
}

// Closure computes the transitive closure of roles under inheritance.
func (h *RoleHierarchy) Closure(roles []string) map[string]bool {
	effective := make(map[string]bool, len(roles)*2)
	var walk func(role string)
	walk = func(role string) {
		if effective[role] {
			return
		}
		effective[role] = true
		for _, parent := range h.inherits[role] {
			walk(parent)
		}
	}
	for _, r := range roles {
		walk(r)
	}
	return effective
}

// RoleExpression is a disjunction-of-conjunctions over role names:
// "a+b,c" means (a ∧ b) ∨ c (spec.md §4.8).
type RoleExpression struct {
	disjuncts [][]string
}

// ParseRoleExpression parses the "+"-conjunction, ","-disjunction syntax.
func ParseRoleExpression(expr string) RoleExpression {
	if strings.TrimSpace(expr) == "" {
		return RoleExpression{}
	}
	var disjuncts [][]string
	for _, clause := range strings.Split(expr, ",") {
		var conjuncts []string
		for _, role := range strings.Split(clause, "+") {
			role = strings.TrimSpace(role)
			if role != "" {
				conjuncts = append(conjuncts, role)
			}
		}
		if len(conjuncts) > 0 {
			disjuncts = append(disjuncts, conjuncts)
		}
	}
	return RoleExpression{disjuncts: disjuncts}
}

// Satisfied reports whether effective (the closure of the user's roles)
// satisfies any conjunct of the expression. An empty expression is
// vacuously satisfied.
func (e RoleExpression) Satisfied(effective map[string]bool) bool {
	if len(e.disjuncts) == 0 {
		return true
	}
	for _, conjunct := range e.disjuncts {
		allHeld := true
		for _, role := range conjunct {
			if !effective[role] {
				allHeld = false
				break
			}
		}
		if allHeld {
			return true
		}
	}
	return false
}

// RBACConfig is the rbac guard declaration's type-specific config blob.
type RBACConfig struct {
	RequiredRoles       string
	RequiredPermissions []string
	AllowSuperuser      bool
	Hierarchy           map[string][]string
	JWTBacked           bool
}

// RBACGuard implements the ABI's RBAC decision: effective role set by
// transitive closure, success if any conjunct of the required role
// expression is fully satisfied and all required permissions are held;
// otherwise block (spec.md §4.8).
type RBACGuard struct {
	name       string
	cfg        RBACConfig
	expression RoleExpression
	hierarchy  *RoleHierarchy
	verifier   *auth.Verifier
}

// NewRBACGuard constructs an RBACGuard. When cfg.JWTBacked is set, it builds
// an auth.Verifier from jwtCfg; Execute then takes the user's roles from the
// verified bearer token instead of GuardInput.User.Roles (permissions still
// come from GuardInput.User).
func NewRBACGuard(name string, cfg RBACConfig, jwtCfg config.JWTConfig) (*RBACGuard, error) {
	hierarchy, err := NewRoleHierarchy(cfg.Hierarchy)
	if err != nil {
		return nil, err
	}
	g := &RBACGuard{
		name:       name,
		cfg:        cfg,
		expression: ParseRoleExpression(cfg.RequiredRoles),
		hierarchy:  hierarchy,
	}
	if cfg.JWTBacked {
		g.verifier = auth.NewVerifier(jwtCfg)
	}
	return g, nil
}

func (g *RBACGuard) Name() string { return g.name }

func (g *RBACGuard) Init(ctx context.Context) error { return nil }

func (g *RBACGuard) Validate(ctx context.Context, in Input) (Result, error) {
	return Result{Status: StatusSuccess}, nil
}

func (g *RBACGuard) Execute(ctx context.Context, in Input) (Result, error) {
	roles := in.User.Roles
	permissions := in.User.Permissions

	if g.verifier != nil {
		token, ok := auth.ExtractBearer(in.Parameters)
		if !ok {
			return Result{Status: StatusBlock, Message: "missing bearer token"}, nil
		}
		claims, err := g.verifier.Verify(token)
		if err != nil {
			return Result{Status: StatusBlock, Message: "jwt verification failed: " + err.Error()}, nil
		}
		roles = claims.Roles
	}

	effective := g.hierarchy.Closure(roles)

	if g.cfg.AllowSuperuser && effective["superuser"] {
		return Result{Status: StatusSuccess}, nil
	}

	if !g.expression.Satisfied(effective) {
		return Result{Status: StatusBlock, Message: "insufficient role"}, nil
	}

	if !hasAllPermissions(permissions, g.cfg.RequiredPermissions) {
		return Result{Status: StatusBlock, Message: "insufficient permissions"}, nil
	}

	return Result{Status: StatusSuccess}, nil
}

func (g *RBACGuard) Cleanup(ctx context.Context) error { return nil }

func hasAllPermissions(held, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]bool, len(held))
	for _, p := range held {
		set[p] = true
	}
	for _, p := range required {
		if !set[p] {
			return false
		}
	}
	return true
}
