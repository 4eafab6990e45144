package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticaivc/intentgraph/internal/config"
)

func TestParseRoleExpression_ShouldParseDisjunctionOfConjunctions(t *testing.T) {
	expr := ParseRoleExpression("payroll_admin+finance_manager,superuser")

	assert.True(t, expr.Satisfied(map[string]bool{"payroll_admin": true, "finance_manager": true}))
	assert.True(t, expr.Satisfied(map[string]bool{"superuser": true}))
	assert.False(t, expr.Satisfied(map[string]bool{"payroll_admin": true}))
}

func TestNewRoleHierarchy_ShouldReject_WhenCyclic(t *testing.T) {
	_, err := NewRoleHierarchy(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	assert.Error(t, err)
}

func TestRoleHierarchy_Closure_ShouldIncludeInheritedRoles(t *testing.T) {
	h, err := NewRoleHierarchy(map[string][]string{
		"finance_manager": {"payroll_admin"},
	})
	require.NoError(t, err)

	closure := h.Closure([]string{"finance_manager"})
	assert.True(t, closure["finance_manager"])
	assert.True(t, closure["payroll_admin"])
}

func TestRBACGuard_Execute_ShouldBlock_WhenUserLacksRequiredRole(t *testing.T) {
	g, err := NewRBACGuard("payroll-rbac", RBACConfig{
		RequiredRoles: "payroll_admin,finance_manager",
	}, config.JWTConfig{})
	require.NoError(t, err)

	result, err := g.Execute(context.Background(), Input{User: User{Roles: []string{"sales_rep"}}})
	require.NoError(t, err)
	assert.Equal(t, StatusBlock, result.Status)
}

func TestRBACGuard_Execute_ShouldSucceed_WhenUserHasRequiredRole(t *testing.T) {
	g, err := NewRBACGuard("payroll-rbac", RBACConfig{
		RequiredRoles: "payroll_admin,finance_manager",
	}, config.JWTConfig{})
	require.NoError(t, err)

	result, err := g.Execute(context.Background(), Input{User: User{Roles: []string{"finance_manager"}}})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestRBACGuard_Execute_ShouldBypass_WhenSuperuserAllowed(t *testing.T) {
	g, err := NewRBACGuard("admin-rbac", RBACConfig{
		RequiredRoles:  "payroll_admin",
		AllowSuperuser: true,
	}, config.JWTConfig{})
	require.NoError(t, err)

	result, err := g.Execute(context.Background(), Input{User: User{Roles: []string{"superuser"}}})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestRBACGuard_Execute_ShouldBlock_WhenPermissionMissing(t *testing.T) {
	g, err := NewRBACGuard("perm-rbac", RBACConfig{
		RequiredRoles:       "payroll_admin",
		RequiredPermissions: []string{"workflow:execute"},
	}, config.JWTConfig{})
	require.NoError(t, err)

	result, err := g.Execute(context.Background(), Input{User: User{Roles: []string{"payroll_admin"}, Permissions: []string{"workflow:read"}}})
	require.NoError(t, err)
	assert.Equal(t, StatusBlock, result.Status)
}
