package auth

import (
	"fmt"
	"strings"

	"github.com/xenovalaw/xenova/pkg/licensing"
)

// Role is a tenant user's role.
type Role string

// Built-in roles, most privileged first.
const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleLawyer    Role = "lawyer"    // staff lawyer
	RoleAssistant Role = "assistant" // paralegal or secretary
)

// roleCategories lists the module categories each role may see. Visibility
// is independent from tier entitlement; both must allow a module.
var roleCategories = map[Role][]licensing.Category{
	RoleOwner:     {licensing.CategoryCore, licensing.CategoryBilling, licensing.CategoryReports, licensing.CategoryAI, licensing.CategoryAdmin},
	RoleAdmin:     {licensing.CategoryCore, licensing.CategoryBilling, licensing.CategoryReports, licensing.CategoryAI, licensing.CategoryAdmin},
	RoleLawyer:    {licensing.CategoryCore, licensing.CategoryReports, licensing.CategoryAI},
	RoleAssistant: {licensing.CategoryCore, licensing.CategoryBilling},
}

// ParseRole normalises a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleCategories[role]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// Roles returns every built-in role.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleLawyer, RoleAssistant}
}

// CanSeeCategory reports whether role may see modules in category.
func CanSeeCategory(role Role, category licensing.Category) bool {
	for _, c := range roleCategories[role] {
		if c == category {
			return true
		}
	}
	return false
}

// CanSeeModule reports whether role may see module.
func CanSeeModule(role Role, module licensing.Module) bool {
	return CanSeeCategory(role, module.Category)
}

// CanAssignRole reports whether actor may create a user with, or move a user
// to, target. Owners assign any role; admins assign non-privileged roles.
func CanAssignRole(actor, target Role) bool {
	switch actor {
	case RoleOwner:
		return true
	case RoleAdmin:
		return target == RoleLawyer || target == RoleAssistant
	default:
		return false
	}
}

// IsManager reports whether role manages the tenant (team, usage, settings).
func IsManager(role Role) bool {
	return role == RoleOwner || role == RoleAdmin
}
