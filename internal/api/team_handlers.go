package api

import (
	"net/http"
	"strings"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/provisioning"
	"github.com/xenovalaw/xenova/pkg/auth"
)

type addMemberRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=200"`
	Password string `json:"password" validate:"required,min=10,max=128"`
	Role     string `json:"role" validate:"required,role"`
}

type updateMemberRequest struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Role   *string `json:"role,omitempty" validate:"omitempty,role"`
	Active *bool   `json:"active,omitempty"`
}

func (rt *Router) handleListTeam(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	users, err := rt.store.ListUsers(r.Context(), scope.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(users))
}

func (rt *Router) handleAddTeamMember(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, _ := auth.ParseRole(req.Role)
	if !auth.CanAssignRole(scope.Role, role) {
		writeError(w, r, errRoleForbidden)
		return
	}
	u, err := rt.provisioning.CreateUser(r.Context(), scope.TenantID, provisioning.UserSpec{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, u)
}

// handleUpdateTeamMember renames, re-roles or (de)activates a member. Users
// cannot change their own role or deactivate themselves and only owners may
// modify owners, so a firm always keeps the owner making the change.
func (rt *Router) handleUpdateTeamMember(w http.ResponseWriter, r *http.Request) {
	const op = "update_team_member"
	scope := mustScope(r)
	var req updateMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := foundOr404(rt.store.GetTenantUser(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}

	self := target.ID == scope.UserID
	if target.Role == auth.RoleOwner && scope.Role != auth.RoleOwner {
		writeError(w, r, errRoleForbidden)
		return
	}

	if req.Role != nil {
		role, _ := auth.ParseRole(*req.Role)
		if role != target.Role {
			if self {
				writeError(w, r, apperrors.Invalid(op, "you cannot change your own role"))
				return
			}
			if !auth.CanAssignRole(scope.Role, role) {
				writeError(w, r, errRoleForbidden)
				return
			}
			target.Role = role
		}
	}
	if req.Active != nil && *req.Active != target.Active {
		if self && !*req.Active {
			writeError(w, r, apperrors.Invalid(op, "you cannot deactivate yourself"))
			return
		}
		target.Active = *req.Active
	}
	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != "" {
			target.Name = name
		}
	}

	target.PasswordHash = ""
	if err := rt.store.UpdateUser(r.Context(), scope.TenantID, target); err != nil {
		writeError(w, r, err)
		return
	}
	logging.Audit(r.Context(), "team_member_update", "success").
		Str("tenant_id", scope.TenantID).
		Str("actor_id", scope.UserID).
		Str("user_id", target.ID).
		Str("role", string(target.Role)).
		Bool("active", target.Active).
		Msg("Team member updated")
	writeJSON(w, r, http.StatusOK, target)
}
