// Package auth models the authenticated principal and the role checks the ordering
// core consumes. Token validation happens upstream; only its outcome reaches here.
package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/dukex/labflow/pkg/models"
)

// Role is a coarse permission granted to a principal.
type Role string

const (
	RoleClient Role = "client"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// Principal is the caller of an operation.
type Principal struct {
	models.Identity

	Roles []Role `json:"roles"`
}

// HasRole reports whether the principal was granted role directly.
func (p Principal) HasRole(role Role) bool {
	return slices.Contains(p.Roles, role)
}

// ParseRoles splits a comma separated role list, ignoring blanks and case.
func ParseRoles(value string) []Role {
	var roles []Role

	for _, part := range strings.Split(value, ",") {
		role := Role(strings.ToLower(strings.TrimSpace(part)))
		if role == "" || slices.Contains(roles, role) {
			continue
		}

		roles = append(roles, role)
	}

	return roles
}

// Authorizer answers whether a principal holds a required role.
type Authorizer interface {
	IsPermitted(principal Principal, required Role) bool
}

// RoleAuthorizer grants a role when the principal holds it or a role implying it.
// Admin implies staff, and staff implies client.
type RoleAuthorizer struct{}

// NewRoleAuthorizer creates the default authorizer.
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

var implied = map[Role][]Role{
	RoleClient: {RoleClient, RoleStaff, RoleAdmin},
	RoleStaff:  {RoleStaff, RoleAdmin},
	RoleAdmin:  {RoleAdmin},
}

func (a *RoleAuthorizer) IsPermitted(principal Principal, required Role) bool {
	if principal.Identity.Empty() {
		return false
	}

	granting, ok := implied[required]
	if !ok {
		return principal.HasRole(required)
	}

	for _, role := range granting {
		if principal.HasRole(role) {
			return true
		}
	}

	return false
}

type principalKey struct{}

// WithPrincipal attaches the principal to ctx.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// FromContext returns the principal attached to ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(Principal)

	return principal, ok
}
