package auth

import (
	"context"
	"net/http"
)

// DesignationSuperadmin is the designation value that grants an
// unconditional bypass of every capability check.
const DesignationSuperadmin = "superadmin"

// Role tags a resolved user. The tag is decided once, when the external
// auth subsystem resolves the request, so permission checks never compare
// designation strings themselves.
type Role int

const (
	// RoleStandard users are subject to the group permission matrix.
	RoleStandard Role = iota
	// RoleSuperadmin users bypass the matrix entirely.
	RoleSuperadmin
)

func (r Role) String() string {
	if r == RoleSuperadmin {
		return "superadmin"
	}
	return "standard"
}

// User is the minimal identity the permission core needs: who the user is,
// which group they belong to, and whether they carry the superadmin bypass.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	GroupID     int64  `json:"idGroup"`
	Designation string `json:"designation,omitempty"`
	Role        Role   `json:"-"`
}

// IsSuperadmin reports whether the user bypasses capability checks.
func (u *User) IsSuperadmin() bool {
	return u != nil && u.Role == RoleSuperadmin
}

// NewUser builds a User and fixes its Role tag from the designation.
func NewUser(id int64, username string, groupID int64, designation string) *User {
	role := RoleStandard
	if designation == DesignationSuperadmin {
		role = RoleSuperadmin
	}
	return &User{
		ID:          id,
		Username:    username,
		GroupID:     groupID,
		Designation: designation,
		Role:        role,
	}
}

// Context carries the resolved identity for one request.
type Context struct {
	User *User
}

// Resolver produces the authenticated user for a request. Implementations
// live outside this repository (session cookies, JWT validation, SSO); the
// core trusts whatever they return and performs no credential checks.
type Resolver interface {
	// Resolve returns the authenticated user, or an error if the request
	// carries no valid identity.
	Resolve(ctx context.Context, r *http.Request) (*User, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, r *http.Request) (*User, error)

func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (*User, error) {
	return f(ctx, r)
}
