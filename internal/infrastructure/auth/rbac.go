package auth

import "context"

// Permission is one API capability.
type Permission string

const (
	PermEntitiesResolve Permission = "entities:resolve"
	PermEntitiesRead    Permission = "entities:read"
	PermDocumentsRead   Permission = "documents:read"
	PermTextClean       Permission = "text:clean"
)

// Role is a token role recognised by the API.
type Role string

const (
	RoleReader   Role = "legaldoc-reader"
	RoleResolver Role = "legaldoc-resolver"
	RoleAdmin    Role = "legaldoc-admin"
)

var rolePermissions = map[Role][]Permission{
	RoleReader:   {PermEntitiesRead, PermDocumentsRead, PermTextClean},
	RoleResolver: {PermEntitiesResolve, PermEntitiesRead, PermDocumentsRead, PermTextClean},
	RoleAdmin:    {PermEntitiesResolve, PermEntitiesRead, PermDocumentsRead, PermTextClean},
}

// PermissionsOf returns the permissions granted by role.  Unknown roles grant
// nothing.
func PermissionsOf(role Role) []Permission {
	return rolePermissions[role]
}

// Allows reports whether any of the claims' roles grants perm.
func (c *Claims) Allows(perm Permission) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		for _, p := range rolePermissions[Role(r)] {
			if p == perm {
				return true
			}
		}
	}
	return false
}

type claimsKey struct{}

// ContextWithClaims attaches verified claims to ctx.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims attached by ContextWithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

//Personal.AI order the ending
