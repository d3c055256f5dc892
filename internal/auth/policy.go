// Package auth resolves bearer tokens into principals and decides whether a
// principal holds the role a route requires.
package auth

import "sort"

// DefaultAdminRole guards registry mutation when no role is configured.
const DefaultAdminRole = "admin"

// Principal is the identity behind one request.
type Principal struct {
	Subject  string
	Username string
	Email    string
	Profile  map[string]any
	Roles    map[string]struct{}
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Roles[role]
	return ok
}

// RoleList returns the principal's roles sorted by name.
func (p *Principal) RoleList() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Roles))
	for r := range p.Roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// WriteRole is the role required to read or change a bot's configuration.
func WriteRole(bot string) string {
	return bot + "-write"
}

// Policy decides role checks. The zero value has authorization disabled.
type Policy struct {
	Enabled   bool
	AdminRole string
}

// Allowed reports whether p may act with role. Everything is allowed while
// authorization is disabled; otherwise an absent principal has no roles.
func (pol Policy) Allowed(p *Principal, role string) bool {
	if !pol.Enabled {
		return true
	}
	return p.HasRole(role)
}

// Admin is the role gating registry mutation.
func (pol Policy) Admin() string {
	if pol.AdminRole == "" {
		return DefaultAdminRole
	}
	return pol.AdminRole
}
