// Package authz provides actor identity and role-based access primitives for
// the herbtrace server. Identity comes from trusted proxy headers or JWT
// bearer tokens; route guards restrict endpoints to a set of roles.
package authz

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Role is a participant's function in the supply chain.
type Role string

const (
	RoleFarmer        Role = "FARMER"
	RoleProcessor     Role = "PROCESSOR"
	RoleLabTechnician Role = "LAB_TECHNICIAN"
	RoleRegulator     Role = "REGULATOR"
	RoleConsumer      Role = "CONSUMER"
	RoleAdmin         Role = "ADMIN"
)

var allRoles = []Role{
	RoleFarmer, RoleProcessor, RoleLabTechnician, RoleRegulator, RoleConsumer, RoleAdmin,
}

// Roles returns every known role.
func Roles() []Role {
	return append([]Role(nil), allRoles...)
}

// ParseRole parses a role name case-insensitively. A "ROLE_" prefix is
// accepted and stripped.
func ParseRole(s string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "ROLE_")
	for _, r := range allRoles {
		if string(r) == v {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// RoleSet is an immutable set of roles used by guards.
type RoleSet struct {
	set mapset.Set[Role]
}

// NewRoleSet builds a RoleSet from roles.
func NewRoleSet(roles ...Role) RoleSet {
	return RoleSet{set: mapset.NewThreadUnsafeSet(roles...)}
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r Role) bool {
	return s.set != nil && s.set.Contains(r)
}

// String lists the roles in declaration order.
func (s RoleSet) String() string {
	names := make([]string, 0, len(allRoles))
	for _, r := range allRoles {
		if s.Contains(r) {
			names = append(names, string(r))
		}
	}
	return strings.Join(names, ",")
}

// Common guard sets.
var (
	// StaffRoles is every role except CONSUMER.
	StaffRoles = NewRoleSet(RoleFarmer, RoleProcessor, RoleLabTechnician, RoleRegulator, RoleAdmin)
	// OversightRoles may see every record.
	OversightRoles = NewRoleSet(RoleAdmin, RoleRegulator)
	// AnyRole admits every authenticated actor.
	AnyRole = NewRoleSet(allRoles...)
)

// Actor is the authenticated principal behind a request.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Is reports whether the actor holds role r.
func (a Actor) Is(r Role) bool {
	return a.Role == r
}

func (a Actor) String() string {
	return fmt.Sprintf("%s(%s)", a.ID, a.Role)
}
