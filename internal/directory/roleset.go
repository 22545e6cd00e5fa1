package directory

import (
	"sort"

	"github.com/drago-vuckovic/sso/internal/provider"
)

// RoleSet is a set of role names.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from names. Empty names and duplicates are dropped.
func NewRoleSet(names ...string) RoleSet {
	s := make(RoleSet, len(names))
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// RoleSetFromRoles collects the names of roles.
func RoleSetFromRoles(roles []provider.Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r.Name] = struct{}{}
	}
	return s
}

func (s RoleSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s RoleSet) Len() int {
	return len(s)
}

// Difference returns the names in s that are not in other.
func (s RoleSet) Difference(other RoleSet) RoleSet {
	out := make(RoleSet, len(s))
	for n := range s {
		if !other.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

func (s RoleSet) Equal(other RoleSet) bool {
	if len(s) != len(other) {
		return false
	}
	for n := range s {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

// Sorted returns the names in lexical order.
func (s RoleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
