package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drago-vuckovic/sso/internal/provider"
)

func TestRoleSet_Difference(t *testing.T) {
	current := NewRoleSet("USER", "EDITOR")
	desired := NewRoleSet("USER", "ADMIN")

	assert.Equal(t, []string{"EDITOR"}, current.Difference(desired).Sorted())
	assert.Equal(t, []string{"ADMIN"}, desired.Difference(current).Sorted())
	assert.Empty(t, current.Difference(current).Sorted())
	assert.Equal(t, []string{"EDITOR", "USER"}, current.Difference(RoleSet{}).Sorted())
}

func TestRoleSet_DropsDuplicatesAndEmpty(t *testing.T) {
	s := NewRoleSet("USER", "USER", "", "ADMIN")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("USER"))
	assert.False(t, s.Has(""))
}

func TestRoleSet_Equal(t *testing.T) {
	assert.True(t, NewRoleSet("A", "B").Equal(NewRoleSet("B", "A")))
	assert.False(t, NewRoleSet("A").Equal(NewRoleSet("A", "B")))
	assert.False(t, NewRoleSet("A", "C").Equal(NewRoleSet("A", "B")))
	assert.True(t, NewRoleSet().Equal(RoleSet{}))
}

func TestRoleSetFromRoles(t *testing.T) {
	s := RoleSetFromRoles([]provider.Role{{ID: "1", Name: "USER"}, {ID: "2", Name: "ADMIN"}})
	assert.Equal(t, []string{"ADMIN", "USER"}, s.Sorted())
}
