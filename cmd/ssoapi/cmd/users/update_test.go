package users

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func updateFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("update", pflag.ContinueOnError)
	addUpdateFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestUpdateFromFlags(t *testing.T) {
	t.Run("email only", func(t *testing.T) {
		upd, err := updateFromFlags(updateFlags(t, "--email", "a@example.com"))
		require.NoError(t, err)
		require.NotNil(t, upd.Email)
		assert.Equal(t, "a@example.com", *upd.Email)
		assert.Nil(t, upd.Username)
		assert.Nil(t, upd.Enabled)
		assert.Nil(t, upd.Roles)
	})

	t.Run("disable", func(t *testing.T) {
		upd, err := updateFromFlags(updateFlags(t, "--enabled=false"))
		require.NoError(t, err)
		require.NotNil(t, upd.Enabled)
		assert.False(t, *upd.Enabled)
	})

	t.Run("replace roles", func(t *testing.T) {
		upd, err := updateFromFlags(updateFlags(t, "--role", "USER,ADMIN"))
		require.NoError(t, err)
		require.NotNil(t, upd.Roles)
		assert.Equal(t, []string{"USER", "ADMIN"}, *upd.Roles)
	})

	t.Run("clear roles", func(t *testing.T) {
		upd, err := updateFromFlags(updateFlags(t, "--clear-roles"))
		require.NoError(t, err)
		require.NotNil(t, upd.Roles)
		assert.Empty(t, *upd.Roles)
	})

	t.Run("conflicting role flags", func(t *testing.T) {
		_, err := updateFromFlags(updateFlags(t, "--clear-roles", "--role", "USER"))
		require.Error(t, err)
	})

	t.Run("nothing to do", func(t *testing.T) {
		_, err := updateFromFlags(updateFlags(t))
		require.Error(t, err)
	})
}
