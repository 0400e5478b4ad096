package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsApply(t *testing.T) {
	r := New(nil)

	require.True(t, r.Enabled(FlagPersistHistory))
	require.True(t, r.Enabled(FlagAuthWatch))
	require.True(t, r.Enabled(FlagLegacyEvents))
	require.Len(t, r.All(), 3)
}

func TestNew_ConfigOverridesDefaults(t *testing.T) {
	r := New(map[string]bool{FlagAuthWatch: false, "experimental": true})

	require.False(t, r.Enabled(FlagAuthWatch))
	require.True(t, r.Enabled(FlagPersistHistory))
	require.True(t, r.Enabled("experimental"))
}

func TestEnabled_UnknownIsFalse(t *testing.T) {
	require.False(t, New(nil).Enabled("does-not-exist"))
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	require.False(t, r.Enabled(FlagPersistHistory))
	require.Empty(t, r.All())
}

func TestAll_ReturnsCopy(t *testing.T) {
	r := New(nil)
	all := r.All()
	all[FlagPersistHistory] = false

	require.True(t, r.Enabled(FlagPersistHistory))
}
