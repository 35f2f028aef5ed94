package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvNamingConvention(t *testing.T) {
	t.Parallel()
	n := NewNamingConvention("GRID_")
	assert.Equal(t, "GRID_FOO", n.FlagToEnv("foo"))
	assert.Equal(t, "GRID_FOO_BAR", n.FlagToEnv("foo-bar"))
	assert.Equal(t, "GRID_FOO_BAR_BAZ", n.FlagToEnv("foo-Bar-BAZ"))
	assert.Equal(t, "GRID_NESTED_FOO_123", n.FlagToEnv("nested.foo-123"))
}

func TestEnvNamingConventionFlagNameEmpty(t *testing.T) {
	t.Parallel()
	n := NewNamingConvention("GRID_")
	assert.PanicsWithError(t, "flag name cannot be empty", func() {
		n.FlagToEnv("")
	})
}
