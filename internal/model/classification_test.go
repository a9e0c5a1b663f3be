package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification_Role(t *testing.T) {
	c := NewClassification(
		[]string{"Discord", "teams", "both"},
		[]string{"spotify", " VLC ", "both"},
		[]string{"teams"},
	)

	tests := []struct {
		identity string
		want     Role
	}{
		{"discord", RolePriority},
		{"DISCORD", RolePriority},
		{"spotify", RoleMusic},
		{"vlc", RoleMusic},
		{"teams", RoleIgnored},
		{"both", RoleIgnored},
		{"firefox", RoleUnclassified},
		{"", RoleUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Role(tt.identity))
		})
	}
}

func TestClassification_Ambiguous(t *testing.T) {
	c := NewClassification([]string{"x"}, []string{"X", "y"}, nil)
	assert.True(t, c.Ambiguous("x"))
	assert.False(t, c.Ambiguous("y"))
	assert.Equal(t, 2, c.Len())
}

func TestClassification_Nil(t *testing.T) {
	var c *Classification
	assert.Equal(t, RoleUnclassified, c.Role("spotify"))
	assert.False(t, c.Ambiguous("spotify"))
	assert.Zero(t, c.Len())
}

func TestRole_TextRoundTrip(t *testing.T) {
	for role, name := range RoleNames {
		text, err := role.MarshalText()
		assert.NoError(t, err)
		assert.Equal(t, name, string(text))

		var got Role
		assert.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, role, got)
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "normal", PhaseNormal.String())
	assert.Equal(t, "ducked", PhaseDucked.String())
	assert.Equal(t, "unknown", Phase(7).String())
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, 1.0, Clamp01(3))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 1.0, Clamp01(math.Inf(1)))
}
