package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoduck/internal/model"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		name              string
		allowUnclassified bool
		want              model.Role
		wantErr           bool
	}{
		{"priority", false, model.RolePriority, false},
		{"Music", false, model.RoleMusic, false},
		{" ignored ", false, model.RoleIgnored, false},
		{"unclassified", false, 0, true},
		{"unclassified", true, model.RoleUnclassified, false},
		{"speech", true, 0, true},
		{"", false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRole(tt.name, tt.allowUnclassified)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetTransient_RejectsAutostart(t *testing.T) {
	err := setTransient(setCmd, "engine.autostart", "false")
	assert.ErrorContains(t, err, "autostart")
}
