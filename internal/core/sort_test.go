package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/model"
)

func session(id string, role model.Role, peak, volume float64) engine.SessionStatus {
	return engine.SessionStatus{
		Session: model.Session{Identity: id, Peak: peak, Volume: volume},
		Role:    role,
	}
}

func identities(sessions []engine.SessionStatus) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.Identity
	}
	return ids
}

func testSessions() []engine.SessionStatus {
	return []engine.SessionStatus{
		session("vlc", model.RoleMusic, 0.2, 0.15),
		session("firefox", model.RoleUnclassified, 0.0, 1.0),
		session("discord", model.RolePriority, 0.6, 1.0),
		session("spotify", model.RoleMusic, 0.4, 0.15),
		session("steam", model.RoleIgnored, 0.1, 0.5),
	}
}

func TestSort_Empty(t *testing.T) {
	var sessions []engine.SessionStatus
	Sort(sessions, DefaultSortOptions())
	assert.Len(t, sessions, 0)
}

func TestSort_ByRole(t *testing.T) {
	sessions := testSessions()
	Sort(sessions, DefaultSortOptions())

	assert.Equal(t, []string{"discord", "spotify", "vlc", "firefox", "steam"}, identities(sessions))
}

func TestSort_ByRoleDesc(t *testing.T) {
	sessions := testSessions()
	Sort(sessions, SortOptions{Field: SortByRole, Order: SortDesc})

	// Identity tie-break stays ascending within a role.
	assert.Equal(t, []string{"steam", "firefox", "spotify", "vlc", "discord"}, identities(sessions))
}

func TestSort_ByIdentity(t *testing.T) {
	sessions := testSessions()
	Sort(sessions, SortOptions{Field: SortByIdentity, Order: SortAsc})
	assert.Equal(t, []string{"discord", "firefox", "spotify", "steam", "vlc"}, identities(sessions))

	Sort(sessions, SortOptions{Field: SortByIdentity, Order: SortDesc})
	assert.Equal(t, []string{"vlc", "steam", "spotify", "firefox", "discord"}, identities(sessions))
}

func TestSort_ByPeakDesc(t *testing.T) {
	sessions := testSessions()
	Sort(sessions, SortOptions{Field: SortByPeak, Order: SortDesc})

	assert.Equal(t, []string{"discord", "spotify", "vlc", "steam", "firefox"}, identities(sessions))
}

func TestSort_ByVolumeAsc(t *testing.T) {
	sessions := testSessions()
	Sort(sessions, SortOptions{Field: SortByVolume, Order: SortAsc})

	assert.Equal(t, []string{"spotify", "vlc", "steam", "discord", "firefox"}, identities(sessions))
}

func TestSort_StableAcrossInputOrder(t *testing.T) {
	a := testSessions()
	b := testSessions()
	b[0], b[3] = b[3], b[0]

	Sort(a, DefaultSortOptions())
	Sort(b, DefaultSortOptions())
	assert.Equal(t, identities(a), identities(b))
}

func TestParseSortField(t *testing.T) {
	tests := []struct {
		input   string
		want    SortField
		wantErr bool
	}{
		{"role", SortByRole, false},
		{"", SortByRole, false},
		{"Identity", SortByIdentity, false},
		{"name", SortByIdentity, false},
		{"peak", SortByPeak, false},
		{"vol", SortByVolume, false},
		{"timestamp", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSortField(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSortOrder(t *testing.T) {
	got, err := ParseSortOrder("DESC")
	require.NoError(t, err)
	assert.Equal(t, SortDesc, got)

	got, err = ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, SortAsc, got)

	_, err = ParseSortOrder("sideways")
	assert.Error(t, err)
}
