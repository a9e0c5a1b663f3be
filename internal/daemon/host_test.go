package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoduck/internal/audio"
	"github.com/jmylchreest/autoduck/internal/config"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/fade"
	"github.com/jmylchreest/autoduck/internal/model"
	"github.com/jmylchreest/autoduck/internal/store"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.FadeOut = 0
	cfg.Engine.FadeIn = 0
	cfg.Engine.PollInterval = config.Duration(engine.MinPollInterval)
	cfg.Apps.Priority = []string{"discord"}
	cfg.Apps.Music = []string{"spotify"}
	return cfg
}

func newTestHost(t *testing.T) (*Host, *audio.MemoryDirectory, string) {
	t.Helper()
	dir := audio.NewMemoryDirectory()
	fader := fade.NewController(dir, nil)
	t.Cleanup(fader.Close)

	h := NewHost(dir, fader, testConfig(), nil)
	statePath := filepath.Join(t.TempDir(), "state.json")
	h.SetStatePath(statePath)
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h, dir, statePath
}

func volumeOf(dir *audio.MemoryDirectory, id string) float64 {
	v, _ := dir.Volume(context.Background(), id)
	return v
}

func TestHost_StartStopLifecycle(t *testing.T) {
	h, dir, statePath := newTestHost(t)
	dir.Add("discord", 1, 0.6)
	dir.Add("spotify", 1, 0)

	var engineEvents []bool
	h.SetEngineCallback(func(running bool) { engineEvents = append(engineEvents, running) })

	require.NoError(t, h.Start("test"))
	assert.ErrorIs(t, h.Start("test"), ErrAlreadyRunning)
	assert.True(t, h.Running())

	require.Eventually(t, func() bool {
		return volumeOf(dir, "spotify") == 0.15
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, model.PhaseDucked, h.State().Status.Phase)

	require.NoError(t, h.Stop("test"))
	assert.ErrorIs(t, h.Stop("test"), ErrNotRunning)
	assert.False(t, h.Running())

	require.Eventually(t, func() bool {
		return volumeOf(dir, "spotify") == 1.0
	}, time.Second, 10*time.Millisecond, "music restored on stop")

	st := h.State()
	assert.False(t, st.Running)
	assert.True(t, st.StartedAt.IsZero())
	assert.Equal(t, model.PhaseNormal, st.Status.Phase)
	assert.Equal(t, []bool{true, false}, engineEvents)

	shared, err := store.LoadSharedState(statePath)
	require.NoError(t, err)
	assert.False(t, shared.EngineEnabled)
	assert.Equal(t, "test", shared.EngineChangedBy)
	require.NotNil(t, shared.LastTransition)
	assert.Equal(t, "normal", shared.LastTransition.Phase)
}

func TestHost_RestartGetsFreshState(t *testing.T) {
	h, dir, _ := newTestHost(t)
	dir.Add("discord", 1, 0.6)
	dir.Add("spotify", 1, 0)

	require.NoError(t, h.Start("test"))
	require.Eventually(t, func() bool {
		return h.State().Status.Phase == model.PhaseDucked
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, h.Stop("test"))

	dir.SetPeak("discord", 0)
	require.NoError(t, h.Start("test"))
	require.Eventually(t, func() bool {
		return !h.State().Status.UpdatedAt.IsZero()
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, model.PhaseNormal, h.State().Status.Phase)
}

func TestHost_ApplySettings(t *testing.T) {
	h, _, _ := newTestHost(t)

	s := h.State().Settings
	s.VolumeDucked = 0.4
	require.NoError(t, h.ApplySettings(s))
	assert.Equal(t, 0.4, h.State().Settings.VolumeDucked)

	s.VolumeDucked = 2
	assert.ErrorIs(t, h.ApplySettings(s), engine.ErrInvalidVolume)
	assert.Equal(t, 0.4, h.State().Settings.VolumeDucked)
}

func TestHost_SetAppsNormalizes(t *testing.T) {
	h, _, _ := newTestHost(t)

	h.SetApps([]string{"Zoom", "discord"}, []string{"Spotify", "zoom"}, nil)
	apps := h.State().Apps
	assert.Equal(t, []string{"zoom", "discord"}, apps.Priority)
	assert.Equal(t, []string{"spotify"}, apps.Music)
	assert.Empty(t, apps.Ignored)
}

func TestHost_Reload(t *testing.T) {
	h, _, _ := newTestHost(t)
	path := filepath.Join(t.TempDir(), "autoduck.toml")
	h.SetConfigPath(path)

	content := "[engine]\nvolume_ducked = 0.3\n[apps]\npriority = [\"teams\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	require.NoError(t, h.Reload())

	st := h.State()
	assert.Equal(t, 0.3, st.Settings.VolumeDucked)
	assert.Equal(t, []string{"teams"}, st.Apps.Priority)

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nvolume_ducked = 9\n"), 0600))
	assert.Error(t, h.Reload())
	assert.Equal(t, 0.3, h.State().Settings.VolumeDucked)
}

func TestHost_Ready(t *testing.T) {
	h, dir, _ := newTestHost(t)
	assert.ErrorIs(t, h.Ready(context.Background()), ErrNotRunning)

	dir.Add("spotify", 1, 0)
	require.NoError(t, h.Start("test"))
	require.Eventually(t, func() bool {
		return h.Ready(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestHost_ShutdownKeepsEnabledFlag(t *testing.T) {
	h, _, statePath := newTestHost(t)
	require.NoError(t, h.Start("autostart"))
	require.NoError(t, h.Shutdown(context.Background()))
	assert.False(t, h.Running())

	shared, err := store.LoadSharedState(statePath)
	require.NoError(t, err)
	assert.True(t, shared.EngineEnabled)
	assert.Equal(t, "autostart", shared.EngineChangedBy)
}
