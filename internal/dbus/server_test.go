package dbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoduck/internal/daemon"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/model"
)

type fakeController struct {
	running   bool
	settings  engine.Settings
	apps      daemon.Apps
	reloadErr error
	sources   []string
}

func (f *fakeController) Start(source string) error {
	if f.running {
		return daemon.ErrAlreadyRunning
	}
	f.running = true
	f.sources = append(f.sources, source)
	return nil
}

func (f *fakeController) Stop(source string) error {
	if !f.running {
		return daemon.ErrNotRunning
	}
	f.running = false
	f.sources = append(f.sources, source)
	return nil
}

func (f *fakeController) ApplySettings(s engine.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.settings = s
	return nil
}

func (f *fakeController) SetApps(priority, music, ignored []string) {
	f.apps = daemon.Apps{Priority: priority, Music: music, Ignored: ignored}
}

func (f *fakeController) Reload() error { return f.reloadErr }

func (f *fakeController) State() daemon.State {
	return daemon.State{
		Running:  f.running,
		Settings: f.settings,
		Apps:     f.apps,
		Status: engine.Status{
			Phase:          model.PhaseDucked,
			AudioAvailable: true,
			Sessions: []engine.SessionStatus{
				{Session: model.Session{Identity: "spotify", Volume: 0.15}, Role: model.RoleMusic},
			},
		},
	}
}

func newTestObject() (*engineObject, *fakeController) {
	ctrl := &fakeController{settings: engine.DefaultSettings()}
	return &engineObject{server: NewControlServer(ctrl, nil)}, ctrl
}

func TestEngineObject_StartStop(t *testing.T) {
	obj, ctrl := newTestObject()

	assert.Nil(t, obj.Start())
	assert.True(t, ctrl.running)

	err := obj.Start()
	require.NotNil(t, err)
	assert.Equal(t, ErrorAlreadyRunning, err.Name)
	assert.ErrorIs(t, fromDBusError(err), daemon.ErrAlreadyRunning)

	assert.Nil(t, obj.Stop())
	err = obj.Stop()
	require.NotNil(t, err)
	assert.Equal(t, ErrorNotRunning, err.Name)
	assert.ErrorIs(t, fromDBusError(*err), daemon.ErrNotRunning)

	assert.Equal(t, []string{"dbus", "dbus"}, ctrl.sources)
}

func TestEngineObject_ApplySettings(t *testing.T) {
	obj, ctrl := newTestObject()

	s := engine.DefaultSettings()
	s.VolumeDucked = 0.3
	s.FadeIn = 900 * time.Millisecond
	data, err := json.Marshal(s)
	require.NoError(t, err)

	assert.Nil(t, obj.ApplySettings(string(data)))
	assert.Equal(t, s, ctrl.settings)

	dbusErr := obj.ApplySettings("{broken")
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorInvalidArgument, dbusErr.Name)

	s.VolumeDucked = 4
	data, err = json.Marshal(s)
	require.NoError(t, err)
	dbusErr = obj.ApplySettings(string(data))
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorInvalidArgument, dbusErr.Name)
	assert.Equal(t, 0.3, ctrl.settings.VolumeDucked)
}

func TestEngineObject_SetAppsAndReload(t *testing.T) {
	obj, ctrl := newTestObject()

	assert.Nil(t, obj.SetApps([]string{"discord"}, []string{"spotify"}, []string{}))
	assert.Equal(t, []string{"spotify"}, ctrl.apps.Music)

	assert.Nil(t, obj.Reload())
	ctrl.reloadErr = errors.New("invalid configuration")
	err := obj.Reload()
	require.NotNil(t, err)
	assert.Equal(t, "org.freedesktop.DBus.Error.Failed", err.Name)
}

func TestEngineObject_GetState(t *testing.T) {
	obj, _ := newTestObject()

	data, dbusErr := obj.GetState()
	require.Nil(t, dbusErr)

	var st daemon.State
	require.NoError(t, json.Unmarshal([]byte(data), &st))
	assert.Equal(t, model.PhaseDucked, st.Status.Phase)
	require.Len(t, st.Status.Sessions, 1)
	assert.Equal(t, model.RoleMusic, st.Status.Sessions[0].Role)
	assert.Equal(t, "spotify", st.Status.Sessions[0].Identity)
	assert.Equal(t, engine.DefaultSettings(), st.Settings)

	assert.Contains(t, data, `"phase":"ducked"`)
	assert.Contains(t, data, `"role":"music"`)
}

func TestControlServer_EmitWithoutConnection(t *testing.T) {
	s := NewControlServer(&fakeController{}, nil)
	assert.Error(t, s.EmitPhaseChanged(model.PhaseDucked))
}

func TestFromDBusError(t *testing.T) {
	assert.NoError(t, fromDBusError(nil))
	other := fmt.Errorf("wrapped: %w", dbus.Error{Name: "org.example.Other"})
	assert.Equal(t, other, fromDBusError(other))
	assert.ErrorIs(t, fromDBusError(dbus.Error{Name: ErrorNotRunning}), daemon.ErrNotRunning)
}

func TestNotifyArgs(t *testing.T) {
	args := notifyArgs(&daemon.Notification{
		Summary:       "Configuration Error",
		Body:          "bad",
		Level:         daemon.NotificationLevelWarning,
		ExpireTimeout: 5 * time.Second,
	})
	require.Len(t, args, 8)
	assert.Equal(t, "autoduckd", args[0])
	assert.Equal(t, "dialog-warning", args[2])
	assert.Equal(t, "Configuration Error", args[3])
	assert.Equal(t, int32(5000), args[7])

	hints, ok := args[6].(map[string]dbus.Variant)
	require.True(t, ok)
	assert.Equal(t, byte(1), hints["urgency"].Value())
	assert.Equal(t, true, hints["transient"].Value())
}
