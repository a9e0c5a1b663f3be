package dbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/autoduck/internal/daemon"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/model"
)

const (
	// DBusInterface is the engine control interface name.
	DBusInterface = "io.github.jmylchreest.autoduck.Engine"
	// DBusPath is the engine object path.
	DBusPath = "/io/github/jmylchreest/autoduck"
	// DBusBusName is the bus name to claim.
	DBusBusName = "io.github.jmylchreest.autoduck"

	// Error names returned by the server.
	ErrorAlreadyRunning  = DBusBusName + ".Error.AlreadyRunning"
	ErrorNotRunning      = DBusBusName + ".Error.NotRunning"
	ErrorInvalidArgument = DBusBusName + ".Error.InvalidArgument"
)

// Controller is the engine host driven by the server. *daemon.Host
// satisfies it.
type Controller interface {
	Start(source string) error
	Stop(source string) error
	ApplySettings(s engine.Settings) error
	SetApps(priority, music, ignored []string)
	Reload() error
	State() daemon.State
}

// ControlServer implements the autoduck engine D-Bus interface.
type ControlServer struct {
	conn   *dbus.Conn
	logger *slog.Logger
	ctrl   Controller

	mu      sync.Mutex
	running bool
}

// NewControlServer creates a new ControlServer driving ctrl.
func NewControlServer(ctrl Controller, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlServer{
		logger: logger,
		ctrl:   ctrl,
	}
}

// Start connects to the session bus and exports the control interface.
func (s *ControlServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s.conn = conn

	if err := conn.Export(&engineObject{server: s}, DBusPath, DBusInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: DBusPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    DBusInterface,
				Methods: controlMethods(),
				Signals: controlSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), DBusPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(DBusBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken, is another autoduckd running?", DBusBusName)
	}

	s.running = true
	s.logger.Info("D-Bus control server started", "interface", DBusInterface, "path", DBusPath)
	return nil
}

// Stop releases the bus name. The shared connection stays open.
func (s *ControlServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	if _, err := s.conn.ReleaseName(DBusBusName); err != nil {
		s.logger.Warn("failed to release bus name", "error", err)
	}
	_ = s.conn.Export(nil, DBusPath, DBusInterface)
	s.logger.Info("D-Bus control server stopped")
	return nil
}

// Connection returns the underlying D-Bus connection.
func (s *ControlServer) Connection() *dbus.Conn {
	return s.conn
}

// engineObject is the object exported at DBusPath. Its method names are
// the D-Bus method names.
type engineObject struct {
	server *ControlServer
}

// Start enables the engine.
// D-Bus method: Start() -> nothing
func (o *engineObject) Start() *dbus.Error {
	o.server.logger.Debug("Start called")
	return toDBusError(o.server.ctrl.Start("dbus"))
}

// Stop disables the engine.
// D-Bus method: Stop() -> nothing
func (o *engineObject) Stop() *dbus.Error {
	o.server.logger.Debug("Stop called")
	return toDBusError(o.server.ctrl.Stop("dbus"))
}

// ApplySettings hot-swaps the engine settings.
// D-Bus method: ApplySettings(s) -> nothing
func (o *engineObject) ApplySettings(settingsJSON string) *dbus.Error {
	o.server.logger.Debug("ApplySettings called")
	var settings engine.Settings
	if err := json.Unmarshal([]byte(settingsJSON), &settings); err != nil {
		return dbus.NewError(ErrorInvalidArgument, []any{err.Error()})
	}
	if err := o.server.ctrl.ApplySettings(settings); err != nil {
		return dbus.NewError(ErrorInvalidArgument, []any{err.Error()})
	}
	return nil
}

// SetApps replaces the application role lists.
// D-Bus method: SetApps(asasas) -> nothing
func (o *engineObject) SetApps(priority, music, ignored []string) *dbus.Error {
	o.server.logger.Debug("SetApps called", "priority", len(priority), "music", len(music), "ignored", len(ignored))
	o.server.ctrl.SetApps(priority, music, ignored)
	return nil
}

// Reload re-reads the config file.
// D-Bus method: Reload() -> nothing
func (o *engineObject) Reload() *dbus.Error {
	o.server.logger.Debug("Reload called")
	return toDBusError(o.server.ctrl.Reload())
}

// GetState returns the current state as JSON.
// D-Bus method: GetState() -> s
func (o *engineObject) GetState() (string, *dbus.Error) {
	data, err := json.Marshal(o.server.ctrl.State())
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

// EmitPhaseChanged emits the PhaseChanged signal.
func (s *ControlServer) EmitPhaseChanged(phase model.Phase) error {
	if s.conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}
	if err := s.conn.Emit(DBusPath, DBusInterface+".PhaseChanged", phase.String()); err != nil {
		return fmt.Errorf("failed to emit PhaseChanged signal: %w", err)
	}
	s.logger.Debug("emitted PhaseChanged signal", "phase", phase)
	return nil
}

func toDBusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, daemon.ErrAlreadyRunning):
		return dbus.NewError(ErrorAlreadyRunning, []any{err.Error()})
	case errors.Is(err, daemon.ErrNotRunning):
		return dbus.NewError(ErrorNotRunning, []any{err.Error()})
	default:
		return dbus.MakeFailedError(err)
	}
}

// controlMethods returns the D-Bus method introspection data.
func controlMethods() []introspect.Method {
	return []introspect.Method{
		{Name: "Start"},
		{Name: "Stop"},
		{
			Name: "ApplySettings",
			Args: []introspect.Arg{
				{Name: "settings", Type: "s", Direction: "in"},
			},
		},
		{
			Name: "SetApps",
			Args: []introspect.Arg{
				{Name: "priority", Type: "as", Direction: "in"},
				{Name: "music", Type: "as", Direction: "in"},
				{Name: "ignored", Type: "as", Direction: "in"},
			},
		},
		{Name: "Reload"},
		{
			Name: "GetState",
			Args: []introspect.Arg{
				{Name: "state", Type: "s", Direction: "out"},
			},
		},
	}
}

// controlSignals returns the D-Bus signal introspection data.
func controlSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "PhaseChanged",
			Args: []introspect.Arg{
				{Name: "phase", Type: "s"},
			},
		},
	}
}
