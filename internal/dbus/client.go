package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/autoduck/internal/daemon"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/model"
)

// ErrDaemonNotRunning is returned when nothing owns the autoduck bus name.
var ErrDaemonNotRunning = errors.New("autoduckd is not running")

// Client calls the control interface of a running autoduckd.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewClient connects to the session bus and checks that autoduckd is there.
func NewClient() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var hasOwner bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, DBusBusName).Store(&hasOwner); err != nil {
		return nil, fmt.Errorf("failed to query bus name: %w", err)
	}
	if !hasOwner {
		return nil, ErrDaemonNotRunning
	}
	return &Client{conn: conn, obj: conn.Object(DBusBusName, DBusPath)}, nil
}

func (c *Client) call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.obj.CallWithContext(ctx, DBusInterface+"."+method, 0, args...)
}

// Start enables the engine.
func (c *Client) Start(ctx context.Context) error {
	return fromDBusError(c.call(ctx, "Start").Err)
}

// Stop disables the engine.
func (c *Client) Stop(ctx context.Context) error {
	return fromDBusError(c.call(ctx, "Stop").Err)
}

// ApplySettings hot-swaps settings without saving them.
func (c *Client) ApplySettings(ctx context.Context, s engine.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return fromDBusError(c.call(ctx, "ApplySettings", string(data)).Err)
}

// SetApps replaces the role lists without saving them.
func (c *Client) SetApps(ctx context.Context, apps daemon.Apps) error {
	return fromDBusError(c.call(ctx, "SetApps", nonNil(apps.Priority), nonNil(apps.Music), nonNil(apps.Ignored)).Err)
}

// Reload asks the daemon to re-read its config file.
func (c *Client) Reload(ctx context.Context) error {
	return fromDBusError(c.call(ctx, "Reload").Err)
}

// State fetches the current state.
func (c *Client) State(ctx context.Context) (daemon.State, error) {
	var data string
	if err := c.call(ctx, "GetState").Store(&data); err != nil {
		return daemon.State{}, fromDBusError(err)
	}
	var st daemon.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return daemon.State{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return st, nil
}

// WatchPhase delivers PhaseChanged signals until ctx is cancelled.
func (c *Client) WatchPhase(ctx context.Context) (<-chan model.Phase, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(DBusPath),
		dbus.WithMatchInterface(DBusInterface),
		dbus.WithMatchMember("PhaseChanged"),
	}
	if err := c.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return nil, fmt.Errorf("failed to add match rule: %w", err)
	}

	signals := make(chan *dbus.Signal, 8)
	c.conn.Signal(signals)

	out := make(chan model.Phase, 1)
	go func() {
		defer close(out)
		defer func() {
			c.conn.RemoveSignal(signals)
			_ = c.conn.RemoveMatchSignal(opts...)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				if sig == nil || sig.Name != DBusInterface+".PhaseChanged" || len(sig.Body) == 0 {
					continue
				}
				name, ok := sig.Body[0].(string)
				if !ok {
					continue
				}
				var phase model.Phase
				_ = phase.UnmarshalText([]byte(name))
				select {
				case out <- phase:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// fromDBusError maps server error names back to daemon sentinels.
func fromDBusError(err error) error {
	if err == nil {
		return nil
	}
	var name string
	var value dbus.Error
	var ptr *dbus.Error
	switch {
	case errors.As(err, &value):
		name = value.Name
	case errors.As(err, &ptr):
		name = ptr.Name
	}
	switch name {
	case ErrorAlreadyRunning:
		return daemon.ErrAlreadyRunning
	case ErrorNotRunning:
		return daemon.ErrNotRunning
	}
	return err
}
