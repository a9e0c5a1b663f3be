// Package dbus exposes the autoduck engine on the session bus.
// The server exports Start, Stop, ApplySettings, SetApps, Reload and
// GetState on io.github.jmylchreest.autoduck.Engine and emits PhaseChanged on
// every duck or restore. The client wraps the same methods for the CLI.
// The package also sends the daemon's own desktop notifications through
// org.freedesktop.Notifications.
package dbus
