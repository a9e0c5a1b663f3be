// Package daemon provides the main orchestration for autoduckd.
// It hosts the ducking engine behind a start/stop control surface, reloads
// the configuration when the file changes, and raises desktop notifications
// about the daemon's own events.
package daemon
