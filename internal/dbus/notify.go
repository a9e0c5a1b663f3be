package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/autoduck/internal/daemon"
)

const (
	notificationsName      = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"
)

// NotificationSender returns a handler for daemon.InternalNotifier that
// delivers notifications to the desktop notification server on conn.
func NotificationSender(conn *dbus.Conn) func(*daemon.Notification) error {
	obj := conn.Object(notificationsName, notificationsPath)
	return func(n *daemon.Notification) error {
		call := obj.Call(notificationsInterface+".Notify", 0, notifyArgs(n)...)
		if call.Err != nil {
			return fmt.Errorf("failed to send notification: %w", call.Err)
		}
		return nil
	}
}

// notifyArgs builds the Notify(susssasa{sv}i) arguments.
func notifyArgs(n *daemon.Notification) []any {
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(n.Level.Urgency()),
		"category":      dbus.MakeVariant("device"),
		"transient":     dbus.MakeVariant(true),
		"desktop-entry": dbus.MakeVariant("autoduckd"),
	}
	return []any{
		"autoduckd",
		uint32(0),
		n.Level.Icon(),
		n.Summary,
		n.Body,
		[]string{},
		hints,
		int32(n.ExpireTimeout.Milliseconds()),
	}
}
