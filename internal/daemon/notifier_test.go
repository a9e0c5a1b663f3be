package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalNotifier_RateLimitsByKey(t *testing.T) {
	n := NewInternalNotifier(nil)
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }

	var sent []*Notification
	n.SetNotifyHandler(func(notification *Notification) error {
		sent = append(sent, notification)
		return nil
	})

	n.NotifyConfigError(errors.New("bad"))
	n.NotifyConfigError(errors.New("bad"))
	n.NotifyConfigReloaded()
	require.Len(t, sent, 2)
	assert.Equal(t, "Configuration Error", sent[0].Summary)
	assert.Contains(t, sent[0].Body, "bad")
	assert.Equal(t, NotificationLevelWarning, sent[0].Level)

	now = now.Add(31 * time.Second)
	n.NotifyConfigError(errors.New("bad"))
	assert.Len(t, sent, 3)
}

func TestInternalNotifier_Disabled(t *testing.T) {
	n := NewInternalNotifier(nil)
	called := false
	n.SetNotifyHandler(func(*Notification) error {
		called = true
		return nil
	})
	n.SetEnabled(false)
	n.NotifyStartup("1.0.0")
	assert.False(t, called)
}

func TestInternalNotifier_AudioAndEngine(t *testing.T) {
	n := NewInternalNotifier(nil)
	var summaries []string
	n.SetNotifyHandler(func(notification *Notification) error {
		summaries = append(summaries, notification.Summary)
		return errors.New("no notification daemon")
	})

	n.NotifyAudio(errors.New("connection refused"))
	n.NotifyAudio(nil)
	n.NotifyEngineChanged(false)
	n.NotifyEngineChanged(true)
	assert.Equal(t, []string{"Audio Unavailable", "Audio Available", "Ducking Disabled", "Ducking Enabled"}, summaries)
}

func TestNotificationLevel(t *testing.T) {
	assert.Equal(t, byte(0), NotificationLevelInfo.Urgency())
	assert.Equal(t, byte(1), NotificationLevelWarning.Urgency())
	assert.Equal(t, byte(2), NotificationLevelError.Urgency())
	assert.Equal(t, "dialog-error", NotificationLevelError.Icon())
}
