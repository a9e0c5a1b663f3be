package daemon

import (
	"log/slog"
	"sync"
	"time"
)

// NotificationLevel indicates the urgency/severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low urgency).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal urgency).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (critical urgency).
	NotificationLevelError
)

// Urgency maps the level to the freedesktop urgency byte.
func (l NotificationLevel) Urgency() byte {
	switch l {
	case NotificationLevelInfo:
		return 0
	case NotificationLevelError:
		return 2
	default:
		return 1
	}
}

// Icon returns the themed icon name for the level.
func (l NotificationLevel) Icon() string {
	switch l {
	case NotificationLevelInfo:
		return "dialog-information"
	case NotificationLevelError:
		return "dialog-error"
	default:
		return "dialog-warning"
	}
}

// Notification is a desktop notification raised by the daemon itself.
type Notification struct {
	Summary       string
	Body          string
	Level         NotificationLevel
	ExpireTimeout time.Duration
}

// InternalNotifier sends notifications about autoduckd's own events.
// Repeats of the same key are rate limited.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	notifyHandler func(notification *Notification) error

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration

	enabled bool
	now     func() time.Time
}

// NewInternalNotifier creates a new InternalNotifier.
func NewInternalNotifier(logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:         logger,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    30 * time.Second,
		enabled:        true,
		now:            time.Now,
	}
}

// SetNotifyHandler sets the function that delivers a notification.
func (n *InternalNotifier) SetNotifyHandler(handler func(notification *Notification) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifyHandler = handler
}

// SetEnabled enables or disables internal notifications.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between duplicate notifications.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Notify sends an internal notification if not rate-limited.
// The key is used for rate limiting - same key won't notify again within minInterval.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) {
	n.mu.Lock()
	if !n.enabled {
		n.mu.Unlock()
		return
	}
	handler := n.notifyHandler
	if handler == nil {
		n.mu.Unlock()
		n.logger.Debug("internal notification skipped: no handler", "summary", summary)
		return
	}
	now := n.now()
	if lastTime, ok := n.lastNotifyTime[key]; ok && now.Sub(lastTime) < n.minInterval {
		n.mu.Unlock()
		n.logger.Debug("internal notification rate-limited", "key", key, "summary", summary)
		return
	}
	n.lastNotifyTime[key] = now
	n.mu.Unlock()

	n.logger.Debug("sending internal notification", "key", key, "summary", summary, "level", level)
	if err := handler(&Notification{
		Summary:       summary,
		Body:          body,
		Level:         level,
		ExpireTimeout: 5 * time.Second,
	}); err != nil {
		n.logger.Debug("internal notification failed", "key", key, "error", err)
	}
}

// NotifyConfigReloaded sends a notification about config being reloaded.
func (n *InternalNotifier) NotifyConfigReloaded() {
	n.Notify(
		"config-reload",
		"Configuration Reloaded",
		"autoduck configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError sends a notification about config validation error.
func (n *InternalNotifier) NotifyConfigError(err error) {
	n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration, keeping current settings: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyAudio sends a notification when the audio system is lost or back.
func (n *InternalNotifier) NotifyAudio(err error) {
	if err != nil {
		n.Notify(
			"audio-lost",
			"Audio Unavailable",
			"autoduck cannot reach the audio system and will keep retrying: "+err.Error(),
			NotificationLevelWarning,
		)
		return
	}
	n.Notify(
		"audio-back",
		"Audio Available",
		"autoduck is ducking again.",
		NotificationLevelInfo,
	)
}

// NotifyEngineChanged sends a notification about the engine being toggled.
func (n *InternalNotifier) NotifyEngineChanged(running bool) {
	if running {
		n.Notify("engine-on", "Ducking Enabled", "Music will be lowered while priority apps play audio.", NotificationLevelInfo)
		return
	}
	n.Notify("engine-off", "Ducking Disabled", "Music volume is no longer managed.", NotificationLevelInfo)
}

// NotifyStartup sends a notification that the daemon has started.
func (n *InternalNotifier) NotifyStartup(version string) {
	n.Notify(
		"startup",
		"autoduckd Started",
		"Volume ducking daemon v"+version+" is now running.",
		NotificationLevelInfo,
	)
}
