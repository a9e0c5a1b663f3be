package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jmylchreest/autoduck/internal/audio"
	"github.com/jmylchreest/autoduck/internal/model"
)

const (
	lookupName      = "org.PulseAudio1"
	lookupPath      = "/org/pulseaudio/server_lookup1"
	lookupInterface = "org.PulseAudio.ServerLookup1"
	corePath        = "/org/pulseaudio/core1"
	coreInterface   = "org.PulseAudio.Core1"
	streamInterface = "org.PulseAudio.Core1.Stream"

	propertiesGet    = "org.freedesktop.DBus.Properties.Get"
	propertiesGetAll = "org.freedesktop.DBus.Properties.GetAll"
	propertiesSet    = "org.freedesktop.DBus.Properties.Set"

	// VolumeNorm is the PulseAudio volume for 100%.
	VolumeNorm = 65536
)

// Error names meaning the stream no longer exists.
var goneErrors = []string{
	"org.PulseAudio.Core1.NoSuchEntityError",
	"org.freedesktop.DBus.Error.UnknownObject",
	"org.freedesktop.DBus.Error.UnknownMethod",
}

// stream is one decoded playback stream.
type stream struct {
	path     dbus.ObjectPath
	identity string
	channels []uint32
	muted    bool
}

func (s stream) volume() float64 {
	var peak uint32
	for _, v := range s.channels {
		peak = max(peak, v)
	}
	return model.Clamp01(float64(peak) / VolumeNorm)
}

// Directory implements audio.Directory against a PulseAudio server.
type Directory struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	logger  *slog.Logger
	address string

	// lookupPID resolves a process name when a stream carries only a PID.
	lookupPID func(ctx context.Context, pid int32) (string, error)
}

// New creates a Directory. The connection is made on first use, so the
// daemon can start before the sound server does.
func New(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		logger:    logger,
		lookupPID: processName,
	}
}

// SetAddress pins the server address instead of asking the session bus.
func (d *Directory) SetAddress(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.address = address
}

// Close drops the server connection.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropLocked()
}

func (d *Directory) dropLocked() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *Directory) connect(ctx context.Context) (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	_ = d.dropLocked()

	address := d.address
	if address == "" {
		a, err := lookupServerAddress(ctx)
		if err != nil {
			return nil, err
		}
		address = a
	}

	conn, err := dbus.Dial(address, dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", audio.ErrUnavailable, address, err)
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: auth: %v", audio.ErrUnavailable, err)
	}
	d.conn = conn
	d.logger.Info("connected to PulseAudio", "address", address)
	return conn, nil
}

// lookupServerAddress asks the session bus where the PulseAudio D-Bus
// server listens.
func lookupServerAddress(ctx context.Context) (string, error) {
	bus, err := dbus.SessionBus()
	if err != nil {
		return "", fmt.Errorf("%w: session bus: %v", audio.ErrUnavailable, err)
	}
	var v dbus.Variant
	err = bus.Object(lookupName, lookupPath).CallWithContext(ctx, propertiesGet, 0, lookupInterface, "Address").Store(&v)
	if err != nil {
		return "", fmt.Errorf("%w: server lookup (is module-dbus-protocol loaded?): %v", audio.ErrUnavailable, err)
	}
	address, ok := v.Value().(string)
	if !ok || address == "" {
		return "", fmt.Errorf("%w: server lookup returned %v", audio.ErrUnavailable, v)
	}
	return address, nil
}

// fail drops a connection whose call failed for a reason other than a
// vanished stream, so the next cycle reconnects.
func (d *Directory) fail(conn *dbus.Conn, err error) error {
	d.mu.Lock()
	if d.conn == conn {
		_ = d.dropLocked()
	}
	d.mu.Unlock()
	return fmt.Errorf("%w: %v", audio.ErrUnavailable, err)
}

func (d *Directory) streams(ctx context.Context) ([]stream, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	v, err := conn.Object("", corePath).GetProperty(coreInterface + ".PlaybackStreams")
	if err != nil {
		return nil, d.fail(conn, err)
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected PlaybackStreams type %s", audio.ErrUnavailable, v.Signature())
	}

	out := make([]stream, 0, len(paths))
	for _, path := range paths {
		var props map[string]dbus.Variant
		err := conn.Object("", path).CallWithContext(ctx, propertiesGetAll, 0, streamInterface).Store(&props)
		if err != nil {
			if isGone(err) {
				continue
			}
			return nil, d.fail(conn, err)
		}
		if s, ok := decodeStream(ctx, path, props, d.lookupPID); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *Directory) streamsFor(ctx context.Context, identity string) ([]stream, error) {
	all, err := d.streams(ctx)
	if err != nil {
		return nil, err
	}
	id := model.NormalizeIdentity(identity)
	matched := slices.DeleteFunc(all, func(s stream) bool { return s.identity != id })
	if len(matched) == 0 {
		return nil, audio.ErrSessionGone
	}
	return matched, nil
}

// Sessions implements audio.Directory.
func (d *Directory) Sessions(ctx context.Context) ([]model.Session, error) {
	streams, err := d.streams(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate(streams), nil
}

// Peak implements audio.Directory.
func (d *Directory) Peak(ctx context.Context, identity string) (float64, error) {
	streams, err := d.streamsFor(ctx, identity)
	if err != nil {
		return 0, err
	}
	for _, s := range streams {
		if !s.muted {
			return 1, nil
		}
	}
	return 0, nil
}

// Volume implements audio.Directory.
func (d *Directory) Volume(ctx context.Context, identity string) (float64, error) {
	streams, err := d.streamsFor(ctx, identity)
	if err != nil {
		return 0, err
	}
	var v float64
	for _, s := range streams {
		v = max(v, s.volume())
	}
	return v, nil
}

// SetVolume implements audio.Directory. Every stream of the identity gets
// the same volume on all of its channels.
func (d *Directory) SetVolume(ctx context.Context, identity string, volume float64) error {
	streams, err := d.streamsFor(ctx, identity)
	if err != nil {
		return err
	}
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return audio.ErrUnavailable
	}

	written := 0
	for _, s := range streams {
		channels := scaleChannels(len(s.channels), volume)
		call := conn.Object("", s.path).CallWithContext(ctx, propertiesSet, 0,
			streamInterface, "Volume", dbus.MakeVariant(channels))
		if call.Err != nil {
			if isGone(call.Err) {
				continue
			}
			return d.fail(conn, call.Err)
		}
		written++
	}
	if written == 0 {
		return audio.ErrSessionGone
	}
	return nil
}

// aggregate folds streams into one session per identity, sorted by identity.
func aggregate(streams []stream) []model.Session {
	byID := make(map[string]*model.Session)
	var order []string
	for _, s := range streams {
		sess, ok := byID[s.identity]
		if !ok {
			sess = &model.Session{Identity: s.identity, Muted: true}
			byID[s.identity] = sess
			order = append(order, s.identity)
		}
		sess.Volume = max(sess.Volume, s.volume())
		sess.Muted = sess.Muted && s.muted
		if !s.muted {
			sess.Peak = 1
		}
	}
	slices.Sort(order)
	out := make([]model.Session, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func scaleChannels(n int, volume float64) []uint32 {
	n = max(n, 1)
	v := uint32(model.Clamp01(volume)*VolumeNorm + 0.5)
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// decodeStream reads the stream properties returned by GetAll.
func decodeStream(ctx context.Context, path dbus.ObjectPath, props map[string]dbus.Variant, lookupPID func(context.Context, int32) (string, error)) (stream, bool) {
	s := stream{path: path}
	if v, ok := props["Volume"].Value().([]uint32); ok {
		s.channels = v
	}
	if v, ok := props["Mute"].Value().(bool); ok {
		s.muted = v
	}
	plist, _ := props["PropertyList"].Value().(map[string][]byte)
	s.identity = identity(ctx, plist, lookupPID)
	return s, s.identity != ""
}

// identity picks the application identity from a PulseAudio property list:
// the process binary, then the application name, then the process name of
// the owning PID.
func identity(ctx context.Context, plist map[string][]byte, lookupPID func(context.Context, int32) (string, error)) string {
	if bin := propString(plist, "application.process.binary"); bin != "" {
		return model.NormalizeIdentity(filepath.Base(bin))
	}
	if name := propString(plist, "application.name"); name != "" {
		return model.NormalizeIdentity(name)
	}
	if pidText := propString(plist, "application.process.id"); pidText != "" && lookupPID != nil {
		if pid, err := strconv.ParseInt(pidText, 10, 32); err == nil {
			if name, err := lookupPID(ctx, int32(pid)); err == nil {
				return model.NormalizeIdentity(name)
			}
		}
	}
	return ""
}

// propString decodes a NUL-terminated property value.
func propString(plist map[string][]byte, key string) string {
	return strings.TrimRight(string(plist[key]), "\x00")
}

func processName(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.NameWithContext(ctx)
}

func isGone(err error) bool {
	var value dbus.Error
	var ptr *dbus.Error
	var name string
	switch {
	case errors.As(err, &value):
		name = value.Name
	case errors.As(err, &ptr):
		name = ptr.Name
	default:
		return false
	}
	return slices.Contains(goneErrors, name)
}
