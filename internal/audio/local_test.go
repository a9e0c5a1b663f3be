package audio

import (
	"context"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = beep.SampleRate(44100)

// constant emits n stereo samples of the given amplitude.
type constant struct {
	amp       float64
	remaining int
}

func (c *constant) Stream(samples [][2]float64) (int, bool) {
	if c.remaining <= 0 {
		return 0, false
	}
	n := min(len(samples), c.remaining)
	for i := range n {
		samples[i] = [2]float64{c.amp, -c.amp}
	}
	c.remaining -= n
	return n, true
}

func (c *constant) Err() error { return nil }

func newTestBuffer(amp float64, n int) *beep.Buffer {
	buf := beep.NewBuffer(beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2})
	buf.Append(&constant{amp: amp, remaining: n})
	return buf
}

func newTestLocal(t *testing.T) (*LocalDirectory, *time.Time) {
	t.Helper()
	d := NewLocalDirectory(testRate, nil)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }
	return d, &now
}

func TestLocalDirectory_MixAndMeter(t *testing.T) {
	d, _ := newTestLocal(t)
	d.AddBuffer("Discord", newTestBuffer(0.5, 1000), false)

	samples := make([][2]float64, 100)
	n, ok := d.Stream(samples)
	require.True(t, ok)
	require.Equal(t, 100, n)
	assert.InDelta(t, 0.5, samples[0][0], 1e-3)
	assert.InDelta(t, -0.5, samples[0][1], 1e-3)

	peak, err := d.Peak(context.Background(), "discord")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, peak, 1e-3)
}

func TestLocalDirectory_SetVolumeAppliesLinearGain(t *testing.T) {
	d, _ := newTestLocal(t)
	d.AddBuffer("spotify", newTestBuffer(0.5, 1000), true)

	require.NoError(t, d.SetVolume(context.Background(), "spotify", 0.2))

	samples := make([][2]float64, 10)
	d.Stream(samples)
	assert.InDelta(t, 0.1, samples[0][0], 1e-3)

	v, err := d.Volume(context.Background(), "spotify")
	require.NoError(t, err)
	assert.Equal(t, 0.2, v)

	// The meter reads the signal before gain.
	peak, err := d.Peak(context.Background(), "spotify")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, peak, 1e-3)
}

func TestLocalDirectory_PeakDecays(t *testing.T) {
	d, now := newTestLocal(t)
	d.AddBuffer("discord", newTestBuffer(0.8, 100), true)

	d.Stream(make([][2]float64, 50))
	*now = now.Add(peakWindow + time.Millisecond)

	peak, err := d.Peak(context.Background(), "discord")
	require.NoError(t, err)
	assert.Zero(t, peak)
}

func TestLocalDirectory_NonLoopingSessionEnds(t *testing.T) {
	d, _ := newTestLocal(t)
	d.AddBuffer("chime", newTestBuffer(0.3, 50), false)

	d.Stream(make([][2]float64, 100))

	_, err := d.Peak(context.Background(), "chime")
	assert.ErrorIs(t, err, ErrSessionGone)
	assert.ErrorIs(t, d.SetVolume(context.Background(), "chime", 1), ErrSessionGone)

	sessions, err := d.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestLocalDirectory_LoopingSessionFillsBuffer(t *testing.T) {
	d, _ := newTestLocal(t)
	d.AddBuffer("music", newTestBuffer(0.25, 30), true)

	samples := make([][2]float64, 100)
	d.Stream(samples)
	assert.InDelta(t, 0.25, samples[99][0], 1e-3)

	sessions, err := d.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "music", sessions[0].Identity)
	assert.Equal(t, 1.0, sessions[0].Volume)
}

func TestLocalDirectory_MutedSessionIsSilentButMetered(t *testing.T) {
	d, _ := newTestLocal(t)
	d.AddBuffer("discord", newTestBuffer(0.5, 1000), true)
	require.NoError(t, d.SetMuted("discord", true))

	samples := make([][2]float64, 10)
	d.Stream(samples)
	assert.Zero(t, samples[0][0])

	sessions, err := d.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Muted)
	assert.InDelta(t, 0.5, sessions[0].Peak, 1e-3)
}

func TestLoadSound_UnsupportedFormat(t *testing.T) {
	_, err := LoadSound("/nonexistent/file.flac")
	assert.Error(t, err)
}
