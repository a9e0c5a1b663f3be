package fade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoduck/internal/audio"
)

func waitJob(t *testing.T, j *Job) {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("fade job %s for %s did not finish", j.ID, j.Identity)
	}
}

func TestBeginFade_ZeroDurationAppliesImmediately(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	c := NewController(dir, nil)

	j := c.BeginFade("spotify", 0.15, 0)
	waitJob(t, j)

	assert.Equal(t, []float64{0.15}, dir.Writes("spotify"))
}

func TestBeginFade_RisingIsMonotonicAndExact(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 0.2, 0)
	c := NewController(dir, nil)

	j := c.BeginFade("spotify", 1, 40*time.Millisecond)
	waitJob(t, j)

	writes := dir.Writes("spotify")
	require.Len(t, writes, DefaultSteps)
	for i := 1; i < len(writes); i++ {
		assert.GreaterOrEqual(t, writes[i], writes[i-1], "step %d", i)
	}
	assert.Equal(t, 1.0, writes[len(writes)-1])
	assert.InDelta(t, 0.24, writes[0], 1e-9)
}

func TestBeginFade_FallingIsMonotonic(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("vlc", 1, 0)
	c := NewController(dir, nil, WithSteps(5))

	j := c.BeginFade("VLC", 0.15, 10*time.Millisecond)
	waitJob(t, j)

	writes := dir.Writes("vlc")
	require.Len(t, writes, 5)
	for i := 1; i < len(writes); i++ {
		assert.LessOrEqual(t, writes[i], writes[i-1], "step %d", i)
	}
	assert.Equal(t, 0.15, writes[4])
}

func TestBeginFade_TakesAboutTheRequestedDuration(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	c := NewController(dir, nil)

	start := time.Now()
	j := c.BeginFade("spotify", 0, 100*time.Millisecond)
	waitJob(t, j)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestBeginFade_NewestRequestWins(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	c := NewController(dir, nil)

	first := c.BeginFade("spotify", 0, 400*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	second := c.BeginFade("spotify", 0.8, 40*time.Millisecond)

	waitJob(t, first)
	waitJob(t, second)

	v, err := dir.Volume(context.Background(), "spotify")
	require.NoError(t, err)
	assert.Equal(t, 0.8, v)

	// Nothing from the superseded job lands later.
	count := dir.WriteCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, dir.WriteCount())
	v, _ = dir.Volume(context.Background(), "spotify")
	assert.Equal(t, 0.8, v)
}

func TestBeginFade_SupersededJobStartsFromPartialVolume(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	c := NewController(dir, nil)

	first := c.BeginFade("spotify", 0, 200*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	second := c.BeginFade("spotify", 1, 300*time.Millisecond)
	waitJob(t, first)
	waitJob(t, second)

	writes := dir.Writes("spotify")
	require.NotEmpty(t, writes)
	// The second job ramps up from wherever the first left off, so the
	// sequence falls, then rises monotonically to 1.
	lowest := 0
	for i, w := range writes {
		if w < writes[lowest] {
			lowest = i
		}
	}
	assert.Greater(t, writes[lowest], 0.0)
	for i := lowest + 1; i < len(writes); i++ {
		assert.GreaterOrEqual(t, writes[i], writes[i-1])
	}
	assert.Equal(t, 1.0, writes[len(writes)-1])
}

func TestBeginFade_SessionGoneAbandonsJob(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	c := NewController(dir, nil)

	j := c.BeginFade("spotify", 0, 200*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	dir.Remove("spotify")
	waitJob(t, j)

	assert.Less(t, len(dir.Writes("spotify")), DefaultSteps)
	assert.False(t, c.IsFading("spotify"))
}

func TestBeginFade_MissingSessionWritesNothing(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	c := NewController(dir, nil)

	j := c.BeginFade("ghost", 0.5, 10*time.Millisecond)
	waitJob(t, j)

	assert.Zero(t, dir.WriteCount())
}

func TestController_ActiveAndWait(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	dir.Add("vlc", 1, 0)
	c := NewController(dir, nil)

	c.BeginFade("spotify", 0, 100*time.Millisecond)
	c.BeginFade("vlc", 0, 100*time.Millisecond)

	assert.ElementsMatch(t, []string{"spotify", "vlc"}, c.Active())
	assert.True(t, c.IsFading("Spotify"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	assert.Empty(t, c.Active())
}

func TestController_WaitHonoursContext(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	c := NewController(dir, nil)
	defer c.Close()

	c.BeginFade("spotify", 0, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
}

func TestController_CloseCancelsJobs(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	dir.Add("spotify", 1, 0)
	c := NewController(dir, nil)

	j := c.BeginFade("spotify", 0, 2*time.Second)
	time.Sleep(20 * time.Millisecond)
	c.Close()
	waitJob(t, j)

	v, err := dir.Volume(context.Background(), "spotify")
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
}

func TestController_DropsIdleSlots(t *testing.T) {
	dir := audio.NewMemoryDirectory()
	c := NewController(dir, nil)
	defer c.Close()

	slots := func() int {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.slots)
	}

	for _, id := range []string{"spotify", "vlc", "mpv"} {
		dir.Add(id, 1, 0)
		waitJob(t, c.BeginFade(id, 0.5, 0))
	}
	assert.Zero(t, slots())

	first := c.BeginFade("spotify", 0, 200*time.Millisecond)
	second := c.BeginFade("spotify", 1, 300*time.Millisecond)
	waitJob(t, first)
	assert.Equal(t, 1, slots(), "a superseded job leaves its successor's slot in place")
	waitJob(t, second)
	assert.Zero(t, slots())
}
