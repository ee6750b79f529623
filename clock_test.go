package avcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_ResetSeedsVideoClockAtZero(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)

	// videoCurrentPTSDrift is pre-seeded to -now, so reading the video
	// clock at the Reset instant must come back close to zero, not the
	// absolute wall-clock seconds an unseeded drift would give.
	v := c.VideoClock(now)
	assert.InDelta(t, 0, v, 0.01)
}

func TestClock_AudioClockAdvancesFromPTS(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)

	c.UpdateAudioClockFromPTS(12.5, now)
	assert.Equal(t, 12.5, c.AudioClock())
	assert.Equal(t, now, c.AudioWriteTime())
}

func TestClock_AudioClockAdvancesBySamplesWithoutPTS(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)

	// 48000Hz, 2 channels, 2 bytes/sample: 1 second of audio is
	// 48000*2*2 = 192000 bytes.
	c.AdvanceAudioClockBySamples(192000, 2, 48000, 2, now)
	assert.InDelta(t, 1.0, c.AudioClock(), 1e-9)
}

func TestClock_AdvanceAudioClockBySamplesIgnoresBadFormat(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)
	c.audioClock = 3.0

	c.AdvanceAudioClockBySamples(1000, 0, 48000, 2, now)
	assert.Equal(t, 3.0, c.AudioClock())
}

func TestClock_VideoClockFrozenWhilePaused(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)
	c.UpdateVideoPTS(5.0, now)
	c.SetPaused(true)

	later := now.Add(500 * time.Millisecond)
	assert.Equal(t, 5.0, c.VideoClock(later))
}

func TestClock_VideoClockAdvancesWithWallTimeWhilePlaying(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)
	c.UpdateVideoPTS(5.0, now)

	later := now.Add(200 * time.Millisecond)
	assert.InDelta(t, 5.2, c.VideoClock(later), 0.01)
}

func TestClock_OnPauseThenResumeHidesPausedInterval(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)
	c.UpdateAudioClockFromPTS(1.0, now)

	pauseAt := now.Add(100 * time.Millisecond)
	c.OnPause(pauseAt)
	assert.True(t, c.paused)

	resumeAt := pauseAt.Add(2 * time.Second)
	c.OnResume(resumeAt)
	assert.False(t, c.paused)

	// The audio write time should have been shifted forward by roughly
	// the paused duration, so a caller computing elapsed-since-write
	// right after resume sees close to zero, not the full 2s pause gap.
	elapsed := resumeAt.Sub(c.AudioWriteTime())
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestClock_UpdateExternalClockPTSReseedsDrift(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)

	c.UpdateExternalClockPTS(30.0, now)
	assert.InDelta(t, 30.0, c.ExternalClock(now), 1e-9)

	later := now.Add(time.Second)
	assert.InDelta(t, 31.0, c.ExternalClock(later), 0.01)
}

func TestClock_UpdateExternalClockSpeedIsUnwiredButFunctional(t *testing.T) {
	c := NewClock()
	now := time.Now()
	c.Reset(now)
	c.UpdateExternalClockPTS(10.0, now)

	c.UpdateExternalClockSpeed(1.0, now)
	assert.Equal(t, 1.0, c.externalSpeed)
}
