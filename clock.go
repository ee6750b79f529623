package avcore

import "time"

// Clock tracks the engine's three logical clocks: audio, video, and
// an external reference used during seek. All values are in seconds;
// reads convert from the stored drift/reference fields using the current
// wall time the way the original C player's get_*_clock helpers do.
//
// Every field here is guarded by the engine's queue mutex; Clock itself
// does no locking; callers (reader/decoder/renderer/engine code) hold the
// queue mutex for every method below.
type Clock struct {
	paused bool

	// audio clock
	audioClock     float64 // seconds
	audioWriteTime time.Time

	audioPauseTime  time.Time
	audioResumeTime time.Time

	// video clock
	videoCurrentPTS      float64 // seconds, latest displayed pts
	videoCurrentPTSDrift float64 // videoCurrentPTS - wallNow at last update

	// external clock
	externalClock      float64
	externalClockDrift float64
	externalClockTime  time.Time
	externalSpeed      float64 // kept at 1.0; see SPEC_FULL.md Open Question
}

// NewClock returns a Clock ready to seed via [Clock.Reset].
func NewClock() *Clock {
	return &Clock{externalSpeed: 1.0}
}

// Reset seeds the clock right after a container is opened, before any
// packet has been read. This mirrors player_open_input in the original
// implementation: the external clock is published at "now" and the video
// drift is pre-seeded to -now, so before the first frame is ever decoded
// [Clock.VideoClock] reads zero at the Reset instant and the wall time
// elapsed since Reset afterwards, rather than the absolute wall-clock
// seconds an unseeded drift would produce.
func (c *Clock) Reset(now time.Time) {
	c.paused = false
	c.audioClock = 0
	c.audioWriteTime = now
	c.audioPauseTime = now
	c.audioResumeTime = now
	c.videoCurrentPTS = 0
	c.videoCurrentPTSDrift = -float64(now.UnixNano()) / 1e9
	c.externalSpeed = 1.0
	c.updateExternalClockPTSAt(0, now)
}

// SetPaused flips the clock's paused bit; readers consult it to decide
// whether to report a frozen snapshot or a live, wall-clock-advancing
// value. Callers are responsible for the pause/resume bookkeeping in
// [Clock.OnPause]/[Clock.OnResume]; SetPaused only flips the bit.
func (c *Clock) SetPaused(paused bool) { c.paused = paused }

// AudioClock returns the current audio clock reading in seconds.
func (c *Clock) AudioClock() float64 { return c.audioClock }

// AudioWriteTime returns the wall-clock instant of the last audio write.
func (c *Clock) AudioWriteTime() time.Time { return c.audioWriteTime }

// UpdateAudioClockFromPTS advances the audio clock from a decoded packet's
// presentation timestamp (already converted to seconds) and stamps the
// write time to now. Used when the packet carries a pts.
func (c *Clock) UpdateAudioClockFromPTS(ptsSeconds float64, now time.Time) {
	c.audioClock = ptsSeconds
	c.audioWriteTime = now
}

// AdvanceAudioClockBySamples advances the audio clock by the duration of
// originalBytes of PCM at the given format, for packets with no PTS:
// they contribute to the audio clock by sample arithmetic instead.
func (c *Clock) AdvanceAudioClockBySamples(originalBytes, channels, sampleRate, bytesPerSample int, now time.Time) {
	if channels <= 0 || sampleRate <= 0 || bytesPerSample <= 0 {
		return
	}
	c.audioClock += float64(originalBytes) / float64(channels*sampleRate*bytesPerSample)
	c.audioWriteTime = now
}

// VideoClock returns the current video clock reading: the frozen
// videoCurrentPTS while paused, else the drift projected against now.
func (c *Clock) VideoClock(now time.Time) float64 {
	if c.paused {
		return c.videoCurrentPTS
	}
	return c.videoCurrentPTSDrift + float64(now.UnixNano())/1e9
}

// UpdateVideoPTS records a newly displayed frame's pts (seconds) and
// recomputes the drift against now.
func (c *Clock) UpdateVideoPTS(ptsSeconds float64, now time.Time) {
	c.videoCurrentPTS = ptsSeconds
	c.videoCurrentPTSDrift = ptsSeconds - float64(now.UnixNano())/1e9
}

// ExternalClock returns the current external clock reading.
func (c *Clock) ExternalClock(now time.Time) float64 {
	if c.paused {
		return c.externalClock
	}
	t := float64(now.UnixNano()) / 1e9
	ref := float64(c.externalClockTime.UnixNano()) / 1e9
	return c.externalClockDrift + t - (t-ref)*(1.0-c.externalSpeed)
}

// UpdateExternalClockPTS republishes the external clock to pts at the
// given wall time, recomputing drift. Used after a successful seek and
// immediately after container open.
func (c *Clock) UpdateExternalClockPTS(pts float64, now time.Time) {
	c.updateExternalClockPTSAt(pts, now)
}

func (c *Clock) updateExternalClockPTSAt(pts float64, now time.Time) {
	c.externalClockTime = now
	c.externalClock = pts
	c.externalClockDrift = pts - float64(now.UnixNano())/1e9
}

// UpdateExternalClockSpeed exists for parity with the original
// implementation's dead speed-adjustment routine: the external-clock-
// speed adjustment exists in the sources but is unreferenced. It
// republishes the clock at the current reading and changes the speed
// factor used by future [Clock.ExternalClock] reads. Nothing on [Engine]
// calls this; it is kept only so a future variable-rate feature has
// somewhere to plug in.
func (c *Clock) UpdateExternalClockSpeed(speed float64, now time.Time) {
	c.updateExternalClockPTSAt(c.ExternalClock(now), now)
	c.externalSpeed = speed
}

// OnPause republishes the external clock at its current reading, marks
// the clock paused and snapshots audioPauseTime; call while holding the
// queue mutex, as part of the same critical section that sets the
// engine's paused flag.
func (c *Clock) OnPause(now time.Time) {
	c.UpdateExternalClockPTS(c.ExternalClock(now), now)
	c.paused = true
	c.audioPauseTime = now
}

// OnResume runs the pause/resume bookkeeping: hides the paused
// interval from the audio write-time clock and recomputes video drift and
// the external clock against the new wall time.
func (c *Clock) OnResume(now time.Time) {
	c.paused = false
	c.audioResumeTime = now
	if c.audioWriteTime.Before(c.audioPauseTime) {
		c.audioWriteTime = c.audioResumeTime
	} else if c.audioWriteTime.Before(c.audioResumeTime) {
		c.audioWriteTime = c.audioWriteTime.Add(c.audioResumeTime.Sub(c.audioPauseTime))
	}
	c.videoCurrentPTSDrift = c.videoCurrentPTS - float64(now.UnixNano())/1e9
	c.UpdateExternalClockPTS(c.ExternalClock(now), now)
}
