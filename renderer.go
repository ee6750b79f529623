package avcore

import "time"

// frameSlot is the video output queue's payload: a host-allocated bitmap
// handle reused across pushes, and the decoded frame header currently
// backed by it.
type frameSlot struct {
	eos    bool
	handle any
	frame  VideoFrame
}

// RenderStart begins renderer pacing. Calling it while already
// rendering is a programmer error, matching the original's fatal
// assertion on a double render_start.
func (e *Engine) RenderStart() {
	st := e.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rendering {
		panic("avcore: render_start called while already rendering")
	}
	st.rendering = true
	st.interruptRenderer = false
	st.cond.Broadcast()
}

// RenderStop stops renderer pacing and interrupts any blocked RenderFrame.
func (e *Engine) RenderStop() {
	st := e.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.rendering {
		panic("avcore: render_stop called while not rendering")
	}
	st.rendering = false
	st.interruptRenderer = true
	st.cond.Broadcast()
}

// RenderFrame pulls the next video frame in host rhythm. It blocks
// at most MaxRenderWait per wake, sleeping out the audio-slaved (or, in
// video-only mode, video-clock-slaved) pacing delay. End-of-stream is
// reported through [Engine.OnUpdateTime] with finished=true, after which
// RenderFrame keeps waiting for the next frame; the finished result is
// always false. err is [ErrInterrupted] if RenderStop fired while waiting.
func (e *Engine) RenderFrame() (frame *VideoFrame, finished bool, err error) {
	st := e.state
	for {
		slot, tag, ok := e.frameQueue.PopStart(func() (CheckResult, int) {
			if st.interruptRenderer {
				return CheckSkip, tagInterrupt
			}
			if st.flushVideoPlay {
				return CheckSkip, tagFlush
			}
			if st.paused || st.stopping {
				return CheckWait, 0
			}
			return CheckTest, 0
		})
		if !ok {
			if tag == tagInterrupt {
				return nil, false, ErrInterrupted
			}
			// tagFlush: the predicate itself fired before any frame was
			// ever popped, so there is nothing for us to release.
			e.drainFrameQueue()
			st.mu.Lock()
			st.flushVideoPlay = false
			st.cond.Broadcast()
			st.mu.Unlock()
			continue
		}

		fs := e.frameQueue.Slot(slot)
		if fs.eos {
			st.mu.Lock()
			st.lastReportedTime = st.videoDuration
			st.mu.Unlock()
			e.reportUpdateTime(true)
			e.frameQueue.PopFinish(slot)
			continue
		}

		switch e.paceFrame(slot) {
		case paceInterrupted:
			return nil, false, ErrInterrupted
		case paceFlushed:
			continue // slot already released; retry from the top
		}

		now := time.Now()
		st.mu.Lock()
		st.lastReportedTime = fs.frame.PTS
		st.clock.UpdateVideoPTS(fs.frame.PTS, now)
		st.mu.Unlock()

		e.lastFrameSlot = slot
		e.haveLastFrameSlot = true
		out := fs.frame
		e.reportUpdateTime(false)
		return &out, false, nil
	}
}

type paceOutcome int

const (
	paceReady paceOutcome = iota
	paceInterrupted
	paceFlushed
)

// paceFrame sleeps out the frame already popped into slot:
// sleeps out the pts-vs-clock delta, waking early on interrupt or flush.
// Each wait is capped at MaxRenderWait; a wait that runs to its timeout
// presents the frame. On paceInterrupted/paceFlushed, slot has already
// been released back to the free ring.
func (e *Engine) paceFrame(slot int) paceOutcome {
	st := e.state
	fs := e.frameQueue.Slot(slot)
	timedOut := false
	st.mu.Lock()
	for {
		if st.interruptRenderer {
			st.mu.Unlock()
			e.frameQueue.PopFinish(slot)
			return paceInterrupted
		}
		if st.flushVideoPlay {
			st.mu.Unlock()
			e.frameQueue.PopFinish(slot)
			e.drainFrameQueue()
			st.mu.Lock()
			st.flushVideoPlay = false
			st.cond.Broadcast()
			st.mu.Unlock()
			return paceFlushed
		}
		if timedOut {
			st.mu.Unlock()
			return paceReady
		}

		now := time.Now()
		sleepMs := e.sleepMillis(fs.frame.PTS, now)
		if sleepMs <= float64(e.opts.MinSleep/time.Millisecond) {
			st.mu.Unlock()
			return paceReady
		}
		wait := time.Duration(sleepMs) * time.Millisecond
		if wait > e.opts.MaxRenderWait {
			wait = e.opts.MaxRenderWait
		}
		start := time.Now()
		st.condWaitTimeout(wait)
		timedOut = time.Since(start) >= wait
	}
}

// sleepMillis computes the pacing delay: audio-slaved when an
// audio stream is selected, video-clock-slaved in video-only mode.
func (e *Engine) sleepMillis(pts float64, now time.Time) float64 {
	st := e.state
	if e.hasAudio {
		ptsDeltaMs := (pts - st.clock.AudioClock()) * 1000
		wallDeltaMs := float64(now.Sub(st.clock.AudioWriteTime())) / float64(time.Millisecond)
		return ptsDeltaMs - wallDeltaMs
	}
	return (pts - st.clock.VideoClock(now)) * 1000
}

// ReleaseFrame releases the slot returned by the most recent successful
// RenderFrame. The host must call this exactly once per such call.
func (e *Engine) ReleaseFrame() {
	if !e.haveLastFrameSlot {
		return
	}
	e.frameQueue.PopFinish(e.lastFrameSlot)
	e.haveLastFrameSlot = false
}

func (e *Engine) reportUpdateTime(finished bool) {
	if e.OnUpdateTime == nil {
		return
	}
	st := e.state
	st.mu.Lock()
	current := st.lastReportedTime
	duration := st.videoDuration
	st.mu.Unlock()
	e.OnUpdateTime(current, duration, finished)
}
