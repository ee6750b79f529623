package avcore

import "time"

// decoderLoop is a stream's decoder thread. One runs per active
// stream between Open and Stop.
func (e *Engine) decoderLoop(kind StreamKind) {
	defer e.decoderWg.Done()
	st := e.state
	for {
		st.mu.Lock()
		stop := st.stopRequested[kind]
		flush := st.flushRequested[kind]
		paused := st.paused
		st.mu.Unlock()

		if stop {
			e.decoderDrain(kind)
			st.mu.Lock()
			st.clearFanOut_Locked(st.stopRequested, kind)
			st.mu.Unlock()
			return
		}
		if flush {
			e.decoderDrain(kind)
			st.mu.Lock()
			st.clearFanOut_Locked(st.flushRequested, kind)
			st.mu.Unlock()
			continue
		}
		if paused {
			time.Sleep(e.opts.PausePollInterval)
			continue
		}

		q := e.packetQueues[kind]
		slot, _, ok := q.PopStart(func() (CheckResult, int) {
			if st.stopRequested[kind] {
				return CheckSkip, tagStop
			}
			if st.flushRequested[kind] {
				return CheckSkip, tagFlush
			}
			return CheckTest, 0
		})
		if !ok {
			continue
		}
		note := *q.Slot(slot)
		q.PopFinish(slot)

		if note.eos {
			if kind == StreamVideo {
				e.pushEOSFrame()
			}
			continue
		}

		var err error
		switch kind {
		case StreamAudio:
			err = e.decodeAudio()
		case StreamVideo:
			err = e.decodeVideo()
		}
		if err != nil {
			pkgLogger.Printf("[%s] decoder(%s): %v", st.sessionID, kind, err)
			e.decoderDrain(kind)
		}
	}
}

// decoderDrain is the non-blocking flush/stop drain: pop every
// remaining packet, freeing each, then for video either drain the frame
// queue directly (no renderer attached) or fan the drain out to the
// renderer via flush_video_play (renderer attached).
func (e *Engine) decoderDrain(kind StreamKind) {
	q := e.packetQueues[kind]
	for {
		slot, ok := q.PopStartNonblocking()
		if !ok {
			break
		}
		q.PopFinish(slot)
	}

	switch kind {
	case StreamAudio:
		if e.audioSink != nil {
			e.audioSink.Flush()
		}
	case StreamVideo:
		st := e.state
		st.mu.Lock()
		rendering := st.rendering
		st.mu.Unlock()
		if !rendering {
			e.drainFrameQueue()
			return
		}
		st.mu.Lock()
		st.flushVideoPlay = true
		st.cond.Broadcast()
		for st.flushVideoPlay {
			st.cond.Wait()
		}
		st.mu.Unlock()
	}
}

// drainFrameQueue empties the video frame queue non-blocking, releasing
// every host-owned bitmap buffer back to its slot's free state without
// presenting it.
func (e *Engine) drainFrameQueue() {
	for {
		slot, ok := e.frameQueue.PopStartNonblocking()
		if !ok {
			return
		}
		e.frameQueue.PopFinish(slot)
	}
}

// pushEOSFrame commits an EOS-marked slot to the video frame queue so the
// renderer observes end-of-stream even if the video decoder was otherwise
// idle. Silently drops if the push is itself skipped for flush/stop,
// since in that case the renderer will never observe it anyway, and the
// next seek/decoder pass starts clean.
func (e *Engine) pushEOSFrame() {
	st := e.state
	slot, _, ok := e.frameQueue.PushStart(func() (CheckResult, int) {
		if st.stopRequested[StreamVideo] {
			return CheckSkip, tagStop
		}
		if st.flushRequested[StreamVideo] {
			return CheckSkip, tagFlush
		}
		return CheckTest, 0
	})
	if !ok {
		return
	}
	fs := e.frameQueue.Slot(slot)
	fs.eos = true
	e.frameQueue.PushFinish(slot)
}

// decodeAudio decodes and resamples one audio packet.
func (e *Engine) decodeAudio() error {
	frame, ok, err := e.audioStream.ReadFrame()
	if err != nil {
		return err
	}
	if !ok || frame == nil {
		return nil
	}

	inFmt := e.audioStream.SampleFormat()
	pcm := frame.PCM
	if e.resampler != nil {
		pcm, err = e.resamplePCM(inFmt, pcm)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	st := e.state
	st.mu.Lock()
	if frame.HasPTS {
		st.clock.UpdateAudioClockFromPTS(frame.PTS, now)
	} else {
		st.clock.AdvanceAudioClockBySamples(len(frame.PCM), inFmt.Channels, inFmt.SampleRate, inFmt.BytesPerSample, now)
	}
	st.cond.Broadcast()
	st.mu.Unlock()

	if e.audioSink == nil {
		return nil
	}
	n, werr := e.audioSink.WriteSamples(pcm)
	if werr != nil || n < 0 {
		return statusErr(StatusAudioWriteFailed, werr)
	}
	return nil
}

// resamplePCM resamples pcm into e.resampleScratch, reinitializing the
// resampler and growing the scratch buffer if it overflows or is exactly
// filled (an exact fill signals likely truncation).
func (e *Engine) resamplePCM(inFmt SampleFormat, pcm []byte) ([]byte, error) {
	n, err := e.resampler.Resample(e.resampleScratch, pcm)
	if err != nil {
		pkgLogger.Printf("[%s] decoder(audio): resample buffer overflow, reinitializing", e.state.sessionID)
		if rerr := e.reinitResampler(inFmt); rerr != nil {
			return nil, rerr
		}
		n, err = e.resampler.Resample(e.resampleScratch, pcm)
		if err != nil {
			return nil, statusErr(StatusResamplerFailed, err)
		}
	}
	out := e.resampleScratch[:n]
	if n == len(e.resampleScratch) {
		pkgLogger.Printf("[%s] decoder(audio): resample output exactly filled scratch buffer, reinitializing", e.state.sessionID)
		if rerr := e.reinitResampler(inFmt); rerr != nil {
			return nil, rerr
		}
	}
	return out, nil
}

func (e *Engine) reinitResampler(inFmt SampleFormat) error {
	r, err := NewLinearResampler(inFmt.SampleRate, inFmt.Channels, e.sinkFmt.SampleRate, e.sinkFmt.Channels)
	if err != nil {
		return statusErr(StatusResamplerFailed, err)
	}
	e.resampler = r
	e.resampleScratch = make([]byte, len(e.resampleScratch)*2)
	return nil
}

// decodeVideo decodes and scales one video packet.
func (e *Engine) decodeVideo() error {
	frame, ok, err := e.videoStream.ReadFrame()
	if err != nil {
		return err
	}
	if !ok || frame == nil {
		return nil
	}

	st := e.state
	slot, _, pushed := e.frameQueue.PushStart(func() (CheckResult, int) {
		if st.stopRequested[StreamVideo] {
			return CheckSkip, tagStop
		}
		if st.flushRequested[StreamVideo] {
			return CheckSkip, tagFlush
		}
		return CheckTest, 0
	})
	if !pushed {
		return nil
	}
	fs := e.frameQueue.Slot(slot)

	pixels, lerr := e.frameSink.LockPixels(fs.handle)
	if lerr != nil {
		e.frameQueue.PushFinish(slot)
		return statusErr(StatusBitmapLockFailed, lerr)
	}
	scaled, serr := e.scaler.Scale(frame.RGBA, frame.Width, frame.Height)
	if serr == nil {
		copy(pixels, scaled)
	}
	e.frameSink.UnlockPixels(fs.handle)

	fs.eos = false
	fs.frame.PTS = frame.PTS
	fs.frame.Width = frame.Width
	fs.frame.Height = frame.Height
	fs.frame.RGBA = pixels
	e.frameQueue.PushFinish(slot)

	if serr != nil {
		return statusErr(StatusScalerFailed, serr)
	}
	return nil
}
