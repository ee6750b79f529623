package avcore

import "time"

// packetNote is the packet queue's payload. reisen couples read and
// decode (media.ReadPacket routes a packet internally; the owning
// stream's ReadVideoFrame/ReadAudioFrame then decodes it), so the queue
// does not carry a duplicated packet object the way a raw FFmpeg binding
// would — it carries a note telling the decoder a packet is ready to
// decode on its stream, or that the container has ended.
type packetNote struct {
	eos bool
}

// readerLoop is the demuxer/reader thread. One runs per Engine
// between Open and Stop.
func (e *Engine) readerLoop() {
	defer e.readerWg.Done()
	st := e.state
	for {
		st.mu.Lock()
		stopping := st.stopping
		seeking := st.seekPosition != noSeek
		paused := st.paused
		st.mu.Unlock()

		if stopping {
			e.readerStop()
			return
		}
		if seeking {
			e.readerSeek()
			continue
		}
		if paused {
			time.Sleep(e.opts.PausePollInterval)
			continue
		}

		kind, ok, err := e.demux.ReadPacket()
		if err != nil {
			pkgLogger.Printf("[%s] reader: read error: %v", st.sessionID, err)
			e.readerStop()
			return
		}
		if !ok {
			if !e.pushNote(StreamVideo, packetNote{eos: true}) {
				continue
			}
			st.mu.Lock()
			for st.seekPosition == noSeek && !st.stopping {
				st.cond.Wait()
			}
			st.mu.Unlock()
			continue
		}
		if kind == StreamDropped {
			continue
		}
		e.pushNote(kind, packetNote{})
	}
}

// pushNote commits note to kind's packet queue, aborting if the shared
// predicate skips for stop or seek. Returns false when skipped; the
// caller re-evaluates state at the top of its own loop in that case.
func (e *Engine) pushNote(kind StreamKind, note packetNote) bool {
	q := e.packetQueues[kind]
	if q == nil {
		return true
	}
	st := e.state
	slot, _, ok := q.PushStart(func() (CheckResult, int) {
		if st.stopping {
			return CheckSkip, tagStop
		}
		if st.seekPosition != noSeek {
			return CheckSkip, tagSeek
		}
		return CheckTest, 0
	})
	if !ok {
		return false
	}
	*q.Slot(slot) = note
	q.PushFinish(slot)
	return true
}

// readerSeek rescales and requests the seek, fans out a flush to every
// active stream, then republishes the external clock.
func (e *Engine) readerSeek() {
	st := e.state
	st.mu.Lock()
	position := st.seekPosition
	st.mu.Unlock()

	if err := e.demux.Seek(time.Duration(position * float64(time.Second))); err != nil {
		pkgLogger.Printf("[%s] reader: seek to %.3fs failed, resuming from current position: %v", st.sessionID, position, err)
		st.mu.Lock()
		st.seekPosition = noSeek
		st.cond.Broadcast()
		st.mu.Unlock()
		return
	}

	active := st.activeStreams(e.hasAudio)
	st.mu.Lock()
	st.beginFanOut_Locked(st.flushRequested, active)
	st.mu.Unlock()

	if e.audioSink != nil {
		e.audioSink.Flush()
	}

	st.mu.Lock()
	st.cond.Broadcast()
	st.waitFanOutDone_Locked(st.flushRequested, active)
	st.seekPosition = noSeek
	st.clock.UpdateExternalClockPTS(position, time.Now())
	st.cond.Broadcast()
	st.mu.Unlock()
}

// readerStop fans out a stop request to every active stream and waits
// for every decoder to acknowledge it.
func (e *Engine) readerStop() {
	st := e.state
	active := st.activeStreams(e.hasAudio)
	st.mu.Lock()
	st.beginFanOut_Locked(st.stopRequested, active)
	st.waitFanOutDone_Locked(st.stopRequested, active)
	st.mu.Unlock()
}
