package avcore

import (
	"sync"
	"time"
)

// noSeek is the sentinel for "seekPosition" meaning no seek is pending.
// Seconds are always >= 0 during playback, so a negative value is unused.
const noSeek = -1.0

// engineState is the single mutable record protected by the queue mutex.
// Every pipeline thread (reader, decoders, renderer) reads and writes it
// only while holding mu; mu/cond are shared by every BoundedQueue the
// engine owns, so a broadcast on one queue's condition wakes waiters on
// all of them.
type engineState struct {
	mu   sync.Mutex
	cond *sync.Cond

	playing           bool
	paused            bool
	stopping          bool
	rendering         bool
	interruptRenderer bool
	flushVideoPlay    bool

	seekPosition float64 // seconds, or noSeek

	// Fan-out barriers: set by the initiator (reader for flush/stop),
	// cleared by each worker (a decoder) once it has finished its local
	// drain. Keyed by StreamKind so assertions can name which stream is
	// still outstanding.
	flushRequested map[StreamKind]bool
	stopRequested  map[StreamKind]bool

	clock *Clock

	videoDuration    float64
	lastReportedTime float64

	sessionID string
}

func newEngineState() *engineState {
	s := &engineState{
		seekPosition:   noSeek,
		flushRequested: make(map[StreamKind]bool, 2),
		stopRequested:  make(map[StreamKind]bool, 2),
		clock:          NewClock(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// activeStreams returns the stream kinds currently attached to the
// pipeline, used to drive fan-out barriers over exactly the live streams.
func (s *engineState) activeStreams(hasAudio bool) []StreamKind {
	kinds := []StreamKind{StreamVideo}
	if hasAudio {
		kinds = append(kinds, StreamAudio)
	}
	return kinds
}

// beginFanOut_Locked flips every active stream's flag in table to true and
// broadcasts. Caller holds mu.
func (s *engineState) beginFanOut_Locked(table map[StreamKind]bool, active []StreamKind) {
	for _, k := range active {
		table[k] = true
	}
	s.cond.Broadcast()
}

// waitFanOutDone_Locked blocks until every active stream's flag in table
// has been cleared by its worker. Caller holds mu; releases it while
// waiting on cond, like every other use of cond.Wait here.
func (s *engineState) waitFanOutDone_Locked(table map[StreamKind]bool, active []StreamKind) {
	for {
		done := true
		for _, k := range active {
			if table[k] {
				done = false
				break
			}
		}
		if done {
			return
		}
		s.cond.Wait()
	}
}

// clearFanOut_Locked clears a single stream's flag in table and broadcasts;
// called by a worker once it has finished its local drain for that flag.
func (s *engineState) clearFanOut_Locked(table map[StreamKind]bool, kind StreamKind) {
	table[kind] = false
	s.cond.Broadcast()
}

// condWaitTimeout waits on cond for at most d. sync.Cond has no native
// timed wait, so a timer broadcasts after d to wake every waiter; a real
// state-change broadcast during the same window wakes it early exactly as
// cond.Wait would. Caller holds mu, as with any cond.Wait.
func (s *engineState) condWaitTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()
	s.cond.Wait()
}
