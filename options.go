package avcore

import "time"

// Options configures capacities and timeouts that the C/JNI-style original
// hard-coded as constants; the spec calls out the default values (100
// packet slots, 8 RGB frame slots, 10ms pause poll, 1000ms max render
// wait, 7s open timeout) as defaults, not fixed limits.
type Options struct {
	// PacketQueueCapacity is the slot count for each per-stream packet
	// queue. Default 100.
	PacketQueueCapacity int
	// FrameQueueCapacity is the slot count for the video RGB frame
	// queue. Default 8.
	FrameQueueCapacity int
	// PausePollInterval is how long the reader/decoder threads sleep
	// between predicate re-checks while paused. Default 10ms.
	PausePollInterval time.Duration
	// MaxRenderWait caps how long render_frame waits on the condition
	// for a future pts before presenting anyway. Default 1000ms.
	MaxRenderWait time.Duration
	// MinSleep is the renderer's break-and-present threshold. Default 2ms.
	MinSleep time.Duration
	// OpenTimeout bounds how long Open waits for the container open to
	// return before failing with StatusOpenFailed. Default 7s. The open
	// itself is not interrupted: it keeps running in the background and
	// its demuxer is closed when it finishes, and Stop has no effect on
	// it.
	OpenTimeout time.Duration
	// WantAudio enables audio stream selection; false disables it even if
	// the container has an audio stream, producing video-only mode.
	WantAudio bool
	// VideoStreamIndex/AudioStreamIndex select a specific stream by its
	// position among the container's streams of that kind (0 is the first
	// video or audio stream); -1 means auto (first stream of that kind).
	VideoStreamIndex int
	AudioStreamIndex int
}

// DefaultOptions returns the option set matching the original
// implementation's hard-coded constants.
func DefaultOptions() Options {
	return Options{
		PacketQueueCapacity: 100,
		FrameQueueCapacity:  8,
		PausePollInterval:   10 * time.Millisecond,
		MaxRenderWait:       1000 * time.Millisecond,
		MinSleep:            2 * time.Millisecond,
		OpenTimeout:         7 * time.Second,
		WantAudio:           true,
		VideoStreamIndex:    -1,
		AudioStreamIndex:    -1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PacketQueueCapacity <= 0 {
		o.PacketQueueCapacity = d.PacketQueueCapacity
	}
	if o.FrameQueueCapacity <= 0 {
		o.FrameQueueCapacity = d.FrameQueueCapacity
	}
	if o.PausePollInterval <= 0 {
		o.PausePollInterval = d.PausePollInterval
	}
	if o.MaxRenderWait <= 0 {
		o.MaxRenderWait = d.MaxRenderWait
	}
	if o.MinSleep <= 0 {
		o.MinSleep = d.MinSleep
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = d.OpenTimeout
	}
	return o
}
