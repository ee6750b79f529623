package avcore

import "time"

// StreamKind distinguishes the two media types the engine pipelines.
type StreamKind int

const (
	StreamVideo StreamKind = iota
	StreamAudio
	// StreamDropped is returned by [Demuxer.ReadPacket] for a packet that
	// belongs to a stream the engine did not select (extra audio/video
	// streams, subtitles); the reader drops it and reads the next one.
	StreamDropped
)

func (k StreamKind) String() string {
	switch k {
	case StreamAudio:
		return "audio"
	case StreamDropped:
		return "dropped"
	default:
		return "video"
	}
}

// VideoFrame is one decoded, already RGB-converted video frame together
// with its presentation timestamp in seconds.
type VideoFrame struct {
	PTS    float64
	Width  int
	Height int
	// RGBA holds width*height*4 bytes, row-major, matching image.RGBA's
	// layout so a [FrameSink] can wrap it directly.
	RGBA []byte
}

// AudioFrame is one decoded PCM chunk together with its presentation
// timestamp in seconds. HasPTS is false for packets the demuxer could not
// timestamp; the audio clock then advances by sample arithmetic
// instead of by PTS.
type AudioFrame struct {
	PTS    float64
	HasPTS bool
	// PCM holds interleaved samples in the format reported by
	// AudioStream.SampleFormat.
	PCM []byte
}

// SampleFormat describes the layout of an AudioStream's decoded PCM.
type SampleFormat struct {
	SampleRate     int
	Channels       int
	BytesPerSample int // per channel, e.g. 2 for signed 16-bit
}

// VideoStream is the demuxer's video decode surface. Implementations wrap
// a concrete library's per-stream decoder (see reisen_demux.go).
type VideoStream interface {
	// ReadFrame blocks until the next video frame belonging to this
	// stream has been decoded from the most recently read packet, or
	// returns false once the demuxer reports no more frames are
	// forthcoming for this stream (EOF).
	ReadFrame() (frame *VideoFrame, ok bool, err error)
	Width() int
	Height() int
	FrameRate() float64
	// Duration returns this stream's own duration, used as the first
	// rung of the supplemented duration fallback chain (SPEC_FULL.md).
	Duration() (time.Duration, error)
}

// AudioStream is the demuxer's audio decode surface.
type AudioStream interface {
	ReadFrame() (frame *AudioFrame, ok bool, err error)
	SampleFormat() SampleFormat
	// Duration returns this stream's own duration, the fallback chain's
	// second rung.
	Duration() (time.Duration, error)
}

// Demuxer opens a container and exposes at most one selected video stream
// and one selected audio stream. A concrete implementation backs this
// with a real demux/decode library (reisen_demux.go backs it with
// github.com/erparts/reisen); tests back it with an in-memory fake.
type Demuxer interface {
	// ReadPacket reads and routes the next packet from the container to
	// whichever stream it belongs to.
	// ok is false at end of stream. The returned kind tells the
	// caller which stream's ReadFrame to drive next, matching the
	// coupled read+decode shape of the underlying library; StreamDropped
	// means the packet belonged to an unselected stream and callers
	// should loop back to ReadPacket without routing anywhere.
	ReadPacket() (kind StreamKind, ok bool, err error)

	VideoStream() (VideoStream, bool)
	AudioStream() (AudioStream, bool)

	// Duration returns the container duration, or 0 if unknown; Engine
	// applies the fallback chain described in SPEC_FULL.md over this.
	Duration() time.Duration

	// Seek repositions the container to approximately position and
	// flushes any internal demux-level read-ahead state.
	Seek(position time.Duration) error

	Close() error
}

// Scaler converts a demuxer-native video frame into the RGBA layout
// [VideoFrame] carries. The reisen-backed demuxer's frames already arrive
// RGB-converted (reisen performs the YUV->RGB conversion internally), so
// [IdentityScaler] passes them through unchanged; Scaler exists as a seam for a host
// wired to a lower-level demuxer that hands back raw YUV planes.
type Scaler interface {
	Scale(src []byte, width, height int) ([]byte, error)
}

// IdentityScaler returns src unchanged. It is the Scaler used by the
// reisen-backed demuxer, whose frames are already RGB.
type IdentityScaler struct{}

func (IdentityScaler) Scale(src []byte, width, height int) ([]byte, error) { return src, nil }
