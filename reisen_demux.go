package avcore

import (
	"io"
	"sync"
	"time"

	"github.com/erparts/reisen"
)

// reisenDemuxer adapts github.com/erparts/reisen to the [Demuxer]
// interface. reisen couples packet-read and per-stream decode: ReadPacket
// only tells the reader which stream a packet belongs to, and the actual
// frame comes back from that stream's own ReadVideoFrame/ReadAudioFrame
// call, with no packet argument. reisenVideoStream/reisenAudioStream below
// perform that coupled read when asked for the next frame.
//
// The engine drives ReadPacket from the reader goroutine and ReadFrame
// from the per-stream decoder goroutines concurrently, but reisen itself
// is not goroutine-safe across that split: ReadPacket and the matching
// stream's ReadVideoFrame/ReadAudioFrame touch the same internal packet
// buffer and codec context, mirroring the teacher's own
// videoWithAudioController, which drives both calls under one
// sync.RWMutex rather than relying on separate structures staying
// independent. mu reproduces that: ReadPacket, both ReadFrames, Seek,
// Close and SampleFormat hold it for their calls into the underlying
// *reisen.Media/*reisen.VideoStream/*reisen.AudioStream. The Duration,
// Width, Height and FrameRate accessors call reisen without it.
type reisenDemuxer struct {
	mu    *sync.Mutex
	media *reisen.Media
	video *reisenVideoStream
	audio *reisenAudioStream
}

// OpenReisen opens videoFilename with reisen and selects streams by
// index, mirroring the teacher's NewPlayer stream-selection logic.
// videoIdx/audioIdx of -1 mean "auto" (first stream of that kind);
// wantAudio=false forces video-only mode even when the container has
// an audio stream.
func OpenReisen(videoFilename string, wantAudio bool, videoIdx, audioIdx int) (Demuxer, error) {
	media, err := reisen.NewMedia(videoFilename)
	if err != nil {
		return nil, statusErr(StatusOpenFailed, err)
	}

	videoStreams := media.VideoStreams()
	if len(videoStreams) == 0 {
		media.Close()
		return nil, ErrNoVideoStream
	}
	vs := videoStreams[0]
	if videoIdx >= 0 {
		if videoIdx >= len(videoStreams) {
			media.Close()
			return nil, ErrNoVideoStream
		}
		vs = videoStreams[videoIdx]
	} else if len(videoStreams) > 1 {
		pkgLogger.Printf("WARNING: multiple video streams in %q; using the first", videoFilename)
	}

	audioStreams := media.AudioStreams()
	var as *reisen.AudioStream
	if wantAudio && len(audioStreams) > 0 {
		if audioIdx >= 0 {
			if audioIdx < len(audioStreams) {
				as = audioStreams[audioIdx]
			}
		} else {
			if len(audioStreams) > 1 {
				pkgLogger.Printf("WARNING: multiple audio streams in %q; using the first", videoFilename)
			}
			as = audioStreams[0]
		}
	}

	if err := media.OpenDecode(); err != nil {
		media.Close()
		return nil, statusErr(StatusOpenCodecFailed, err)
	}
	if err := vs.Open(); err != nil {
		media.CloseDecode()
		media.Close()
		return nil, statusErr(StatusOpenCodecFailed, err)
	}
	mu := &sync.Mutex{}
	d := &reisenDemuxer{
		mu:    mu,
		media: media,
		video: &reisenVideoStream{mu: mu, stream: vs},
	}
	if as != nil {
		fallback := sampleFormatBeforeOpen(as)
		if err := as.Open(); err != nil {
			pkgLogger.Printf("WARNING: failed to open audio stream: %v", err)
		} else {
			d.audio = &reisenAudioStream{mu: mu, stream: as, fallbackFormat: fallback}
		}
	}
	return d, nil
}

// sampleFormatBeforeOpen captures the channel count and sample rate
// reisen reports before the stream's codec context is opened, so a
// post-open reading of zero or negative (seen on some malformed
// containers reisen otherwise decodes fine) can fall back to the value
// observed here instead of reaching the resampler/audio sink as 0.
func sampleFormatBeforeOpen(as *reisen.AudioStream) SampleFormat {
	return SampleFormat{
		SampleRate: as.SampleRate(),
		Channels:   as.ChannelCount(),
	}
}

func (d *reisenDemuxer) ReadPacket() (StreamKind, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	packet, found, err := d.media.ReadPacket()
	if err != nil {
		return 0, false, statusErr(StatusDecodeFailed, err)
	}
	if !found {
		return 0, false, nil
	}
	switch packet.Type() {
	case reisen.StreamVideo:
		if packet.StreamIndex() != d.video.stream.Index() {
			return StreamDropped, true, nil
		}
		return StreamVideo, true, nil
	case reisen.StreamAudio:
		if d.audio == nil || packet.StreamIndex() != d.audio.stream.Index() {
			return StreamDropped, true, nil
		}
		return StreamAudio, true, nil
	default:
		return StreamDropped, true, nil
	}
}

func (d *reisenDemuxer) VideoStream() (VideoStream, bool) { return d.video, true }

func (d *reisenDemuxer) AudioStream() (AudioStream, bool) {
	if d.audio == nil {
		return nil, false
	}
	return d.audio, true
}

func (d *reisenDemuxer) Duration() time.Duration {
	if dur, err := d.video.stream.Duration(); err == nil && dur > 0 {
		return dur
	}
	if d.audio != nil {
		if dur, err := d.audio.stream.Duration(); err == nil {
			return dur
		}
	}
	return 0
}

func (d *reisenDemuxer) Seek(position time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.video.stream.Rewind(position); err != nil {
		return statusErr(StatusDecodeFailed, err)
	}
	if d.audio != nil {
		if err := d.audio.stream.Rewind(position); err != nil {
			return statusErr(StatusDecodeFailed, err)
		}
	}
	return nil
}

func (d *reisenDemuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	if d.audio != nil {
		if err := d.audio.stream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.video.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.media.CloseDecode(); err != nil && firstErr == nil {
		firstErr = err
	}
	d.media.Close()
	return firstErr
}

type reisenVideoStream struct {
	mu     *sync.Mutex
	stream *reisen.VideoStream
}

func (v *reisenVideoStream) ReadFrame() (*VideoFrame, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	frame, ok, err := v.stream.ReadVideoFrame()
	if err != nil {
		return nil, false, statusErr(StatusDecodeFailed, err)
	}
	if !ok || frame == nil {
		return nil, false, nil
	}
	pts, err := frame.PresentationOffset()
	if err != nil {
		pts = 0
	}
	return &VideoFrame{
		PTS:    pts.Seconds(),
		Width:  v.stream.Width(),
		Height: v.stream.Height(),
		RGBA:   frame.Data(),
	}, true, nil
}

func (v *reisenVideoStream) Duration() (time.Duration, error) { return v.stream.Duration() }

func (v *reisenVideoStream) Width() int  { return v.stream.Width() }
func (v *reisenVideoStream) Height() int { return v.stream.Height() }
func (v *reisenVideoStream) FrameRate() float64 {
	num, denom := v.stream.FrameRate()
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

type reisenAudioStream struct {
	mu     *sync.Mutex
	stream *reisen.AudioStream

	// fallbackFormat holds the channel count and sample rate reisen
	// reported before the stream's codec context was opened, substituted
	// into SampleFormat whenever the post-open reading is non-positive.
	fallbackFormat SampleFormat
}

func (a *reisenAudioStream) ReadFrame() (*AudioFrame, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	frame, ok, err := a.stream.ReadAudioFrame()
	if err != nil {
		return nil, false, statusErr(StatusDecodeFailed, err)
	}
	if !ok || frame == nil {
		return nil, false, nil
	}
	pts, err := frame.PresentationOffset()
	hasPTS := err == nil
	return &AudioFrame{
		PTS:    pts.Seconds(),
		HasPTS: hasPTS,
		PCM:    frame.Data(),
	}, true, nil
}

func (a *reisenAudioStream) Duration() (time.Duration, error) { return a.stream.Duration() }

func (a *reisenAudioStream) SampleFormat() SampleFormat {
	a.mu.Lock()
	defer a.mu.Unlock()
	rate := a.stream.SampleRate()
	if rate <= 0 {
		rate = a.fallbackFormat.SampleRate
	}
	channels := a.stream.ChannelCount()
	if channels <= 0 {
		channels = a.fallbackFormat.Channels
	}
	return SampleFormat{
		SampleRate:     rate,
		Channels:       channels,
		BytesPerSample: 2, // reisen always decodes to interleaved S16
	}
}

var _ io.Closer = (*reisenDemuxer)(nil)
