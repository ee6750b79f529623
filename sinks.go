package avcore

// FrameSink supplies the host-allocated pixel buffers the video RGB frame
// queue writes into. The engine allocates exactly
// [Options.FrameQueueCapacity] bitmaps at Open and releases them
// at Stop; a decoder thread locks one only across its own scale+copy step
// and never while blocked on the queue condition.
type FrameSink interface {
	// AllocateBitmap reserves a pixel buffer of the given dimensions,
	// returning an opaque handle the engine passes back to LockPixels /
	// UnlockPixels / ReleaseBitmap.
	AllocateBitmap(width, height int) (handle any, err error)
	// LockPixels returns the RGBA byte slice (width*height*4, row-major)
	// backing handle, for the decoder to scale/copy a frame into.
	LockPixels(handle any) ([]byte, error)
	// UnlockPixels releases the lock taken by LockPixels. The slice
	// returned by LockPixels remains valid and is what the renderer later
	// hands back to the host via RenderFrame's weak reference.
	UnlockPixels(handle any)
	// ReleaseBitmap frees a bitmap allocated by AllocateBitmap.
	ReleaseBitmap(handle any)
}

// AudioSink receives PCM for playback and mirrors the decoder library
// contract. Sample format is always interleaved signed 16-bit.
type AudioSink interface {
	WriteSamples(pcm []byte) (written int, err error)
	Play()
	Pause()
	Flush()
	Stop()
	ChannelCount() int
	SampleRate() int
	SetVolume(volume float64)
	SetMuted(muted bool)
}
