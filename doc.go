// Package avcore implements the concurrent audio/video playback engine
// described for a software player built atop an external demuxer/decoder
// library: a reader goroutine demuxes a container into per-stream packet
// queues, one decoder goroutine per active stream turns packets into PCM
// (handed to a host audio sink) or RGB frames (handed to a host frame
// sink), and a renderer coordinator lets the host pull frames in its own
// rhythm while the engine paces them against a shared, audio-slaved clock.
//
// Usage mirrors the lifecycle the engine enforces: Open, Resume, then
// repeated RenderFrame/ReleaseFrame pairs from the host's render thread,
// with Pause/Resume/Seek available at any time and Stop tearing everything
// down. See [Engine] for the full surface.
package avcore
