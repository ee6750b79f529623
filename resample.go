package avcore

import "encoding/binary"

// Resampler converts interleaved signed 16-bit PCM from one rate/channel
// layout to another. The engine builds one whenever the decoded stream's
// format doesn't already match the audio sink's.
type Resampler interface {
	// Resample converts src (interleaved S16) into dst, returning the
	// number of bytes written. dst is a process-local scratch buffer
	// reused across calls; if the conversion would overflow it, Resample
	// returns an error so the caller can reinitialize with more headroom.
	// A result that fills dst exactly is returned normally; the caller
	// treats that as likely truncation and reinitializes.
	Resample(dst, src []byte) (n int, err error)
}

// linearResampler is a minimal sample-rate/channel-count converter. reisen
// exposes no swresample binding, so this is a hand-rolled linear
// interpolation path rather than a wrapped third-party resampler (see
// DESIGN.md for why no pack library could serve this role); it covers the
// common cases the original implementation guards against directly:
// mismatched sample rate and mono<->stereo conversion.
type linearResampler struct {
	inRate, outRate         int
	inChannels, outChannels int
}

// NewLinearResampler builds a resampler from (inRate, inChannels) decoded
// PCM to (outRate, outChannels) sink PCM.
func NewLinearResampler(inRate, inChannels, outRate, outChannels int) (Resampler, error) {
	if inRate <= 0 || outRate <= 0 || inChannels <= 0 || outChannels <= 0 {
		return nil, statusErr(StatusResamplerFailed, nil)
	}
	return &linearResampler{
		inRate: inRate, outRate: outRate,
		inChannels: inChannels, outChannels: outChannels,
	}, nil
}

func (r *linearResampler) Resample(dst, src []byte) (int, error) {
	const bytesPerSample = 2
	inFrames := len(src) / (bytesPerSample * r.inChannels)
	if inFrames == 0 {
		return 0, nil
	}
	outFrames := int(int64(inFrames) * int64(r.outRate) / int64(r.inRate))
	if outFrames == 0 {
		return 0, nil
	}
	needed := outFrames * bytesPerSample * r.outChannels
	if needed > len(dst) {
		return 0, statusErr(StatusResamplerFailed, nil)
	}

	readSample := func(frame, channel int) int16 {
		srcChannel := channel
		if srcChannel >= r.inChannels {
			srcChannel = r.inChannels - 1
		}
		off := (frame*r.inChannels + srcChannel) * bytesPerSample
		return int16(binary.LittleEndian.Uint16(src[off : off+2]))
	}

	for of := 0; of < outFrames; of++ {
		srcPos := float64(of) * float64(r.inRate) / float64(r.outRate)
		i0 := int(srcPos)
		if i0 >= inFrames-1 {
			i0 = inFrames - 2
			if i0 < 0 {
				i0 = 0
			}
		}
		i1 := i0 + 1
		if i1 >= inFrames {
			i1 = inFrames - 1
		}
		frac := srcPos - float64(i0)

		for ch := 0; ch < r.outChannels; ch++ {
			a := float64(readSample(i0, ch))
			b := float64(readSample(i1, ch))
			v := int16(a + (b-a)*frac)
			off := (of*r.outChannels + ch) * bytesPerSample
			binary.LittleEndian.PutUint16(dst[off:off+2], uint16(v))
		}
	}
	return needed, nil
}
