package audio

// Resampler converts interleaved int16 PCM from an arbitrary source
// sample rate to the encoder's fixed SampleRate using linear
// interpolation. The container audio sink's native rate is whatever
// the application negotiated with it; this keeps the Opus encoder's
// input rate fixed regardless.
type Resampler struct {
	srcRate, dstRate int
	channels         int

	// frac carries the fractional source-sample position across Push
	// calls so resampling is continuous across frame boundaries.
	frac float64
	last []int16 // unconsumed tail of the previous block; Push does not read it back
}

// NewResampler creates a Resampler from srcRate to dstRate for the
// given channel count. If srcRate == dstRate, Push still works but
// copies through unchanged.
func NewResampler(srcRate, dstRate, channels int) *Resampler {
	return &Resampler{srcRate: srcRate, dstRate: dstRate, channels: channels}
}

// Push resamples one block of interleaved PCM, returning the resampled
// output. The caller is responsible for buffering output into
// FrameSamples-sized chunks before calling Encoder.Encode.
func (r *Resampler) Push(pcm []int16) []int16 {
	if r.srcRate == r.dstRate {
		return append([]int16{}, pcm...)
	}

	srcFrames := len(pcm) / r.channels
	ratio := float64(r.srcRate) / float64(r.dstRate)

	var out []int16
	pos := r.frac
	for {
		srcIdx := int(pos)
		if srcIdx+1 >= srcFrames {
			break
		}
		t := pos - float64(srcIdx)
		for ch := 0; ch < r.channels; ch++ {
			a := float64(pcm[srcIdx*r.channels+ch])
			b := float64(pcm[(srcIdx+1)*r.channels+ch])
			out = append(out, int16(a+(b-a)*t))
		}
		pos += ratio
	}

	consumed := int(pos)
	if consumed > srcFrames {
		consumed = srcFrames
	}
	r.frac = pos - float64(consumed)
	if consumed < srcFrames {
		r.last = append(r.last[:0], pcm[consumed*r.channels:]...)
	}
	return out
}
