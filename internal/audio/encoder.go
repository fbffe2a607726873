// Package audio resamples and Opus-encodes PCM delivered by a session's
// container audio sink into media.AudioFrame values aligned to the
// session clock.
package audio

import (
	"fmt"
	"time"

	"github.com/hraban/opus"

	"github.com/mmserver/mmserverd/internal/media"
)

const (
	// SampleRate and Channels match what the encoder negotiates with
	// the container's audio sink; the sink resamples to this rate if
	// its native rate differs.
	SampleRate    = 48000
	Channels      = 2
	FrameDuration = 20 * time.Millisecond
	samplesPerMs  = SampleRate / 1000
	FrameSamples  = samplesPerMs * int(FrameDuration/time.Millisecond) // per channel
)

// Encoder wraps an Opus encoder configured for the session's fixed
// sample rate and channel count, producing one media.AudioFrame per
// FrameDuration of input.
type Encoder struct {
	enc *opus.Encoder
	buf []byte
	pts uint64 // running microsecond clock, advanced by FrameDuration per Encode call
}

// NewEncoder creates an Encoder tuned for interactive audio
// (opus.AppAudio gives better quality than AppVoIP at music-like
// application audio's typical bitrates).
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("audio: new opus encoder: %w", err)
	}
	return &Encoder{enc: enc, buf: make([]byte, 4000)}, nil
}

// Encode takes exactly FrameSamples*Channels interleaved int16 PCM
// samples and returns the resulting media.AudioFrame.
func (e *Encoder) Encode(pcm []int16) (media.AudioFrame, error) {
	if len(pcm) != FrameSamples*Channels {
		return media.AudioFrame{}, fmt.Errorf("audio: Encode got %d samples, want %d", len(pcm), FrameSamples*Channels)
	}

	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return media.AudioFrame{}, fmt.Errorf("audio: opus encode: %w", err)
	}

	data := make([]byte, n)
	copy(data, e.buf[:n])

	frame := media.AudioFrame{
		PTS:        e.pts,
		Data:       data,
		SampleRate: SampleRate,
		Channels:   Channels,
	}
	e.pts += uint64(FrameDuration / time.Microsecond)
	return frame, nil
}

// SetBitrate adjusts the target Opus bitrate. No code in the server
// calls it.
func (e *Encoder) SetBitrate(bps int) error {
	return e.enc.SetBitrate(bps)
}
