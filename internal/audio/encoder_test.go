package audio

import "testing"

func TestEncodeRejectsWrongSampleCount(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	_, err = enc.Encode(make([]int16, 10))
	if err == nil {
		t.Fatal("expected error for wrong sample count")
	}
}

func TestEncodePTSAdvancesByFrameDuration(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	pcm := make([]int16, FrameSamples*Channels)

	f1, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f2, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wantDelta := uint64(20000) // 20ms in microseconds
	if f2.PTS-f1.PTS != wantDelta {
		t.Fatalf("PTS delta = %d, want %d", f2.PTS-f1.PTS, wantDelta)
	}
	if f1.SampleRate != SampleRate || f1.Channels != Channels {
		t.Fatalf("unexpected frame format: %+v", f1)
	}
}

func TestResamplerIdentityPassthrough(t *testing.T) {
	r := NewResampler(48000, 48000, 2)
	in := []int16{1, 2, 3, 4}
	out := r.Push(in)
	if len(out) != len(in) {
		t.Fatalf("identity resample changed length: %d vs %d", len(out), len(in))
	}
}

func TestResamplerDownsampleProducesFewerFrames(t *testing.T) {
	r := NewResampler(48000, 24000, 1)
	in := make([]int16, 480) // 10ms @ 48kHz mono
	out := r.Push(in)
	if len(out) >= len(in) {
		t.Fatalf("downsample produced %d samples, want fewer than %d", len(out), len(in))
	}
}
