package gpu

import (
	"bytes"
	"testing"
)

func TestPacketizeRoundTripNoLoss(t *testing.T) {
	au := EncodedAccessUnit{
		Payload:      bytes.Repeat([]byte{0xAB}, 4096),
		HeaderPrefix: []byte{0x01, 0x02, 0x03},
		IsKeyframe:   true,
	}
	packets := Packetize(au, 1, 1, 0, 0, 0.5)

	k := int(packets[0].TotalChunks)
	received := make(map[int][]byte, len(packets))
	lens := make([]int, k)
	for _, p := range packets {
		received[int(p.FECIndex)] = p.Payload
		if int(p.FECIndex) < k {
			lens[p.FECIndex] = len(p.Payload)
		}
	}

	rebuilt, err := Reassemble(k, received, lens)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	want := append(append([]byte{}, au.HeaderPrefix...), au.Payload...)
	if !bytes.Equal(rebuilt, want) {
		t.Fatal("reassembled payload did not match original")
	}
}

func TestPacketizeSurvivesChunkLoss(t *testing.T) {
	au := EncodedAccessUnit{Payload: bytes.Repeat([]byte{0x7F}, 5000), IsKeyframe: false}
	packets := Packetize(au, 1, 2, 0, 0, 0.5)

	k := int(packets[0].TotalChunks)
	lens := make([]int, k)
	for _, p := range packets {
		if int(p.FECIndex) < k {
			lens[p.FECIndex] = len(p.Payload)
		}
	}

	// Drop the first source chunk, keep everything else.
	received := make(map[int][]byte, len(packets)-1)
	for _, p := range packets {
		if p.FECIndex == 0 {
			continue
		}
		received[int(p.FECIndex)] = p.Payload
	}

	rebuilt, err := Reassemble(k, received, lens)
	if err != nil {
		t.Fatalf("Reassemble with one chunk missing: %v", err)
	}
	if !bytes.Equal(rebuilt, au.Payload) {
		t.Fatal("reassembled payload did not match original after chunk loss")
	}
}

func TestPacketizeNonKeyframeHasNoHeaderFlag(t *testing.T) {
	au := EncodedAccessUnit{Payload: []byte{1, 2, 3}, IsKeyframe: false}
	packets := Packetize(au, 1, 1, 0, 0, 0)
	for _, p := range packets {
		if p.HasHeaderPrefix() {
			t.Fatal("non-keyframe packet set FlagHeaderPrefix")
		}
		if p.IsKeyframe() {
			t.Fatal("non-keyframe packet set FlagKeyframe")
		}
	}
}
