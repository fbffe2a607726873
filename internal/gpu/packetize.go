package gpu

import (
	"github.com/mmserver/mmserverd/internal/fec"
	"github.com/mmserver/mmserverd/internal/wire"
)

// MaxChunkPayload bounds a FramePacket's payload so a chunk plus its
// header fits comfortably under typical QUIC stream/datagram MTUs.
const MaxChunkPayload = 1200

// Packetize splits an encoded access unit into source chunks, generates
// FEC repair chunks at ratio (0 disables FEC for this layer), and
// returns the complete sequence of FramePackets for one frame. Header
// prefix bytes (SPS/PPS/VPS) are prepended to the payload before
// splitting so a receiver that reconstructs the frame gets them back
// as a contiguous prefix, matching FlagHeaderPrefix's contract.
func Packetize(au EncodedAccessUnit, streamSeq, frameSeq, pts uint64, layer uint8, ratio float64) []wire.FramePacket {
	payload := au.Payload
	if au.IsKeyframe && len(au.HeaderPrefix) > 0 {
		payload = append(append([]byte{}, au.HeaderPrefix...), au.Payload...)
	}

	chunks := fec.SplitPayload(payload, MaxChunkPayload)
	k := len(chunks)
	repair := fec.Encode(chunks, ratio)
	r := len(repair)

	flags := uint8(0)
	if au.IsKeyframe {
		flags |= wire.FlagKeyframe
		if len(au.HeaderPrefix) > 0 {
			flags |= wire.FlagHeaderPrefix
		}
	}

	packets := make([]wire.FramePacket, 0, k+r)
	for i, c := range chunks {
		packets = append(packets, wire.FramePacket{
			StreamSeq:         streamSeq,
			FrameSeq:          frameSeq,
			PTS:               pts,
			HierarchicalLayer: layer,
			Flags:             flags,
			ChunkIndex:        uint16(i),
			TotalChunks:       uint16(k),
			FECIndex:          uint16(i),
			FECTotal:          uint16(k + r),
			Payload:           c,
		})
	}
	for i, c := range repair {
		packets = append(packets, wire.FramePacket{
			StreamSeq:         streamSeq,
			FrameSeq:          frameSeq,
			PTS:               pts,
			HierarchicalLayer: layer,
			Flags:             flags,
			ChunkIndex:        uint16(k + i),
			TotalChunks:       uint16(k),
			FECIndex:          uint16(k + i),
			FECTotal:          uint16(k + r),
			Payload:           c,
		})
	}
	return packets
}

// Reassemble inverts Packetize given received chunks for one frame: k
// source-chunk count, a map of FECIndex to payload, and the original
// per-chunk lengths (needed because fec.Reconstruct trims padding).
// The header prefix, if present, sits at the start of the reassembled
// payload; its length is not carried in the packets.
func Reassemble(k int, received map[int][]byte, originalLens []int) ([]byte, error) {
	chunks, err := fec.Reconstruct(k, received, originalLens)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}
