package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketFlags bit assignments.
const (
	FlagKeyframe     uint8 = 1 << 0
	FlagHeaderPrefix uint8 = 1 << 1
)

// FramePacketHeaderSize is the fixed-size portion of a FramePacket,
// excluding the variable-length payload.
const FramePacketHeaderSize = 8 + 8 + 8 + 1 + 1 + 2 + 2 + 2 + 2 // 34 bytes

// FramePacket is a single wire-framed chunk of an encoded video or audio
// frame, carrying FEC metadata so any `total_chunks` of `fec_total`
// packets suffice to reconstruct the frame.
type FramePacket struct {
	StreamSeq         uint64 // >= 1, monotonic; never 0
	FrameSeq          uint64 // monotonic within stream
	PTS               uint64 // microseconds since attachment epoch
	HierarchicalLayer uint8
	Flags             uint8
	ChunkIndex        uint16
	TotalChunks       uint16
	FECIndex          uint16 // >= TotalChunks indicates a repair chunk
	FECTotal          uint16
	Payload           []byte
}

// IsKeyframe reports whether FlagKeyframe is set.
func (p FramePacket) IsKeyframe() bool { return p.Flags&FlagKeyframe != 0 }

// HasHeaderPrefix reports whether FlagHeaderPrefix is set.
func (p FramePacket) HasHeaderPrefix() bool { return p.Flags&FlagHeaderPrefix != 0 }

// IsRepair reports whether this packet carries an FEC repair chunk rather
// than a source chunk.
func (p FramePacket) IsRepair() bool { return p.FECIndex >= p.TotalChunks }

// Encode serializes a FramePacket to its wire representation.
func (p FramePacket) Encode() ([]byte, error) {
	if p.StreamSeq == 0 {
		return nil, ErrBadStreamSeq
	}
	buf := make([]byte, FramePacketHeaderSize+len(p.Payload))
	binary.BigEndian.PutUint64(buf[0:8], p.StreamSeq)
	binary.BigEndian.PutUint64(buf[8:16], p.FrameSeq)
	binary.BigEndian.PutUint64(buf[16:24], p.PTS)
	buf[24] = p.HierarchicalLayer
	buf[25] = p.Flags
	binary.BigEndian.PutUint16(buf[26:28], p.ChunkIndex)
	binary.BigEndian.PutUint16(buf[28:30], p.TotalChunks)
	binary.BigEndian.PutUint16(buf[30:32], p.FECIndex)
	binary.BigEndian.PutUint16(buf[32:34], p.FECTotal)
	copy(buf[FramePacketHeaderSize:], p.Payload)
	return buf, nil
}

// Decode parses a FramePacket from its wire representation. The returned
// packet's Payload aliases buf; callers that retain buf beyond the read
// call must copy if they need the packet past the buffer's lifetime.
func Decode(buf []byte) (FramePacket, error) {
	if len(buf) < FramePacketHeaderSize {
		return FramePacket{}, fmt.Errorf("wire: packet too short (%d bytes): %w", len(buf), ErrTruncated)
	}
	p := FramePacket{
		StreamSeq:         binary.BigEndian.Uint64(buf[0:8]),
		FrameSeq:          binary.BigEndian.Uint64(buf[8:16]),
		PTS:               binary.BigEndian.Uint64(buf[16:24]),
		HierarchicalLayer: buf[24],
		Flags:             buf[25],
		ChunkIndex:        binary.BigEndian.Uint16(buf[26:28]),
		TotalChunks:       binary.BigEndian.Uint16(buf[28:30]),
		FECIndex:          binary.BigEndian.Uint16(buf[30:32]),
		FECTotal:          binary.BigEndian.Uint16(buf[32:34]),
		Payload:           buf[FramePacketHeaderSize:],
	}
	if p.StreamSeq == 0 {
		return p, ErrBadStreamSeq
	}
	return p, nil
}

// WriteTo writes the encoded packet to w in one Write call. The
// transport's streamWriter sends every packet this way, each on its own
// unidirectional stream.
func (p FramePacket) WriteTo(w io.Writer) (int64, error) {
	data, err := p.Encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}
