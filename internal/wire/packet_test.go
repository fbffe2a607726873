package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramePacketRoundTrip(t *testing.T) {
	p := FramePacket{
		StreamSeq:         1,
		FrameSeq:          42,
		PTS:               123456,
		HierarchicalLayer: 1,
		Flags:             FlagKeyframe | FlagHeaderPrefix,
		ChunkIndex:        2,
		TotalChunks:       4,
		FECIndex:          2,
		FECTotal:          6,
		Payload:           []byte("hello video chunk"),
	}

	data, err := p.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, p.StreamSeq, got.StreamSeq)
	require.Equal(t, p.FrameSeq, got.FrameSeq)
	require.Equal(t, p.PTS, got.PTS)
	require.Equal(t, p.HierarchicalLayer, got.HierarchicalLayer)
	require.True(t, got.IsKeyframe())
	require.True(t, got.HasHeaderPrefix())
	require.False(t, got.IsRepair())
	require.Equal(t, p.Payload, got.Payload)
}

func TestFramePacketZeroStreamSeqRejected(t *testing.T) {
	p := FramePacket{StreamSeq: 0, TotalChunks: 1, FECTotal: 1}
	_, err := p.Encode()
	require.ErrorIs(t, err, ErrBadStreamSeq)

	buf := make([]byte, FramePacketHeaderSize)
	_, err = Decode(buf)
	require.ErrorIs(t, err, ErrBadStreamSeq)
}

func TestFramePacketTruncated(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestFramePacketIsRepair(t *testing.T) {
	p := FramePacket{StreamSeq: 1, TotalChunks: 4, FECIndex: 4, FECTotal: 6}
	require.True(t, p.IsRepair())

	p.FECIndex = 3
	require.False(t, p.IsRepair())
}

func TestFramePacketWriteTo(t *testing.T) {
	p := FramePacket{StreamSeq: 7, TotalChunks: 1, FECTotal: 1, Payload: []byte("x")}
	var buf bytes.Buffer
	n, err := p.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(FramePacketHeaderSize+1), n)

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, p.Payload, got.Payload)
}
