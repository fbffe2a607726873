package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	attach := Attach{
		AttachmentID: 9,
		Application:  "steam",
		Width:        1920,
		Height:       1080,
		Framerate:    60,
		Codec:        0,
		ColorSpace:   0,
		Preset:       "balanced",
		EnableCursor: true,
	}
	require.NoError(t, WriteEnvelope(&buf, MsgAttach, EncodeAttach(attach)))

	msgType, payload, err := ReadEnvelope(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, MsgAttach, msgType)

	got, err := DecodeAttach(payload)
	require.NoError(t, err)
	require.Equal(t, attach, got)
}

func TestDecodeAttachedRoundTrip(t *testing.T) {
	a := Attached{AttachmentID: 1, SessionID: 99, Width: 1280, Height: 720, Framerate: 60, EpochPTS: 1000}
	got, err := DecodeAttached(EncodeAttached(a))
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestDecodeApplicationListRoundTrip(t *testing.T) {
	l := ApplicationList{Applications: []ApplicationSummary{
		{Name: "steam", Description: "Steam client"},
		{Name: "retroarch", Description: ""},
	}}
	got, err := DecodeApplicationList(EncodeApplicationList(l))
	require.NoError(t, err)
	require.Equal(t, l, got)
}

func TestDecodeErrorRoundTrip(t *testing.T) {
	e := Error{AttachmentID: 5, Code: ErrUnavailable, Message: "at max_connections"}
	got, err := DecodeError(EncodeError(e))
	require.NoError(t, err)
	require.Equal(t, e, got)
	require.Equal(t, "Unavailable", got.Code.String())
}

func TestDecodeTruncatedPayload(t *testing.T) {
	_, err := DecodeAttach([]byte{0x01})
	require.Error(t, err)
}

type noByteReader struct{ io.Reader }

func TestReadEnvelopeRequiresByteReader(t *testing.T) {
	r := noByteReader{bytes.NewReader(nil)}
	_, _, err := ReadEnvelope(r)
	require.Error(t, err)
}
