package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Control message type IDs for the length-prefixed envelopes carried on
// bidirectional control streams.
const (
	MsgAttach                   uint64 = 0x01
	MsgDetach                   uint64 = 0x02
	MsgKeepAlive                uint64 = 0x03 // deprecated, no-op
	MsgSessionParams            uint64 = 0x04
	MsgListApplications         uint64 = 0x05
	MsgApplicationList          uint64 = 0x06
	MsgAttached                 uint64 = 0x07
	MsgError                    uint64 = 0x08
	MsgAttachmentEnded          uint64 = 0x09
	MsgCursorUpdate             uint64 = 0x0a
	MsgSessionParametersChanged uint64 = 0x0b
	MsgRefreshRequest           uint64 = 0x0c
)

// ReadEnvelope reads a [type(varint)][length(uint16 big-endian)][payload]
// control message.
func ReadEnvelope(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		return 0, nil, fmt.Errorf("wire: reader must implement io.ByteReader")
	}

	msgType, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("read message length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read message payload: %w", err)
		}
	}
	return msgType, payload, nil
}

// WriteEnvelope writes a control message as a single Write call so
// concurrent writers on the same stream never interleave a partial
// envelope.
func WriteEnvelope(w io.Writer, msgType uint64, payload []byte) error {
	buf := quicvarint.Append(nil, msgType)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ErrorCode enumerates the error kinds surfaced to clients.
type ErrorCode uint64

const (
	ErrBadRequest ErrorCode = iota
	ErrNotFound
	ErrUnavailable
	ErrTimeout
	ErrServerError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrBadRequest:
		return "BadRequest"
	case ErrNotFound:
		return "NotFound"
	case ErrUnavailable:
		return "Unavailable"
	case ErrTimeout:
		return "Timeout"
	default:
		return "ServerError"
	}
}

// Attach is the client's request to attach to a named application at a
// negotiated resolution/framerate/codec/colour-space/preset.
type Attach struct {
	AttachmentID  uint64
	Application   string
	Width         uint32
	Height        uint32
	Framerate     uint32
	Codec         uint8 // media.Codec
	ColorSpace    uint8 // 0 = SDR, 1 = HDR10
	Preset        string
	EnableCursor  bool
}

// Attached is the server's successful response to Attach.
type Attached struct {
	AttachmentID uint64
	SessionID    uint64
	Width        uint32
	Height       uint32
	Framerate    uint32
	EpochPTS     uint64 // reference clock epoch, microseconds
}

// Detach ends an attachment without affecting the underlying session.
type Detach struct {
	AttachmentID uint64
}

// ListApplications requests the application catalogue.
type ListApplications struct{}

// ApplicationSummary is one entry in an ApplicationList response.
type ApplicationSummary struct {
	Name        string
	Description string
}

// ApplicationList answers ListApplications.
type ApplicationList struct {
	Applications []ApplicationSummary
}

// SessionParams echoes the negotiated (possibly rounded) display
// parameters back to the client, per testable property 2.
type SessionParams struct {
	AttachmentID uint64
	Width        uint32
	Height       uint32
	Framerate    uint32
}

// Error reports a request failure.
type Error struct {
	AttachmentID uint64
	Code         ErrorCode
	Message      string
}

// AttachmentEnded notifies the client that its attachment has ended,
// independent of the session's lifecycle.
type AttachmentEnded struct {
	AttachmentID uint64
	Code         ErrorCode // the zero value is ErrBadRequest
	Message      string
}

// RefreshRequest is the client's explicit request for a forced keyframe
// after detecting packet loss beyond its FEC budget.
type RefreshRequest struct {
	AttachmentID uint64
}

func encodeString(buf []byte, s string) []byte { return appendVarintBytes(buf, []byte(s)) }

func decodeString(r *bufReader) (string, error) {
	b, err := r.readVarintBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeAttach serializes an Attach message.
func EncodeAttach(a Attach) []byte {
	buf := quicvarint.Append(nil, a.AttachmentID)
	buf = encodeString(buf, a.Application)
	buf = quicvarint.Append(buf, uint64(a.Width))
	buf = quicvarint.Append(buf, uint64(a.Height))
	buf = quicvarint.Append(buf, uint64(a.Framerate))
	buf = append(buf, a.Codec, a.ColorSpace)
	buf = encodeString(buf, a.Preset)
	if a.EnableCursor {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeAttach parses an Attach message.
func DecodeAttach(data []byte) (Attach, error) {
	r := newBufReader(data)
	var a Attach
	var err error

	if a.AttachmentID, err = r.readVarint(); err != nil {
		return a, &ParseError{"attachment_id", err}
	}
	if a.Application, err = decodeString(r); err != nil {
		return a, &ParseError{"application", err}
	}
	w, err := r.readVarint()
	if err != nil {
		return a, &ParseError{"width", err}
	}
	a.Width = uint32(w)
	h, err := r.readVarint()
	if err != nil {
		return a, &ParseError{"height", err}
	}
	a.Height = uint32(h)
	fr, err := r.readVarint()
	if err != nil {
		return a, &ParseError{"framerate", err}
	}
	a.Framerate = uint32(fr)
	if a.Codec, err = r.readByte(); err != nil {
		return a, &ParseError{"codec", err}
	}
	if a.ColorSpace, err = r.readByte(); err != nil {
		return a, &ParseError{"color_space", err}
	}
	if a.Preset, err = decodeString(r); err != nil {
		return a, &ParseError{"preset", err}
	}
	cursorByte, err := r.readByte()
	if err != nil {
		return a, &ParseError{"enable_cursor", err}
	}
	a.EnableCursor = cursorByte != 0
	return a, nil
}

// EncodeAttached serializes an Attached message.
func EncodeAttached(a Attached) []byte {
	buf := quicvarint.Append(nil, a.AttachmentID)
	buf = quicvarint.Append(buf, a.SessionID)
	buf = quicvarint.Append(buf, uint64(a.Width))
	buf = quicvarint.Append(buf, uint64(a.Height))
	buf = quicvarint.Append(buf, uint64(a.Framerate))
	buf = quicvarint.Append(buf, a.EpochPTS)
	return buf
}

// DecodeAttached parses an Attached message.
func DecodeAttached(data []byte) (Attached, error) {
	r := newBufReader(data)
	var a Attached
	var err error
	if a.AttachmentID, err = r.readVarint(); err != nil {
		return a, &ParseError{"attachment_id", err}
	}
	if a.SessionID, err = r.readVarint(); err != nil {
		return a, &ParseError{"session_id", err}
	}
	w, err := r.readVarint()
	if err != nil {
		return a, &ParseError{"width", err}
	}
	a.Width = uint32(w)
	h, err := r.readVarint()
	if err != nil {
		return a, &ParseError{"height", err}
	}
	a.Height = uint32(h)
	fr, err := r.readVarint()
	if err != nil {
		return a, &ParseError{"framerate", err}
	}
	a.Framerate = uint32(fr)
	if a.EpochPTS, err = r.readVarint(); err != nil {
		return a, &ParseError{"epoch_pts", err}
	}
	return a, nil
}

// EncodeDetach serializes a Detach message.
func EncodeDetach(d Detach) []byte { return quicvarint.Append(nil, d.AttachmentID) }

// DecodeDetach parses a Detach message.
func DecodeDetach(data []byte) (Detach, error) {
	r := newBufReader(data)
	id, err := r.readVarint()
	if err != nil {
		return Detach{}, &ParseError{"attachment_id", err}
	}
	return Detach{AttachmentID: id}, nil
}

// EncodeApplicationList serializes an ApplicationList message.
func EncodeApplicationList(l ApplicationList) []byte {
	buf := quicvarint.Append(nil, uint64(len(l.Applications)))
	for _, app := range l.Applications {
		buf = encodeString(buf, app.Name)
		buf = encodeString(buf, app.Description)
	}
	return buf
}

// DecodeApplicationList parses an ApplicationList message.
func DecodeApplicationList(data []byte) (ApplicationList, error) {
	r := newBufReader(data)
	n, err := r.readVarint()
	if err != nil {
		return ApplicationList{}, &ParseError{"count", err}
	}
	out := ApplicationList{Applications: make([]ApplicationSummary, 0, n)}
	for i := uint64(0); i < n; i++ {
		name, err := decodeString(r)
		if err != nil {
			return out, &ParseError{"name", err}
		}
		desc, err := decodeString(r)
		if err != nil {
			return out, &ParseError{"description", err}
		}
		out.Applications = append(out.Applications, ApplicationSummary{Name: name, Description: desc})
	}
	return out, nil
}

// EncodeError serializes an Error message.
func EncodeError(e Error) []byte {
	buf := quicvarint.Append(nil, e.AttachmentID)
	buf = quicvarint.Append(buf, uint64(e.Code))
	buf = encodeString(buf, e.Message)
	return buf
}

// DecodeError parses an Error message.
func DecodeError(data []byte) (Error, error) {
	r := newBufReader(data)
	var e Error
	var err error
	if e.AttachmentID, err = r.readVarint(); err != nil {
		return e, &ParseError{"attachment_id", err}
	}
	code, err := r.readVarint()
	if err != nil {
		return e, &ParseError{"code", err}
	}
	e.Code = ErrorCode(code)
	if e.Message, err = decodeString(r); err != nil {
		return e, &ParseError{"message", err}
	}
	return e, nil
}

// EncodeSessionParams serializes a SessionParams message.
func EncodeSessionParams(p SessionParams) []byte {
	buf := quicvarint.Append(nil, p.AttachmentID)
	buf = quicvarint.Append(buf, uint64(p.Width))
	buf = quicvarint.Append(buf, uint64(p.Height))
	buf = quicvarint.Append(buf, uint64(p.Framerate))
	return buf
}

// DecodeSessionParams parses a SessionParams message.
func DecodeSessionParams(data []byte) (SessionParams, error) {
	r := newBufReader(data)
	var p SessionParams
	var err error
	if p.AttachmentID, err = r.readVarint(); err != nil {
		return p, &ParseError{"attachment_id", err}
	}
	w, err := r.readVarint()
	if err != nil {
		return p, &ParseError{"width", err}
	}
	p.Width = uint32(w)
	h, err := r.readVarint()
	if err != nil {
		return p, &ParseError{"height", err}
	}
	p.Height = uint32(h)
	fr, err := r.readVarint()
	if err != nil {
		return p, &ParseError{"framerate", err}
	}
	p.Framerate = uint32(fr)
	return p, nil
}

// EncodeRefreshRequest serializes a RefreshRequest message.
func EncodeRefreshRequest(r RefreshRequest) []byte { return quicvarint.Append(nil, r.AttachmentID) }

// DecodeRefreshRequest parses a RefreshRequest message.
func DecodeRefreshRequest(data []byte) (RefreshRequest, error) {
	br := newBufReader(data)
	id, err := br.readVarint()
	if err != nil {
		return RefreshRequest{}, &ParseError{"attachment_id", err}
	}
	return RefreshRequest{AttachmentID: id}, nil
}

// EncodeAttachmentEnded serializes an AttachmentEnded message.
func EncodeAttachmentEnded(a AttachmentEnded) []byte {
	buf := quicvarint.Append(nil, a.AttachmentID)
	buf = quicvarint.Append(buf, uint64(a.Code))
	buf = encodeString(buf, a.Message)
	return buf
}
