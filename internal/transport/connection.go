package transport

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/mmserver/mmserverd/internal/appcatalog"
	"github.com/mmserver/mmserverd/internal/gpu"
	"github.com/mmserver/mmserverd/internal/media"
	"github.com/mmserver/mmserverd/internal/session"
	"github.com/mmserver/mmserverd/internal/wire"
)

// sessionIDHash folds a session's string UUID into the uint64 the wire
// protocol's Attached message carries, since the control protocol
// predates the session package's switch to UUID identifiers.
func sessionIDHash(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

// connHandler owns one QUIC connection's control stream and the
// Attachment bound to it, if any.
type connHandler struct {
	log          *slog.Logger
	conn         *quic.Conn
	catalog      *appcatalog.Catalog
	sessions     *session.Manager
	startSession SessionStarter

	// maxConnections/activeAttachments enforce §4.3's max_connections
	// cap across every connection the server is handling, shared via
	// the pointer back to Server.activeAttachments.
	maxConnections    int32
	activeAttachments *atomic.Int32

	sess *session.Session
	att  *Attachment
}

func (h *connHandler) run(ctx context.Context) error {
	control, err := h.conn.AcceptStream(ctx)
	if err != nil {
		return fmt.Errorf("accept control stream: %w", err)
	}
	defer control.Close()

	for {
		msgType, payload, err := wire.ReadEnvelope(control)
		if err != nil {
			h.cleanup()
			return fmt.Errorf("read control envelope: %w", err)
		}
		if err := h.dispatch(ctx, control, msgType, payload); err != nil {
			h.log.Warn("dispatch failed", "msgType", msgType, "error", err)
		}
	}
}

func (h *connHandler) dispatch(ctx context.Context, control *quic.Stream, msgType uint64, payload []byte) error {
	switch msgType {
	case wire.MsgListApplications:
		return h.handleListApplications(control)
	case wire.MsgAttach:
		return h.handleAttach(ctx, control, payload)
	case wire.MsgDetach:
		h.handleDetach()
		return nil
	case wire.MsgRefreshRequest:
		return h.handleRefreshRequest(payload)
	case wire.MsgKeepAlive:
		return nil
	default:
		return h.sendError(control, 0, wire.ErrBadRequest, fmt.Sprintf("unknown message type 0x%x", msgType))
	}
}

func (h *connHandler) handleListApplications(control *quic.Stream) error {
	apps := h.catalog.List()
	summaries := make([]wire.ApplicationSummary, 0, len(apps))
	for _, a := range apps {
		summaries = append(summaries, wire.ApplicationSummary{
			Name:        a.Name,
			Description: a.Description,
		})
	}
	payload := wire.EncodeApplicationList(wire.ApplicationList{Applications: summaries})
	return wire.WriteEnvelope(control, wire.MsgApplicationList, payload)
}

func (h *connHandler) handleAttach(ctx context.Context, control *quic.Stream, payload []byte) error {
	req, err := wire.DecodeAttach(payload)
	if err != nil {
		return h.sendError(control, 0, wire.ErrBadRequest, "malformed attach request")
	}

	app, ok := h.catalog.Get(req.Application)
	if !ok {
		return h.sendError(control, req.AttachmentID, wire.ErrNotFound, fmt.Sprintf("unknown application %q", req.Application))
	}

	// §8 property 2: odd dimensions are rounded up to the next even
	// value rather than rejected, and the rounded value is echoed back.
	params := session.DisplayParams{
		Width:     roundUpToEven(int(req.Width)),
		Height:    roundUpToEven(int(req.Height)),
		RefreshHz: int(req.Framerate),
		HDR:       req.ColorSpace == 1,
		Codec:     media.Codec(req.Codec),
	}

	if h.att != nil {
		h.cleanup()
	}

	if h.maxConnections > 0 && h.activeAttachments.Load() >= h.maxConnections {
		return h.sendError(control, req.AttachmentID, wire.ErrUnavailable, "max_connections limit reached")
	}

	sess := h.sessions.FindReattachable(session.Key{Application: app.Name, Params: params})
	if sess == nil {
		sess, err = h.startSession(ctx, &app, params)
		if err != nil {
			return h.sendError(control, req.AttachmentID, wire.ErrUnavailable, fmt.Sprintf("failed to start session: %v", err))
		}
		h.sessions.Create(sess)
	}

	writer := &streamWriter{conn: h.conn, pacer: NewBitratePacer(defaultInitialBitrateBps)}
	att := NewAttachment(fmt.Sprintf("%s/%s/%d", h.conn.RemoteAddr().String(), app.Name, req.AttachmentID), writer, h.log)
	att.SetEndNotifier(func(code wire.ErrorCode, message string) {
		if err := h.sendError(control, req.AttachmentID, code, message); err != nil {
			h.log.Warn("failed to notify client of session end", "error", err)
		}
	})
	if err := sess.Attach(att); err != nil {
		return h.sendError(control, req.AttachmentID, wire.ErrUnavailable, err.Error())
	}
	h.activeAttachments.Add(1)

	h.sess = sess
	h.att = att
	go att.Run()

	resp := wire.EncodeAttached(wire.Attached{
		AttachmentID: req.AttachmentID,
		SessionID:    sessionIDHash(sess.ID),
		Width:        uint32(params.Width),
		Height:       uint32(params.Height),
		Framerate:    req.Framerate,
	})
	return wire.WriteEnvelope(control, wire.MsgAttached, resp)
}

func (h *connHandler) handleDetach() {
	h.cleanup()
}

// handleRefreshRequest implements §4.2: an attachment worker that
// detects loss (e.g. too many undecodable frames) asks its session for
// a fresh keyframe and a new stream_seq generation rather than waiting
// for the next scheduled one.
func (h *connHandler) handleRefreshRequest(payload []byte) error {
	if _, err := wire.DecodeRefreshRequest(payload); err != nil {
		return err
	}
	if h.sess != nil {
		h.sess.RequestRefresh()
	}
	return nil
}

func (h *connHandler) sendError(control *quic.Stream, attachmentID uint64, code wire.ErrorCode, message string) error {
	payload := wire.EncodeError(wire.Error{AttachmentID: attachmentID, Code: code, Message: message})
	return wire.WriteEnvelope(control, wire.MsgError, payload)
}

func (h *connHandler) cleanup() {
	if h.att != nil {
		h.att.Close(h.sess)
		h.att = nil
		h.activeAttachments.Add(-1)
	}
}

// roundUpToEven rounds n up to the nearest even, non-negative value.
func roundUpToEven(n int) int {
	if n < 0 {
		n = 0
	}
	return n + n%2
}

// streamWriter adapts a QUIC connection's unidirectional streams to the
// FrameWriter interface, opening one media stream per packet (one per
// chunk, for a FEC-protected video frame) in the simplest correct
// implementation; a production sender would cache and reuse streams
// per media kind.
type streamWriter struct {
	conn  *quic.Conn
	pacer *BitratePacer
}

// WriteVideo packetises and FEC-protects frame per §4.1/§4.5 stage 4
// before sending: gpu.Packetize splits the access unit into source
// chunks and generates repair chunks at the layer's configured ratio,
// so a receiver losing up to its FEC budget's worth of chunks can still
// reconstruct the frame instead of the session having to wait for the
// next keyframe.
func (w *streamWriter) WriteVideo(frame media.VideoFrame) error {
	if w.pacer != nil && !frame.IsKeyframe && !w.pacer.AllowN(len(frame.Payload)) {
		return nil
	}

	au := gpu.EncodedAccessUnit{
		Payload:      frame.Payload,
		HeaderPrefix: frame.HeaderPrefix,
		IsKeyframe:   frame.IsKeyframe,
	}
	streamSeq := frame.StreamSeq
	if streamSeq == 0 {
		streamSeq = 1
	}
	packets := gpu.Packetize(au, streamSeq, frame.FrameSeq, frame.PTS, frame.HierarchicalLayer, frame.FECRatio)
	for _, pkt := range packets {
		if err := w.writePacket(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (w *streamWriter) WriteAudio(frame media.AudioFrame) error {
	pkt := wire.FramePacket{
		StreamSeq:   1,
		FrameSeq:    0,
		PTS:         frame.PTS,
		ChunkIndex:  0,
		TotalChunks: 1,
		FECIndex:    0,
		FECTotal:    1,
		Payload:     frame.Data,
	}
	return w.writePacket(pkt)
}

func (w *streamWriter) WriteCursor(update media.CursorUpdate) error {
	return nil
}

func (w *streamWriter) writePacket(pkt wire.FramePacket) error {
	stream, err := w.conn.OpenUniStreamSync(context.Background())
	if err != nil {
		return err
	}
	defer stream.Close()
	_, err = pkt.WriteTo(stream)
	return err
}
