package wire

import "errors"

// Sentinel errors for control-stream message parsing, mirroring the
// teacher's internal/moq/errors.go.
var (
	ErrTruncated    = errors.New("wire: message truncated")
	ErrUnknownMsg   = errors.New("wire: unknown message type")
	ErrBadStreamSeq = errors.New("wire: stream_seq must be nonzero")
)

// ParseError names the field that failed to parse, for diagnostic logging.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string { return "wire: parse " + e.Field + ": " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }
