package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// MaxFrameSize bounds a single frame's payload to guard against a corrupt or
// hostile length prefix causing an unbounded allocation.
const MaxFrameSize = 16 << 20 // 16 MiB; state payloads are expected to be tiny.

// ErrWouldBlock is returned by FrameReader's TryRead* methods when no complete frame is
// currently available on the connection. Callers should treat this as
// "nothing to do this tick", matching the original poll loop's handling of a
// WouldBlock socket read.
var ErrWouldBlock = errors.New("wire: would block")

// pollTimeout is the deadline used for each non-blocking read attempt: long
// enough to avoid needless CPU spin, short enough to keep the outer loop
// responsive.
const pollTimeout = 10 * time.Millisecond

// writeFrame marshals v with XDR and writes it as an 8-byte little-endian
// length prefix followed by the payload.
func writeFrame(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}

	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(buf.Len()))

	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// readFrame blocks until a full frame is read from r and unmarshals it into v.
func readFrame(r io.Reader, v interface{}) error {
	var lenPrefix [8]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: read frame length: %w", err)
	}

	length := binary.LittleEndian.Uint64(lenPrefix[:])
	if length > MaxFrameSize {
		return fmt.Errorf("wire: frame length %d exceeds maximum %d", length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("wire: read frame payload: %w", err)
	}

	if _, err := xdr.Unmarshal(bytes.NewReader(payload), v); err != nil {
		return fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	return nil
}

// WriteServerMessage writes a ServerMessage frame to conn.
func WriteServerMessage(conn net.Conn, msg ServerMessage) error {
	return writeFrame(conn, &msg)
}

// WriteClientMessage writes a ClientMessage frame to conn.
func WriteClientMessage(conn net.Conn, msg ClientMessage) error {
	return writeFrame(conn, &msg)
}

// ReadServerMessage blocks until a full ServerMessage frame arrives on conn.
func ReadServerMessage(conn net.Conn) (ServerMessage, error) {
	var msg ServerMessage
	err := readFrame(conn, &msg)
	return msg, err
}

// ReadClientMessage blocks until a full ClientMessage frame arrives on conn.
func ReadClientMessage(conn net.Conn) (ClientMessage, error) {
	var msg ClientMessage
	err := readFrame(conn, &msg)
	return msg, err
}

// FrameReader accumulates a single frame across repeated non-blocking reads
// of conn. A length prefix or payload that arrives split across several
// poll attempts is buffered here rather than lost, which a bare
// SetReadDeadline-per-call approach cannot guarantee.
type FrameReader struct {
	conn net.Conn

	lenBuf    [8]byte
	lenFilled int

	haveLen       bool
	frameLen      uint64
	payload       []byte
	payloadFilled int
}

// NewFrameReader returns a FrameReader reading frames from conn.
func NewFrameReader(conn net.Conn) *FrameReader {
	return &FrameReader{conn: conn}
}

// tryFill attempts to complete the in-progress frame with reads bounded by
// one short poll deadline. It returns the full payload once a frame is
// complete.
func (f *FrameReader) tryFill() ([]byte, error) {
	if err := f.conn.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		return nil, fmt.Errorf("wire: set read deadline: %w", err)
	}
	defer func() { _ = f.conn.SetReadDeadline(time.Time{}) }()

	if !f.haveLen {
		n, err := f.conn.Read(f.lenBuf[f.lenFilled:])
		f.lenFilled += n
		if f.lenFilled < len(f.lenBuf) {
			return nil, classifyReadErr(err)
		}

		f.frameLen = binary.LittleEndian.Uint64(f.lenBuf[:])
		if f.frameLen > MaxFrameSize {
			return nil, fmt.Errorf("wire: frame length %d exceeds maximum %d", f.frameLen, MaxFrameSize)
		}
		f.haveLen = true
		f.payload = make([]byte, f.frameLen)
		f.payloadFilled = 0
	}

	for f.payloadFilled < len(f.payload) {
		n, err := f.conn.Read(f.payload[f.payloadFilled:])
		f.payloadFilled += n
		if f.payloadFilled < len(f.payload) {
			return nil, classifyReadErr(err)
		}
	}

	payload := f.payload
	f.reset()
	return payload, nil
}

func (f *FrameReader) reset() {
	f.lenFilled = 0
	f.haveLen = false
	f.frameLen = 0
	f.payload = nil
	f.payloadFilled = 0
}

func classifyReadErr(err error) error {
	if err == nil {
		return ErrWouldBlock
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrWouldBlock
	}
	return fmt.Errorf("wire: read frame: %w", err)
}

// TryReadServerMessage attempts to complete a ServerMessage frame without
// blocking the caller for longer than a short poll interval. Returns
// ErrWouldBlock if the frame is not yet complete.
func (f *FrameReader) TryReadServerMessage() (ServerMessage, error) {
	var msg ServerMessage
	payload, err := f.tryFill()
	if err != nil {
		return msg, err
	}
	if _, err := xdr.Unmarshal(bytes.NewReader(payload), &msg); err != nil {
		return msg, fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	return msg, nil
}

// TryReadClientMessage attempts to complete a ClientMessage frame without
// blocking the caller for longer than a short poll interval. Returns
// ErrWouldBlock if the frame is not yet complete.
func (f *FrameReader) TryReadClientMessage() (ClientMessage, error) {
	var msg ClientMessage
	payload, err := f.tryFill()
	if err != nil {
		return msg, err
	}
	if _, err := xdr.Unmarshal(bytes.NewReader(payload), &msg); err != nil {
		return msg, fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	return msg, nil
}
