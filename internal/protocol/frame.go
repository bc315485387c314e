// Package protocol implements the native-messaging wire format shared with
// the browser extension peer: each frame is a 4-byte native-endian length
// prefix followed by exactly that many bytes of UTF-8 JSON.
//
// The prefix endianness is a cross-process contract with the peer, which
// reads it with the host's byte order. Both ends run on the same machine,
// so native order is correct here; a remote transport would need an agreed
// fixed order instead.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize caps a single frame payload. A length prefix beyond this is
// treated as stream corruption: the body cannot be skipped safely, so the
// connection is unrecoverable.
const MaxFrameSize = 16 * 1024 * 1024

// ErrTruncated reports that the stream ended before a complete frame was
// read. It means the peer hung up, not that the data was corrupt.
var ErrTruncated = errors.New("protocol: truncated frame")

// MalformedError reports a frame whose body is not valid JSON. The length
// prefix still delimited the frame correctly, so the caller may skip the
// payload and keep reading.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("protocol: malformed frame payload: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// ReadFrame reads one length-prefixed JSON payload from r.
//
// It returns ErrTruncated if the stream ends mid-prefix or mid-body, a
// *MalformedError if the body is not valid JSON, and other errors verbatim.
func ReadFrame(r io.Reader) (json.RawMessage, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read frame prefix: %w", err)
	}
	length := binary.NativeEndian.Uint32(prefix[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("protocol: frame length %d exceeds limit %d", length, MaxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	if !json.Valid(body) {
		return nil, &MalformedError{Err: errors.New("body is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// WriteFrame writes one length-prefixed payload to w and flushes it if w is
// buffered. The peer blocks on exact-length reads, so a frame sitting in a
// buffer is indistinguishable from silence on its side.
func WriteFrame(w io.Writer, payload []byte) error {
	var prefix [4]byte
	binary.NativeEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush frame: %w", err)
		}
	}
	return nil
}

// WriteMessage marshals msg and writes it as a single frame.
func WriteMessage(w io.Writer, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame payload: %w", err)
	}
	return WriteFrame(w, b)
}
