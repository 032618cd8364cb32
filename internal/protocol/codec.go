package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fenggwsx/hirechat/internal/chat"
)

const frameHeaderBytes = 4

// ErrFrameTooLarge is returned when a peer announces an oversized frame.
var ErrFrameTooLarge = errors.New("frame too large")

// Encoder writes envelopes with a length-prefixed JSON frame.
type Encoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// Decoder reads envelopes with a length-prefixed JSON frame.
type Decoder struct {
	reader   *bufio.Reader
	maxFrame int
}

// NewEncoder creates a new encoder for the given writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// NewDecoder creates a new decoder for the given reader. A maxFrame of zero
// disables the size check.
func NewDecoder(r io.Reader, maxFrame int) *Decoder {
	return &Decoder{reader: bufio.NewReader(r), maxFrame: maxFrame}
}

// Encode writes the envelope to the underlying writer. Header and body are
// written as one frame even with concurrent callers.
func (e *Encoder) Encode(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	frame := make([]byte, frameHeaderBytes+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[frameHeaderBytes:], data)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.writer.Write(frame)
	return err
}

// Decode reads the next envelope from the stream.
func (d *Decoder) Decode(ctx context.Context) (Envelope, error) {
	var env Envelope

	header := make([]byte, frameHeaderBytes)
	if err := d.readFull(ctx, header); err != nil {
		return env, err
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return env, &chat.ValidationError{Field: "frame", Reason: "empty"}
	}
	if d.maxFrame > 0 && int64(length) > int64(d.maxFrame) {
		return env, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if err := d.readFull(ctx, payload); err != nil {
		return env, err
	}

	return UnmarshalEnvelope(payload)
}

// UnmarshalEnvelope decodes one frame body. A malformed body is a
// *chat.ValidationError: the frame boundary is intact and the peer may go on.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &chat.ValidationError{Field: "frame", Reason: "malformed envelope"}
	}
	return env, nil
}

func (d *Decoder) readFull(ctx context.Context, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.reader.Read(buf[read:])
		if err != nil {
			if errors.Is(err, io.EOF) && read > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		read += n
	}
	return nil
}
