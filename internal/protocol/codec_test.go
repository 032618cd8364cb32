package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/chat"
)

func TestCodec_RoundTripsFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	ctx := context.Background()

	require.NoError(t, enc.Encode(ctx, Envelope{ID: "1", Type: MessageTypeJoinRoom, Payload: JoinRoom{ReceiverID: "h1", ReceiverKind: "hr"}}))
	require.NoError(t, enc.Encode(ctx, Envelope{ID: "2", Type: MessageTypeError, Payload: ErrorPayload{Message: "nope"}}))

	dec := NewDecoder(&buf, 0)
	first, err := dec.Decode(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", first.ID)
	join, err := DecodePayload[JoinRoom](first.Payload)
	require.NoError(t, err)
	require.Equal(t, "h1", join.ReceiverID)

	second, err := dec.Decode(ctx)
	require.NoError(t, err)
	require.Equal(t, MessageTypeError, second.Type)

	_, err = dec.Decode(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_RejectsOversizedFrames(t *testing.T) {
	header := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(header, 1<<20)

	_, err := NewDecoder(bytes.NewReader(header), 1024).Decode(context.Background())
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecoder_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(context.Background(), Envelope{ID: "x", Type: MessageTypeJoinRoom}))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := NewDecoder(bytes.NewReader(truncated), 0).Decode(context.Background())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecoder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDecoder(bytes.NewReader([]byte{0, 0, 0, 1, '{'}), 0).Decode(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecoder_MalformedFrameKeepsStreamInSync(t *testing.T) {
	var buf bytes.Buffer
	writeRawFrame(&buf, []byte("{not json"))
	writeRawFrame(&buf, []byte(`{"id":"x","type":"join-room","timestamp":"yesterday"}`))
	require.NoError(t, NewEncoder(&buf).Encode(context.Background(), Envelope{ID: "ok", Type: MessageTypeJoinRoom}))
	buf.Write([]byte{0, 0, 0, 0})

	dec := NewDecoder(&buf, 0)
	for i := 0; i < 2; i++ {
		_, err := dec.Decode(context.Background())
		require.ErrorIs(t, err, chat.ErrValidation)
		require.EqualError(t, err, "invalid frame: malformed envelope")
	}

	env, err := dec.Decode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", env.ID)

	_, err = dec.Decode(context.Background())
	require.ErrorIs(t, err, chat.ErrValidation)
}

func writeRawFrame(buf *bytes.Buffer, body []byte) {
	header := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	buf.Write(header)
	buf.Write(body)
}
