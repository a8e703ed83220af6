package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	e := &Envelope{
		EnvelopeID:    7,
		Kind:          KindSend,
		From:          Address{Endpoint: "tcp://10.0.0.1:4000", UID: "caller"},
		To:            Address{Endpoint: "tcp://10.0.0.2:4000", UID: "echo"},
		CorrelationID: 42,
		HasDeadline:   true,
		DeadlineUnixNano: 1234567890,
		CodecID:       CodecMsgpack,
		Flags:         FlagTellAck,
		Payload:       []byte("hello"),
	}

	frame, err := Encode(e, 0)
	require.NoError(t, err)

	got, n, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, len(frame), n)

	require.Equal(t, e.EnvelopeID, got.EnvelopeID)
	require.Equal(t, e.Kind, got.Kind)
	require.Equal(t, e.From, got.From)
	require.Equal(t, e.To, got.To)
	require.Equal(t, e.CorrelationID, got.CorrelationID)
	require.True(t, got.HasDeadline)
	require.Equal(t, e.DeadlineUnixNano, got.DeadlineUnixNano)
	require.Equal(t, e.CodecID, got.CodecID)
	require.Equal(t, e.Flags, got.Flags)
	require.Equal(t, e.Payload, got.Payload)
	require.True(t, got.HasFlag(FlagTellAck))
}

func TestEncodeWithoutFromAddress(t *testing.T) {
	e := &Envelope{
		EnvelopeID: 1,
		Kind:       KindTell,
		To:         Address{Endpoint: "inproc://p0", UID: "ctr"},
		CodecID:    CodecBypass,
		Payload:    []byte{1, 2, 3},
	}

	frame, err := Encode(e, 0)
	require.NoError(t, err)

	got, _, err := Decode(frame)
	require.NoError(t, err)
	require.True(t, got.From.IsZero())
	require.Equal(t, e.To, got.To)
}

func TestEncodeRejectsOversizedFrame(t *testing.T) {
	e := &Envelope{
		EnvelopeID: 1,
		Kind:       KindTell,
		To:         Address{Endpoint: "inproc://p0", UID: "ctr"},
		Payload:    make([]byte, 1024),
	}

	_, err := Encode(e, 100)
	require.Error(t, err)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	frame := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, _, err := Decode(frame)
	require.Error(t, err)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, _, err := Decode([]byte{0x58, 0x4F, 0x53})
	require.Error(t, err)
}

func TestCodecRegistryRoundtrip(t *testing.T) {
	reg := NewRegistry()

	codec, err := reg.Lookup(CodecMsgpack)
	require.NoError(t, err)
	require.Equal(t, "msgpack", codec.Name())

	data, err := codec.Encode(map[string]int{"x": 1})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, codec.Decode(data, &out))
	require.Equal(t, 1, out["x"])
}

func TestCodecRegistryUnknownID(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Lookup(200)
	require.Error(t, err)
}
