package envelope

import (
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"

	xoscarerrors "github.com/luweizheng/xoscar/errors"
)

// Codec (de)serializes a Go value to and from the opaque payload bytes
// carried by an Envelope. Codecs are registered once at process startup
// through the extension registry and selected per-envelope by CodecID.
type Codec interface {
	// ID returns the codec_id written into every envelope header encoded
	// with this codec.
	ID() uint8
	// Name returns a human-readable identifier, used in config and logs.
	Name() string
	// Encode serializes v to bytes.
	Encode(v any) ([]byte, error)
	// Decode deserializes data into v, a pointer to the destination type.
	Decode(data []byte, v any) error
}

const (
	// CodecProtobuf is the built-in codec id for protocol buffer payloads.
	CodecProtobuf uint8 = 1
	// CodecMsgpack is the built-in codec id for MessagePack payloads.
	CodecMsgpack uint8 = 2
	// CodecBypass marks a payload carried by reference, never serialized;
	// only valid on the in-memory transport driver.
	CodecBypass uint8 = 0
)

// ProtobufCodec implements Codec for github.com/golang/protobuf-style
// messages via google.golang.org/protobuf.
type ProtobufCodec struct{}

var _ Codec = ProtobufCodec{}

func (ProtobufCodec) ID() uint8      { return CodecProtobuf }
func (ProtobufCodec) Name() string   { return "protobuf" }

func (ProtobufCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf codec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (ProtobufCodec) Decode(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("protobuf codec: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}

// MsgpackCodec implements Codec for arbitrary Go values via
// github.com/vmihailenco/msgpack/v5, useful for payloads that are not
// protobuf-generated types.
type MsgpackCodec struct{}

var _ Codec = MsgpackCodec{}

func (MsgpackCodec) ID() uint8    { return CodecMsgpack }
func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// Registry is a process-wide, thread-safe table of codecs keyed by
// codec_id. It is populated once at pool startup, as part of the
// extension registry, and never mutated inside a handler.
type Registry struct {
	mu     sync.RWMutex
	codecs map[uint8]Codec
}

// NewRegistry returns a Registry preloaded with the two built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[uint8]Codec)}
	r.Register(ProtobufCodec{})
	r.Register(MsgpackCodec{})
	return r
}

// Register installs c under c.ID(), replacing any codec previously
// registered for that id.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ID()] = c
}

// Lookup returns the codec registered for id, or a KindUnsupportedCodec
// error if none is registered.
func (r *Registry) Lookup(id uint8) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[id]
	if !ok {
		return nil, xoscarerrors.NewUnsupportedCodec(id)
	}
	return c, nil
}
