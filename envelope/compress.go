package envelope

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CodecZstdMsgpack wraps MsgpackCodec with Zstandard compression, for pools
// whose payloads are large enough that the CPU cost of compression is worth
// the bandwidth it saves. It is not registered by default; a pool opts in
// by calling Registry.Register(NewCompressedCodec(...)) during startup.
const CodecZstdMsgpack uint8 = 3

var zstdEncoders = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

var zstdDecoders = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// CompressedCodec decorates another Codec, compressing its encoded output
// with Zstandard and decompressing before handing bytes back to it.
type CompressedCodec struct {
	id    uint8
	name  string
	inner Codec
}

var _ Codec = (*CompressedCodec)(nil)

// NewCompressedCodec wraps inner, publishing id/name as the outer codec's
// identity so the registry and the wire header see a single codec rather
// than a compression layer bolted onto an existing one.
func NewCompressedCodec(id uint8, name string, inner Codec) *CompressedCodec {
	return &CompressedCodec{id: id, name: name, inner: inner}
}

func (c *CompressedCodec) ID() uint8    { return c.id }
func (c *CompressedCodec) Name() string { return c.name }

func (c *CompressedCodec) Encode(v any) ([]byte, error) {
	raw, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	enc, ok := zstdEncoders.Get().(*zstd.Encoder)
	if !ok {
		return nil, fmt.Errorf("envelope: zstd encoder pool returned wrong type")
	}
	defer zstdEncoders.Put(enc)
	return enc.EncodeAll(raw, nil), nil
}

func (c *CompressedCodec) Decode(data []byte, v any) error {
	dec, ok := zstdDecoders.Get().(*zstd.Decoder)
	if !ok {
		return fmt.Errorf("envelope: zstd decoder pool returned wrong type")
	}
	defer zstdDecoders.Put(dec)
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("envelope: zstd decode: %w", err)
	}
	return c.inner.Decode(raw, v)
}
