package envelope

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
)

// CodecBrotliMsgpack wraps MsgpackCodec with Brotli compression, an
// alternative to CodecZstdMsgpack for pools whose payloads are small
// text-like structures (brotli's static dictionary tends to win there)
// rather than the large binary blobs zstd is tuned for. Not registered by
// default; a pool opts in the same way as CodecZstdMsgpack.
const CodecBrotliMsgpack uint8 = 4

var brotliWriters = sync.Pool{
	New: func() any { return brotli.NewWriterLevel(nil, brotli.DefaultCompression) },
}

// BrotliCodec decorates another Codec, compressing its encoded output with
// Brotli and decompressing before handing bytes back to it. Mirrors
// CompressedCodec's shape so the registry treats either the same way.
type BrotliCodec struct {
	id    uint8
	name  string
	inner Codec
}

var _ Codec = (*BrotliCodec)(nil)

// NewBrotliCodec wraps inner, publishing id/name as the outer codec's
// identity on the wire.
func NewBrotliCodec(id uint8, name string, inner Codec) *BrotliCodec {
	return &BrotliCodec{id: id, name: name, inner: inner}
}

func (c *BrotliCodec) ID() uint8    { return c.id }
func (c *BrotliCodec) Name() string { return c.name }

func (c *BrotliCodec) Encode(v any) ([]byte, error) {
	raw, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	bw, ok := brotliWriters.Get().(*brotli.Writer)
	if !ok {
		return nil, fmt.Errorf("envelope: brotli writer pool returned wrong type")
	}
	defer brotliWriters.Put(bw)

	var buf bytes.Buffer
	bw.Reset(&buf)
	if _, err := bw.Write(raw); err != nil {
		return nil, fmt.Errorf("envelope: brotli encode: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("envelope: brotli encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *BrotliCodec) Decode(data []byte, v any) error {
	r := brotli.NewReader(bytes.NewReader(data))
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("envelope: brotli decode: %w", err)
	}
	return c.inner.Decode(raw, v)
}
