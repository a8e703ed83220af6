// Package envelope defines the wire-framed message unit that flows
// between routers: a fixed binary header plus an opaque, codec-selected
// payload. Every transport driver in package transport speaks this frame.
package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	xoscarerrors "github.com/luweizheng/xoscar/errors"
	"github.com/luweizheng/xoscar/internal/bufferpool"
)

// Magic is the 4-byte frame marker "XOSC", written first on every frame.
const Magic uint32 = 0x584F5343

// Kind discriminates the purpose of an Envelope.
type Kind uint8

const (
	// KindSend is a request that expects a Reply or Error.
	KindSend Kind = 1
	// KindTell is fire-and-forget; no reply is expected.
	KindTell Kind = 2
	// KindReply carries a successful response, matched by CorrelationID.
	KindReply Kind = 3
	// KindError carries a failed response, matched by CorrelationID.
	KindError Kind = 4
	// KindCancel asks the destination to drop or interrupt a prior Send.
	KindCancel Kind = 5
	// KindControl carries protocol-internal traffic: handshake, ping, stop.
	KindControl Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "Send"
	case KindTell:
		return "Tell"
	case KindReply:
		return "Reply"
	case KindError:
		return "Error"
	case KindCancel:
		return "Cancel"
	case KindControl:
		return "Control"
	default:
		return "Unknown"
	}
}

// Flag is a bitmask carried in the header's flags field.
type Flag uint16

const (
	// FlagTellAck asks the destination to acknowledge delivery of a Tell,
	// even though Tell itself has no reply. Off by default.
	FlagTellAck Flag = 1 << 0
	// FlagBypassCodec marks a payload that was never serialized, used by
	// the in-memory transport driver to pass Go values by reference.
	FlagBypassCodec Flag = 1 << 1
)

// Address identifies an endpoint-qualified actor: a pool address plus a
// uid unique within that pool.
type Address struct {
	Endpoint string // e.g. "tcp://host:port" or "tcp://host:port/subpool/3"
	UID      string
}

func (a Address) String() string {
	if a.UID == "" {
		return a.Endpoint
	}
	return a.Endpoint + "#" + a.UID
}

// IsZero reports whether a is the empty Address, used for the optional
// "from" field on Tell envelopes sent anonymously.
func (a Address) IsZero() bool {
	return a.Endpoint == "" && a.UID == ""
}

// Envelope is the framed, typed message unit exchanged between routers.
type Envelope struct {
	EnvelopeID    uint64
	Kind          Kind
	From          Address // zero value means absent
	To            Address
	CorrelationID uint64 // zero means absent; Send sets this, Tell does not
	HasDeadline   bool
	DeadlineUnixNano int64
	CodecID       uint8
	Flags         Flag
	Payload       []byte
}

// HasFlag reports whether f is set on the envelope.
func (e *Envelope) HasFlag(f Flag) bool { return e.Flags&f != 0 }

const (
	headerMagicLen  = 4
	headerTotalLen  = 4
	headerHeaderLen = 2
	frameFixedLen   = headerMagicLen + headerTotalLen + headerHeaderLen
)

// MaxEnvelopeBytes is the default per-process maximum total frame size.
// Larger payloads are rejected before send with an error carrying
// errors.KindPayloadTooLarge.
const MaxEnvelopeBytes = 256 * 1024 * 1024

// Encode serializes e into the wire frame described by the header layout:
// magic | total_len(u32) | header_len(u16) | header | payload. maxBytes
// bounds the resulting frame; pass 0 to use MaxEnvelopeBytes.
func Encode(e *Envelope, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = MaxEnvelopeBytes
	}

	header := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(header)

	writeUint64(header, e.EnvelopeID)
	header.WriteByte(byte(e.Kind))
	header.WriteByte(e.CodecID)
	writeUint16(header, uint16(e.Flags))
	writeUint64(header, e.CorrelationID)

	if e.HasDeadline {
		header.WriteByte(1)
		writeUint64(header, uint64(e.DeadlineUnixNano))
	} else {
		header.WriteByte(0)
	}

	writeAddress(header, e.From)
	writeAddress(header, e.To)

	headerLen := header.Len()
	if headerLen > math.MaxUint16 {
		return nil, fmt.Errorf("envelope: header too large: %d bytes", headerLen)
	}

	total := frameFixedLen + headerLen + len(e.Payload)
	if total > maxBytes {
		return nil, xoscarerrors.NewPayloadTooLarge(total, maxBytes)
	}

	out := make([]byte, 0, total)
	out = appendUint32(out, Magic)
	out = appendUint32(out, uint32(headerLen+len(e.Payload)))
	out = appendUint16(out, uint16(headerLen))
	out = append(out, header.Bytes()...)
	out = append(out, e.Payload...)
	return out, nil
}

// Decode parses a wire frame produced by Encode. It returns the number of
// bytes consumed from frame alongside the decoded Envelope, so callers
// streaming from a connection can detect trailing garbage.
func Decode(frame []byte) (*Envelope, int, error) {
	if len(frame) < frameFixedLen {
		return nil, 0, fmt.Errorf("envelope: frame shorter than fixed header")
	}

	magic := binary.BigEndian.Uint32(frame[0:4])
	if magic != Magic {
		return nil, 0, fmt.Errorf("envelope: bad magic 0x%08x", magic)
	}

	totalLen := binary.BigEndian.Uint32(frame[4:8])
	headerLen := binary.BigEndian.Uint16(frame[8:10])

	need := frameFixedLen + int(totalLen)
	if len(frame) < need {
		return nil, 0, fmt.Errorf("envelope: short frame: need %d have %d", need, len(frame))
	}
	if int(headerLen) > int(totalLen) {
		return nil, 0, fmt.Errorf("envelope: header_len %d exceeds total_len %d", headerLen, totalLen)
	}

	body := frame[frameFixedLen:need]
	header := body[:headerLen]
	payload := body[headerLen:]

	e := &Envelope{}
	r := &reader{buf: header}

	e.EnvelopeID = r.uint64()
	e.Kind = Kind(r.byte())
	e.CodecID = r.byte()
	e.Flags = Flag(r.uint16())
	e.CorrelationID = r.uint64()

	if r.byte() != 0 {
		e.HasDeadline = true
		e.DeadlineUnixNano = int64(r.uint64())
	}

	e.From = r.address()
	e.To = r.address()

	if r.err != nil {
		return nil, 0, fmt.Errorf("envelope: malformed header: %w", r.err)
	}

	e.Payload = append([]byte(nil), payload...)
	return e, need, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeAddress(buf *bytes.Buffer, a Address) {
	s := a.String()
	if a.IsZero() {
		s = ""
	}
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// reader sequentially decodes fixed-width fields from a header buffer,
// recording the first error encountered so callers can check it once at
// the end instead of after every field.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("unexpected end of header at offset %d, need %d more bytes", r.off, n)
		return false
	}
	return true
}

func (r *reader) byte() byte {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) uint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) uint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) address() Address {
	n := int(r.uint16())
	if !r.need(n) {
		return Address{}
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	if s == "" {
		return Address{}
	}
	if idx := bytes.IndexByte([]byte(s), '#'); idx >= 0 {
		return Address{Endpoint: s[:idx], UID: s[idx+1:]}
	}
	return Address{Endpoint: s}
}
