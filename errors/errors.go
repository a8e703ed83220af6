// Package errors defines the runtime's error taxonomy: a fixed set of
// kinds, each with a stable numeric wire code used when an error crosses
// a channel as an Error envelope, and a sentinel Go error for local use
// with errors.Is/errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Kind enumerates the runtime's error taxonomy. Values are stable across
// releases: they are transmitted on the wire as the payload discriminator
// of an Error envelope (see the envelope package), so renumbering breaks
// interoperability with older peers.
type Kind uint8

const (
	// KindActorNotFound means the destination actor does not exist, locally or after
	// a cross-node lookup.
	KindActorNotFound Kind = 1
	// KindDuplicate means create_actor was called with a uid that already exists.
	KindDuplicate Kind = 2
	// KindPeerGone means the channel to the destination failed or was closed.
	KindPeerGone Kind = 3
	// KindTimeout means a Send's deadline elapsed before a reply arrived.
	KindTimeout Kind = 4
	// KindCancelled means the caller cancelled the request before it completed.
	KindCancelled Kind = 5
	// KindBackpressure means a channel's outbound high-water mark was exceeded.
	KindBackpressure Kind = 6
	// KindPayloadTooLarge means an envelope exceeds the configured maximum size.
	KindPayloadTooLarge Kind = 7
	// KindUnsupportedCodec means the header named a codec_id with no registered codec.
	KindUnsupportedCodec Kind = 8
	// KindReentrancy means a handler attempted a synchronous self-call.
	KindReentrancy Kind = 9
	// KindSubPoolLost means the sub-pool hosting the destination actor went down.
	KindSubPoolLost Kind = 10
	// KindActorFailed means the actor was quarantined after repeated handler failures.
	KindActorFailed Kind = 11
	// KindProtocolError means a malformed frame or an invariant violated at the wire level.
	KindProtocolError Kind = 12
	// KindInternal means an invariant was violated at runtime; fatal to the current
	// handler only, never to the process.
	KindInternal Kind = 13
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindActorNotFound:
		return "ActorNotFound"
	case KindDuplicate:
		return "Duplicate"
	case KindPeerGone:
		return "PeerGone"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindBackpressure:
		return "Backpressure"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindUnsupportedCodec:
		return "UnsupportedCodec"
	case KindReentrancy:
		return "Reentrancy"
	case KindSubPoolLost:
		return "SubPoolLost"
	case KindActorFailed:
		return "ActorFailed"
	case KindProtocolError:
		return "ProtocolError"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

var (
	// ErrActorNotFound is the sentinel for KindActorNotFound.
	ErrActorNotFound = errors.New("actor not found")
	// ErrDuplicate is the sentinel for KindDuplicate.
	ErrDuplicate = errors.New("actor uid already exists")
	// ErrPeerGone is the sentinel for KindPeerGone.
	ErrPeerGone = errors.New("peer is gone")
	// ErrTimeout is the sentinel for KindTimeout.
	ErrTimeout = errors.New("request timed out")
	// ErrCancelled is the sentinel for KindCancelled.
	ErrCancelled = errors.New("request cancelled")
	// ErrBackpressure is the sentinel for KindBackpressure.
	ErrBackpressure = errors.New("channel backpressure limit reached")
	// ErrPayloadTooLarge is the sentinel for KindPayloadTooLarge.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum envelope size")
	// ErrUnsupportedCodec is the sentinel for KindUnsupportedCodec.
	ErrUnsupportedCodec = errors.New("unsupported codec")
	// ErrReentrancy is the sentinel for KindReentrancy.
	ErrReentrancy = errors.New("synchronous self-call is forbidden")
	// ErrSubPoolLost is the sentinel for KindSubPoolLost.
	ErrSubPoolLost = errors.New("sub-pool lost")
	// ErrActorFailed is the sentinel for KindActorFailed.
	ErrActorFailed = errors.New("actor quarantined after repeated failures")
	// ErrProtocolError is the sentinel for KindProtocolError.
	ErrProtocolError = errors.New("protocol error")
	// ErrInternal is the sentinel for KindInternal.
	ErrInternal = errors.New("internal invariant violated")
)

// kindSentinels maps each Kind to its sentinel, used by FromKind and Is.
var kindSentinels = map[Kind]error{
	KindActorNotFound:    ErrActorNotFound,
	KindDuplicate:        ErrDuplicate,
	KindPeerGone:         ErrPeerGone,
	KindTimeout:          ErrTimeout,
	KindCancelled:        ErrCancelled,
	KindBackpressure:     ErrBackpressure,
	KindPayloadTooLarge:  ErrPayloadTooLarge,
	KindUnsupportedCodec: ErrUnsupportedCodec,
	KindReentrancy:       ErrReentrancy,
	KindSubPoolLost:      ErrSubPoolLost,
	KindActorFailed:      ErrActorFailed,
	KindProtocolError:    ErrProtocolError,
	KindInternal:         ErrInternal,
}

// sentinelKinds is the inverse of kindSentinels, used by KindOf.
var sentinelKinds = func() map[error]Kind {
	m := make(map[error]Kind, len(kindSentinels))
	for k, v := range kindSentinels {
		m[v] = k
	}
	return m
}()

// WireError is an error that carries a stable Kind for wire transmission.
// The envelope codec uses Kind() to populate an Error envelope's
// discriminator; callers use errors.As to recover one from an error chain.
type WireError struct {
	kind Kind
	err  error
}

// enforce compilation error
var _ error = (*WireError)(nil)

// New wraps err with the given Kind, producing a *WireError. If err is
// nil, the kind's sentinel is used as the underlying error.
func New(kind Kind, err error) *WireError {
	if err == nil {
		err = kindSentinels[kind]
	}
	return &WireError{kind: kind, err: err}
}

// Newf formats a message and wraps it with the given Kind.
func Newf(kind Kind, format string, args ...any) *WireError {
	return New(kind, fmt.Errorf(format, args...))
}

// Kind returns the wire error's kind.
func (e *WireError) Kind() Kind { return e.kind }

// Error implements the error interface.
func (e *WireError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.err)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (e *WireError) Unwrap() error { return e.err }

// Is reports whether e's kind sentinel matches target, so
// errors.Is(err, ErrActorNotFound) works even through a *WireError.
func (e *WireError) Is(target error) bool {
	return errors.Is(kindSentinels[e.kind], target)
}

// KindOf extracts the Kind carried by err, walking the error chain via
// errors.As. It returns KindInternal if err carries no *WireError and
// matches no known sentinel.
func KindOf(err error) Kind {
	var wireErr *WireError
	if errors.As(err, &wireErr) {
		return wireErr.kind
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// NewActorNotFound formats an ErrActorNotFound with the given uid.
func NewActorNotFound(uid string) *WireError {
	return Newf(KindActorNotFound, "uid=%s: %w", uid, ErrActorNotFound)
}

// NewDuplicate formats an ErrDuplicate with the given uid.
func NewDuplicate(uid string) *WireError {
	return Newf(KindDuplicate, "uid=%s: %w", uid, ErrDuplicate)
}

// NewPeerGone formats an ErrPeerGone with the given peer address.
func NewPeerGone(address string) *WireError {
	return Newf(KindPeerGone, "peer=%s: %w", address, ErrPeerGone)
}

// NewTimeout formats an ErrTimeout for the given correlation id.
func NewTimeout(correlationID uint64) *WireError {
	return Newf(KindTimeout, "correlation_id=%d: %w", correlationID, ErrTimeout)
}

// NewBackpressure formats an ErrBackpressure for the given channel address.
func NewBackpressure(address string) *WireError {
	return Newf(KindBackpressure, "channel=%s: %w", address, ErrBackpressure)
}

// NewPayloadTooLarge formats an ErrPayloadTooLarge with the offending size and limit.
func NewPayloadTooLarge(size, limit int) *WireError {
	return Newf(KindPayloadTooLarge, "size=%d limit=%d: %w", size, limit, ErrPayloadTooLarge)
}

// NewUnsupportedCodec formats an ErrUnsupportedCodec with the offending codec id.
func NewUnsupportedCodec(codecID uint8) *WireError {
	return Newf(KindUnsupportedCodec, "codec_id=%d: %w", codecID, ErrUnsupportedCodec)
}

// NewReentrancy formats an ErrReentrancy for the given actor uid.
func NewReentrancy(uid string) *WireError {
	return Newf(KindReentrancy, "uid=%s: %w", uid, ErrReentrancy)
}

// NewSubPoolLost formats an ErrSubPoolLost with the offending sub-pool index.
func NewSubPoolLost(index int) *WireError {
	return Newf(KindSubPoolLost, "subpool=%d: %w", index, ErrSubPoolLost)
}

// NewActorFailed wraps an underlying cause with ErrActorFailed for the given uid.
func NewActorFailed(uid string, cause error) *WireError {
	return New(KindActorFailed, fmt.Errorf("uid=%s: %w: %w", uid, ErrActorFailed, cause))
}

// NewProtocolError wraps an underlying cause with ErrProtocolError.
func NewProtocolError(cause error) *WireError {
	return New(KindProtocolError, fmt.Errorf("%w: %w", ErrProtocolError, cause))
}

// NewInternal wraps an underlying cause with ErrInternal. Internal errors
// are fatal to the handler that raised them, never to the process.
func NewInternal(cause error) *WireError {
	return New(KindInternal, fmt.Errorf("%w: %w", ErrInternal, cause))
}

// EncodeWire renders err as an Error envelope payload: a one-byte Kind
// discriminator followed by the error's message text. Any error works, not
// only a *WireError; KindOf supplies the discriminator.
func EncodeWire(err error) []byte {
	kind := KindOf(err)
	msg := err.Error()
	out := make([]byte, 1+len(msg))
	out[0] = byte(kind)
	copy(out[1:], msg)
	return out
}

// DecodeWire reverses EncodeWire, reconstructing a *WireError carrying the
// original Kind and message. An empty payload decodes to KindInternal.
func DecodeWire(payload []byte) *WireError {
	if len(payload) == 0 {
		return New(KindInternal, nil)
	}
	kind := Kind(payload[0])
	msg := string(payload[1:])
	if _, ok := kindSentinels[kind]; !ok {
		kind = KindInternal
	}
	return New(kind, errors.New(msg))
}
