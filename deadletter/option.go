package deadletter

import "github.com/luweizheng/xoscar/log"

// Option configures a Stream at construction time.
type Option interface {
	Apply(stream *Stream)
}

var _ Option = OptionFunc(nil)

// OptionFunc adapts a plain function to Option.
type OptionFunc func(stream *Stream)

func (f OptionFunc) Apply(stream *Stream) {
	f(stream)
}

// WithLogger overrides the stream's logger.
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(stream *Stream) {
		stream.logger = logger
	})
}

// WithCapacity overrides the per-subscriber channel capacity.
func WithCapacity(capacity int) Option {
	return OptionFunc(func(stream *Stream) {
		stream.capacity = capacity
	})
}
