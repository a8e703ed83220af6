// Package bufferpool recycles the bytes.Buffer used to build an
// envelope's header on every send, so a busy router isn't allocating
// and discarding one per message.
package bufferpool

import (
	"bytes"
	"sync"
)

// Pool is the package-wide buffer pool; envelope encoding has no reason
// to keep more than one of these around.
var Pool = New()

type BufferPool struct {
	pool sync.Pool
}

func New() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
	}
}

func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

func (p *BufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	p.pool.Put(buf)
}
