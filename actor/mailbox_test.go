package actor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxFIFOOrder(t *testing.T) {
	m := NewMailbox(4)
	a := &ReceiveContext{Payload: []byte("a")}
	b := &ReceiveContext{Payload: []byte("b")}

	require.NoError(t, m.Enqueue(a))
	require.NoError(t, m.Enqueue(b))

	require.Equal(t, a, m.Dequeue())
	require.Equal(t, b, m.Dequeue())
	require.Nil(t, m.Dequeue())
}

func TestMailboxIsEmptyAndLen(t *testing.T) {
	m := NewMailbox(4)
	require.True(t, m.IsEmpty())
	require.Equal(t, int64(0), m.Len())

	require.NoError(t, m.Enqueue(&ReceiveContext{}))
	require.False(t, m.IsEmpty())
	require.Equal(t, int64(1), m.Len())
}

func TestMailboxDisposeUnblocksAndErrors(t *testing.T) {
	m := NewMailbox(4)
	m.Dispose()
	require.Error(t, m.Enqueue(&ReceiveContext{}))
}
