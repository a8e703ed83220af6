package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCompletesWithValue(t *testing.T) {
	f := New(func() (string, error) {
		return "hi", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := f.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}

func TestNewCompletesWithError(t *testing.T) {
	boom := errors.New("boom")
	f := New(func() (int, error) {
		return 0, boom
	})

	v, err := f.Await(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, v)
}

func TestAwaitRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	f := New(func() (int, error) {
		<-block
		return 1, nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompletableSuccessOnce(t *testing.T) {
	c := NewCompletable[int]()
	c.Success(1)
	c.Success(2) // ignored: single-assignment

	v, err := c.Future().Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestCompletableFailure(t *testing.T) {
	c := NewCompletable[string]()
	boom := errors.New("boom")
	c.Failure(boom)

	_, err := c.Future().Await(context.Background())
	require.ErrorIs(t, err, boom)
}
