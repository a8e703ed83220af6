package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	require.Equal(t, "ActorNotFound", KindActorNotFound.String())
	require.Equal(t, "Unknown", Kind(255).String())
}

func TestNewActorNotFoundRoundtrip(t *testing.T) {
	err := NewActorNotFound("echo")
	require.True(t, errors.Is(err, ErrActorNotFound))
	require.Equal(t, KindActorNotFound, err.Kind())
	require.Equal(t, KindActorNotFound, KindOf(err))
}

func TestNewActorFailedWrapsCause(t *testing.T) {
	cause := errors.New("handler panicked")
	err := NewActorFailed("ctr", cause)

	require.True(t, errors.Is(err, ErrActorFailed))
	require.True(t, errors.Is(err, cause))
	require.Equal(t, KindActorFailed, KindOf(err))
}

func TestKindOfUnknownDefaultsInternal(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestNewf(t *testing.T) {
	err := NewTimeout(42)
	require.Contains(t, err.Error(), "correlation_id=42")
	require.True(t, errors.Is(err, ErrTimeout))
}
