package extension

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubActor struct{}

func TestRegistryCodecsPreloaded(t *testing.T) {
	r := New()
	_, err := r.Codecs().Lookup(1)
	require.NoError(t, err)
}

func TestRegisterAndLookupClass(t *testing.T) {
	r := New()
	r.RegisterClass("echo", func(initArgs []byte) (any, error) {
		return &stubActor{}, nil
	})

	ctor, err := r.LookupClass("echo")
	require.NoError(t, err)
	instance, err := ctor(nil)
	require.NoError(t, err)
	require.IsType(t, &stubActor{}, instance)
}

func TestLookupUnknownClassFails(t *testing.T) {
	r := New()
	_, err := r.LookupClass("missing")
	require.Error(t, err)
}

func TestCollectiveDefaultsToNil(t *testing.T) {
	r := New()
	require.Nil(t, r.Collective())
}
