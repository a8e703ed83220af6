package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsMissingAddress(t *testing.T) {
	cfg := Default()
	cfg.Address = ""
	require.ErrorIs(t, cfg.Validate(), ErrAddressRequired)
}

func TestValidateRejectsUnknownCodec(t *testing.T) {
	cfg := Default()
	cfg.Codec = "json"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidCodec)
}

func TestValidateRejectsUnknownRestartPolicy(t *testing.T) {
	cfg := Default()
	cfg.RestartPolicy = "always"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidRestartPolicy)
}

func TestValidateRejectsMalformedDuration(t *testing.T) {
	cfg := Default()
	cfg.HeartbeatInterval = "soon"
	require.Error(t, cfg.Validate())
}

func TestResolveParsesDurationsAndCodec(t *testing.T) {
	cfg := Default()
	cfg.Codec = "protobuf"
	cfg.HeartbeatInterval = "5s"

	resolved, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, resolved.HeartbeatInterval)
	assert.Equal(t, uint8(1), resolved.CodecID)
	assert.True(t, resolved.RestartOnFailure)
}

func TestCloneIsIndependentOfDiscoveryConfig(t *testing.T) {
	cfg := Default()
	cfg.Discovery.Config = map[string]any{"addr": "127.0.0.1:8500"}

	clone := cfg.Clone()
	clone.Discovery.Config["addr"] = "changed"

	assert.Equal(t, "127.0.0.1:8500", cfg.Discovery.Config["addr"])
}
