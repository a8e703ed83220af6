package discovery

import (
	"errors"
	"fmt"
)

// Config carries provider-specific settings (addresses, tokens, TTLs, ...).
// Each provider documents the keys it reads from Config.
type Config map[string]any

// NewConfig returns an empty Config.
func NewConfig() Config {
	return Config{}
}

// GetString returns the string value stored at key.
func (c Config) GetString(key string) (string, error) {
	val, ok := c[key]
	if !ok {
		return "", fmt.Errorf("discovery: key=%s not found", key)
	}
	s, ok := val.(string)
	if !ok {
		return "", errors.New("discovery: value is not a string")
	}
	return s, nil
}

// GetInt returns the int value stored at key.
func (c Config) GetInt(key string) (int, error) {
	val, ok := c[key]
	if !ok {
		return 0, fmt.Errorf("discovery: key=%s not found", key)
	}
	i, ok := val.(int)
	if !ok {
		return 0, errors.New("discovery: value is not an int")
	}
	return i, nil
}

// GetStringSlice returns the []string value stored at key.
func (c Config) GetStringSlice(key string) ([]string, error) {
	val, ok := c[key]
	if !ok {
		return nil, fmt.Errorf("discovery: key=%s not found", key)
	}
	s, ok := val.([]string)
	if !ok {
		return nil, errors.New("discovery: value is not a []string")
	}
	return s, nil
}

// Provider discovers peer pools reachable from the current pool (
// Naming & lookup). Implementations wrap a concrete service registry:
// Consul, etcd, NATS, mDNS, or a static list.
type Provider interface {
	// ID returns the provider's name, used in logs and metrics.
	ID() string
	// Initialize allocates clients and validates configuration. Called once
	// before Register or DiscoverPeers.
	Initialize() error
	// Register announces this pool's address to the registry.
	Register() error
	// Deregister removes this pool's address from the registry.
	Deregister() error
	// SetConfig installs the provider configuration. Must be called before
	// Initialize.
	SetConfig(config Config) error
	// DiscoverPeers returns the host:port addresses of peer pools currently
	// known to the registry, excluding this pool.
	DiscoverPeers() ([]string, error)
	// Close releases resources held by the provider.
	Close() error
}
