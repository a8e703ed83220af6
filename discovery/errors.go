// Package discovery defines the naming & lookup collaborator interface used
// by the pool supervisor to learn about peer pools reachable on the network.
package discovery

import "errors"

var (
	// ErrAlreadyInitialized is used when attempting to re-initialize a discovery provider.
	ErrAlreadyInitialized = errors.New("discovery: provider already initialized")
	// ErrNotInitialized is used when the provider is used before Initialize.
	ErrNotInitialized = errors.New("discovery: provider not initialized")
	// ErrAlreadyRegistered is used when attempting to re-register the provider.
	ErrAlreadyRegistered = errors.New("discovery: provider already registered")
	// ErrNotRegistered is used when attempting to deregister a provider that never registered.
	ErrNotRegistered = errors.New("discovery: provider is not registered")
	// ErrInvalidConfig is used when a discovery provider configuration fails validation.
	ErrInvalidConfig = errors.New("discovery: invalid provider configuration")
)
