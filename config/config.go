// Package config loads a pool's settings from a YAML file, environment
// variables, and CLI flags, in that order of increasing precedence
// (file < env < flag), and watches the file for changes that can be
// hot-swapped without a restart.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/luweizheng/xoscar/envelope"
)

var (
	// ErrAddressRequired reports a config with no listen address set.
	ErrAddressRequired = errors.New("config: address is required")
	// ErrInvalidCodec reports a codec name config.go does not recognize.
	ErrInvalidCodec = errors.New(`config: codec must be "protobuf" or "msgpack"`)
	// ErrInvalidRestartPolicy reports a restart_policy value outside the
	// two recognized policies.
	ErrInvalidRestartPolicy = errors.New(`config: restart_policy must be "on-failure" or "never"`)
)

// Discovery carries the peer-discovery provider's name and its
// provider-specific settings, passed through to discovery.Config
// verbatim once a Provider is selected.
type Discovery struct {
	Provider string         `yaml:"provider"`
	Config   map[string]any `yaml:"config"`
}

// Pool is the on-disk/env/flag shape of a pool's configuration, mirroring
// the CLI flags a pool accepts. Durations are kept as strings here (as
// they appear in YAML and on the command line) and only parsed into
// time.Duration by Resolve, so a malformed value surfaces as one
// validation error instead of a panic deep in some unrelated subsystem.
type Pool struct {
	Address           string    `yaml:"address"`
	NSubPools         int       `yaml:"n_subpools"`
	WorkerThreads     int       `yaml:"worker_threads"`
	Codec             string    `yaml:"codec"`
	MaxEnvelopeBytes  int       `yaml:"max_envelope_bytes"`
	HeartbeatInterval string    `yaml:"heartbeat_interval"`
	HeartbeatMisses   int       `yaml:"heartbeat_misses"`
	GracefulDeadline  string    `yaml:"graceful_deadline"`
	RestartPolicy     string    `yaml:"restart_policy"`
	// ProcessIsolation runs each sub-pool as its own OS process (re-exec
	// of the running binary) instead of an in-process actor.Kernel, so a
	// sub-pool's crash cannot take any other sub-pool down with it.
	ProcessIsolation bool      `yaml:"process_isolation"`
	Discovery        Discovery `yaml:"discovery"`
	LogLevel         string    `yaml:"log_level"`
	// LookupTTL supplements the flag set described in spec.md §6: it
	// makes the naming resolver's cache TTL (lookup.DefaultLookupTTL)
	// configurable and, like heartbeat_interval, safe to hot-swap.
	LookupTTL string `yaml:"lookup_ttl"`
}

// Default returns the baseline Pool a file/env/flag layer is merged on
// top of, matching the defaults the pool supervisor and resolver already
// fall back to on their own.
func Default() *Pool {
	return &Pool{
		Address:           "inproc://main",
		NSubPools:         1,
		WorkerThreads:     0,
		Codec:             "msgpack",
		MaxEnvelopeBytes:  256 << 20,
		HeartbeatInterval: "2s",
		HeartbeatMisses:   2,
		GracefulDeadline:  "10s",
		RestartPolicy:     "on-failure",
		ProcessIsolation:  false,
		LogLevel:          "info",
		LookupTTL:         "30s",
	}
}

// Clone returns a copy of p safe to hand to a second goroutine: every
// field is a value type except Discovery.Config, which is copied key by
// key so a watcher's hot-swap never shares a backing map with the config
// a component is still reading.
func (p *Pool) Clone() *Pool {
	out := *p
	if p.Discovery.Config != nil {
		out.Discovery.Config = make(map[string]any, len(p.Discovery.Config))
		for k, v := range p.Discovery.Config {
			out.Discovery.Config[k] = v
		}
	}
	return &out
}

// Validate checks p for internal consistency: required fields are set,
// enumerated fields hold a recognized value, and every duration string
// parses. It does not require a reachable address or discovery backend,
// since those are dialed lazily.
func (p *Pool) Validate() error {
	if p.Address == "" {
		return ErrAddressRequired
	}
	switch p.Codec {
	case "protobuf", "msgpack":
	default:
		return ErrInvalidCodec
	}
	switch p.RestartPolicy {
	case "on-failure", "never":
	default:
		return ErrInvalidRestartPolicy
	}
	if p.NSubPools < 0 {
		return fmt.Errorf("config: n_subpools must be >= 0, got %d", p.NSubPools)
	}
	if p.HeartbeatMisses < 0 {
		return fmt.Errorf("config: heartbeat_misses must be >= 0, got %d", p.HeartbeatMisses)
	}
	for name, raw := range map[string]string{
		"heartbeat_interval": p.HeartbeatInterval,
		"graceful_deadline":  p.GracefulDeadline,
		"lookup_ttl":         p.LookupTTL,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// Resolved is Pool with every duration and enumerated field parsed: the
// shape the supervisor, router, and resolver actually consume.
type Resolved struct {
	Address           string
	NSubPools         int
	WorkerThreads     int
	CodecID           uint8
	MaxEnvelopeBytes  int
	HeartbeatInterval time.Duration
	HeartbeatMisses   int
	GracefulDeadline  time.Duration
	RestartOnFailure  bool
	ProcessIsolation  bool
	Discovery         Discovery
	LogLevel          string
	LookupTTL         time.Duration
}

// Resolve validates p and parses it into a Resolved. Callers that only
// need the raw Pool, e.g. to re-marshal it back to YAML, should call
// Validate directly instead.
func (p *Pool) Resolve() (*Resolved, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	heartbeat, err := time.ParseDuration(p.HeartbeatInterval)
	if err != nil {
		return nil, fmt.Errorf("config: heartbeat_interval: %w", err)
	}
	graceful, err := time.ParseDuration(p.GracefulDeadline)
	if err != nil {
		return nil, fmt.Errorf("config: graceful_deadline: %w", err)
	}
	ttl, err := time.ParseDuration(p.LookupTTL)
	if err != nil {
		return nil, fmt.Errorf("config: lookup_ttl: %w", err)
	}

	var codecID uint8
	switch p.Codec {
	case "protobuf":
		codecID = envelope.CodecProtobuf
	case "msgpack":
		codecID = envelope.CodecMsgpack
	}

	return &Resolved{
		Address:           p.Address,
		NSubPools:         p.NSubPools,
		WorkerThreads:     p.WorkerThreads,
		CodecID:           codecID,
		MaxEnvelopeBytes:  p.MaxEnvelopeBytes,
		HeartbeatInterval: heartbeat,
		HeartbeatMisses:   p.HeartbeatMisses,
		GracefulDeadline:  graceful,
		RestartOnFailure:  p.RestartPolicy == "on-failure",
		ProcessIsolation:  p.ProcessIsolation,
		Discovery:         p.Discovery,
		LogLevel:          p.LogLevel,
		LookupTTL:         ttl,
	}, nil
}
