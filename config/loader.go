package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment-variable override so a pool's
// settings never collide with an unrelated variable of the same short
// name in the host environment.
const envPrefix = "XOSCAR_"

// Load builds a Pool from, in increasing precedence, Default(), the YAML
// file at path (skipped entirely if path is empty), environment
// variables, and the flags parsed out of args. The returned Pool has
// already been validated.
func Load(path string, args []string) (*Pool, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := applyFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile unmarshals the YAML document at path onto cfg, overwriting
// only the keys present in the document.
func loadFile(path string, cfg *Pool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overwrites cfg's fields with any matching XOSCAR_* environment
// variable, left unset fields untouched by an absent variable.
func applyEnv(cfg *Pool) {
	if v, ok := os.LookupEnv(envPrefix + "ADDRESS"); ok {
		cfg.Address = v
	}
	if v, ok := lookupEnvInt(envPrefix + "N_SUBPOOLS"); ok {
		cfg.NSubPools = v
	}
	if v, ok := lookupEnvInt(envPrefix + "WORKER_THREADS"); ok {
		cfg.WorkerThreads = v
	}
	if v, ok := os.LookupEnv(envPrefix + "CODEC"); ok {
		cfg.Codec = v
	}
	if v, ok := lookupEnvInt(envPrefix + "MAX_ENVELOPE_BYTES"); ok {
		cfg.MaxEnvelopeBytes = v
	}
	if v, ok := os.LookupEnv(envPrefix + "HEARTBEAT_INTERVAL"); ok {
		cfg.HeartbeatInterval = v
	}
	if v, ok := lookupEnvInt(envPrefix + "HEARTBEAT_MISSES"); ok {
		cfg.HeartbeatMisses = v
	}
	if v, ok := os.LookupEnv(envPrefix + "GRACEFUL_DEADLINE"); ok {
		cfg.GracefulDeadline = v
	}
	if v, ok := os.LookupEnv(envPrefix + "RESTART_POLICY"); ok {
		cfg.RestartPolicy = v
	}
	if v, ok := lookupEnvBool(envPrefix + "PROCESS_ISOLATION"); ok {
		cfg.ProcessIsolation = v
	}
	if v, ok := os.LookupEnv(envPrefix + "DISCOVERY_PROVIDER"); ok {
		cfg.Discovery.Provider = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOOKUP_TTL"); ok {
		cfg.LookupTTL = v
	}
}

func lookupEnvInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}

// applyFlags parses args against the flag set of spec.md §6 and
// overwrites cfg's fields with exactly the flags the caller passed
// explicitly — flag.FlagSet.Visit, not VisitAll, so a flag the caller
// did not pass never clobbers a value already set by the file or the
// environment. fs.Parse defaults every flag to cfg's current value
// purely so --help prints the value that would actually be used.
func applyFlags(cfg *Pool, args []string) error {
	fs := flag.NewFlagSet("xoscpool", flag.ContinueOnError)

	address := fs.String("address", cfg.Address, "pool listen address")
	nSubPools := fs.Int("n-subpools", cfg.NSubPools, "number of sub-pools")
	workerThreads := fs.Int("worker-threads", cfg.WorkerThreads, "worker goroutines per sub-pool (0 = GOMAXPROCS)")
	codec := fs.String("codec", cfg.Codec, `default codec ("protobuf" or "msgpack")`)
	maxEnvelopeBytes := fs.Int("max-envelope-bytes", cfg.MaxEnvelopeBytes, "maximum accepted envelope size in bytes")
	heartbeatInterval := fs.String("heartbeat-interval", cfg.HeartbeatInterval, "sub-pool heartbeat interval")
	heartbeatMisses := fs.Int("heartbeat-misses", cfg.HeartbeatMisses, "missed heartbeats before a sub-pool is marked down")
	gracefulDeadline := fs.String("graceful-deadline", cfg.GracefulDeadline, "graceful shutdown deadline before a forced stop")
	restartPolicy := fs.String("restart-policy", cfg.RestartPolicy, `sub-pool restart policy ("on-failure" or "never")`)
	processIsolation := fs.Bool("process-isolation", cfg.ProcessIsolation, "run each sub-pool as its own OS process")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address":
			cfg.Address = *address
		case "n-subpools":
			cfg.NSubPools = *nSubPools
		case "worker-threads":
			cfg.WorkerThreads = *workerThreads
		case "codec":
			cfg.Codec = *codec
		case "max-envelope-bytes":
			cfg.MaxEnvelopeBytes = *maxEnvelopeBytes
		case "heartbeat-interval":
			cfg.HeartbeatInterval = *heartbeatInterval
		case "heartbeat-misses":
			cfg.HeartbeatMisses = *heartbeatMisses
		case "graceful-deadline":
			cfg.GracefulDeadline = *gracefulDeadline
		case "restart-policy":
			cfg.RestartPolicy = *restartPolicy
		case "process-isolation":
			cfg.ProcessIsolation = *processIsolation
		}
	})

	return nil
}
