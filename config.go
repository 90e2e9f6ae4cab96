package relay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// HeartbeatConfig controls connection liveness detection.
type HeartbeatConfig struct {
	// Interval is how often the relay pings each client socket.
	// Shorter intervals detect dead connections faster but add traffic
	// on large fleets. Recommended: 30 seconds.
	Interval time.Duration `yaml:"interval"`

	// Grace is the maximum tolerated silence since a client's last pong
	// before the liveness sweep expires it. Must allow at least one
	// missed ping. Recommended: 3x Interval.
	Grace time.Duration `yaml:"grace"`

	// SweepInterval is how often the sweep partitions clients into live
	// and expired, unregisters the expired, and refreshes presence TTLs
	// for the survivors. Recommended: Interval.
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// RedisConfig connects the relay to the shared presence and handshake store.
type RedisConfig struct {
	// Addr is the host:port of the Redis deployment. Empty runs the relay
	// in local-only mode: single instance, no cross-instance presence.
	Addr string `yaml:"addr"`

	// Password is the optional AUTH password.
	Password string `yaml:"password"`

	// DB is the logical database index.
	DB int `yaml:"db"`

	// DialTimeout bounds the startup connectivity check.
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// HandshakeConfig controls the session handshake exchange and headless
// session lifecycle.
type HandshakeConfig struct {
	// TTL is the window between creating a handshake and consuming it.
	// Recommended: 5 minutes.
	TTL time.Duration `yaml:"ttl"`

	// StartTimeout bounds the wait for the headless client to appear in
	// the registry after browser login. World launches on slow hosts can
	// take minutes. Recommended: 5 minutes.
	StartTimeout time.Duration `yaml:"startTimeout"`

	// ClientPollInterval paces registry checks during StartTimeout.
	// Recommended: 2 seconds.
	ClientPollInterval time.Duration `yaml:"clientPollInterval"`

	// RemoteWaitTimeout bounds a start attempt parked for the instance
	// that owns the handshake's private key. Recommended: 10 minutes.
	RemoteWaitTimeout time.Duration `yaml:"remoteWaitTimeout"`

	// RemotePollInterval paces result polling for a parked attempt, and is
	// the worst-case added latency when a wake message is lost.
	// Recommended: 2 seconds.
	RemotePollInterval time.Duration `yaml:"remotePollInterval"`

	// IdleTimeout ends headless sessions with no API activity.
	// Recommended: 10 minutes.
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	// ReapInterval paces the idle-session sweep. Recommended: 1 minute.
	ReapInterval time.Duration `yaml:"reapInterval"`
}

// HeadlessConfig controls the browser that logs into the game server on a
// REST caller's behalf.
type HeadlessConfig struct {
	// ExecPath points at a specific Chrome/Chromium binary. Empty lets the
	// launcher find one on PATH.
	ExecPath string `yaml:"execPath"`

	// Headful shows the browser window. Debugging only.
	Headful bool `yaml:"headful"`

	// NoSandbox disables the Chrome sandbox. Required in most containers.
	NoSandbox bool `yaml:"noSandbox"`

	// LoginTimeout bounds the join-screen login flow, not the world load.
	// Recommended: 2 minutes.
	LoginTimeout time.Duration `yaml:"loginTimeout"`
}

// Config is the configuration for the Relay.
//
// All duration fields accept standard Go duration strings like "30s", "5m".
type Config struct {
	// InstanceID uniquely names this relay in the presence directory and
	// on its handshake wake channel. Empty generates "relay-{random}" at
	// construction; set it explicitly when stable identity matters for
	// operations (log correlation across restarts).
	InstanceID string `yaml:"instanceId"`

	// HTTPAddr is the listen address for the REST and WebSocket surface.
	HTTPAddr string `yaml:"httpAddr"`

	// RequestTimeout is the default correlation window for relayed
	// requests. Routes may override it (file transfers run longer).
	// Recommended: 10 seconds.
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// PresenceTTL is the expiry on presence records in Redis. Must be at
	// least Heartbeat.Grace so a live client is never falsely reported
	// absent, and at least twice Heartbeat.SweepInterval so one delayed
	// sweep cannot let records lapse. Recommended: 2 minutes.
	PresenceTTL time.Duration `yaml:"presenceTtl"`

	// OperationTimeout bounds individual Redis round trips on the request
	// path. Recommended: 5 seconds.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown:
	// stopping background loops, closing client sockets, and removing
	// presence records. Recommended: 10 seconds.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Heartbeat controls connection liveness detection.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Redis connects the shared presence and handshake store.
	Redis RedisConfig `yaml:"redis"`

	// Handshake controls the session handshake and headless sessions.
	Handshake HandshakeConfig `yaml:"handshake"`

	// Headless controls the automated browser.
	Headless HeadlessConfig `yaml:"headless"`
}

// DefaultConfig returns a Config with production defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		HTTPAddr:         ":3010",
		RequestTimeout:   10 * time.Second,
		PresenceTTL:      2 * time.Minute,
		OperationTimeout: 5 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		Heartbeat: HeartbeatConfig{
			Interval:      30 * time.Second,
			Grace:         90 * time.Second,
			SweepInterval: 30 * time.Second,
		},
		Redis: RedisConfig{
			DialTimeout: 5 * time.Second,
		},
		Handshake: HandshakeConfig{
			TTL:                5 * time.Minute,
			StartTimeout:       5 * time.Minute,
			ClientPollInterval: 2 * time.Second,
			RemoteWaitTimeout:  10 * time.Minute,
			RemotePollInterval: 2 * time.Second,
			IdleTimeout:        10 * time.Minute,
			ReapInterval:       time.Minute,
		},
		Headless: HeadlessConfig{
			LoginTimeout: 2 * time.Minute,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// InstanceID is left alone: generation happens in New so that a loaded
// config file stays deterministic.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaults.HTTPAddr
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.PresenceTTL == 0 {
		cfg.PresenceTTL = defaults.PresenceTTL
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = defaults.Heartbeat.Interval
	}
	if cfg.Heartbeat.Grace == 0 {
		cfg.Heartbeat.Grace = 3 * cfg.Heartbeat.Interval
	}
	if cfg.Heartbeat.SweepInterval == 0 {
		cfg.Heartbeat.SweepInterval = cfg.Heartbeat.Interval
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = defaults.Redis.DialTimeout
	}
	if cfg.Handshake.TTL == 0 {
		cfg.Handshake.TTL = defaults.Handshake.TTL
	}
	if cfg.Handshake.StartTimeout == 0 {
		cfg.Handshake.StartTimeout = defaults.Handshake.StartTimeout
	}
	if cfg.Handshake.ClientPollInterval == 0 {
		cfg.Handshake.ClientPollInterval = defaults.Handshake.ClientPollInterval
	}
	if cfg.Handshake.RemoteWaitTimeout == 0 {
		cfg.Handshake.RemoteWaitTimeout = defaults.Handshake.RemoteWaitTimeout
	}
	if cfg.Handshake.RemotePollInterval == 0 {
		cfg.Handshake.RemotePollInterval = defaults.Handshake.RemotePollInterval
	}
	if cfg.Handshake.IdleTimeout == 0 {
		cfg.Handshake.IdleTimeout = defaults.Handshake.IdleTimeout
	}
	if cfg.Handshake.ReapInterval == 0 {
		cfg.Handshake.ReapInterval = defaults.Handshake.ReapInterval
	}
	if cfg.Headless.LoginTimeout == 0 {
		cfg.Headless.LoginTimeout = defaults.Headless.LoginTimeout
	}
}

// Validate checks configuration constraints and returns an error for
// invalid values.
//
// Hard Validation Rules:
//   - Heartbeat.Grace >= 2 * Heartbeat.Interval (allow one missed ping)
//   - PresenceTTL >= Heartbeat.Grace (live client never reported absent)
//   - PresenceTTL >= 2 * Heartbeat.SweepInterval (survive one delayed sweep)
//   - RequestTimeout > 0
//   - ShutdownTimeout > 0
//   - Handshake.StartTimeout > Handshake.ClientPollInterval
//   - Handshake.RemoteWaitTimeout > Handshake.RemotePollInterval
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *Config) Validate() error {
	// Rule 1: Grace must tolerate a missed ping
	if cfg.Heartbeat.Grace < 2*cfg.Heartbeat.Interval {
		return fmt.Errorf(
			"Heartbeat.Grace (%v) must be >= 2*Heartbeat.Interval (%v) to allow one missed ping",
			cfg.Heartbeat.Grace, cfg.Heartbeat.Interval,
		)
	}

	// Rule 2: presence records must outlive the liveness window
	if cfg.PresenceTTL < cfg.Heartbeat.Grace {
		return fmt.Errorf(
			"PresenceTTL (%v) must be >= Heartbeat.Grace (%v) so live clients never expire from the directory",
			cfg.PresenceTTL, cfg.Heartbeat.Grace,
		)
	}

	// Rule 3: presence records must survive one delayed refresh sweep
	if cfg.PresenceTTL < 2*cfg.Heartbeat.SweepInterval {
		return fmt.Errorf(
			"PresenceTTL (%v) must be >= 2*Heartbeat.SweepInterval (%v)",
			cfg.PresenceTTL, cfg.Heartbeat.SweepInterval,
		)
	}

	// Rule 4: correlation window sanity
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("RequestTimeout must be > 0, got %v", cfg.RequestTimeout)
	}

	// Rule 5: shutdown must be bounded
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("ShutdownTimeout must be > 0, got %v", cfg.ShutdownTimeout)
	}

	// Rule 6: start wait must cover at least one registry poll
	if cfg.Handshake.StartTimeout <= cfg.Handshake.ClientPollInterval {
		return fmt.Errorf(
			"Handshake.StartTimeout (%v) must exceed Handshake.ClientPollInterval (%v)",
			cfg.Handshake.StartTimeout, cfg.Handshake.ClientPollInterval,
		)
	}

	// Rule 7: remote wait must cover at least one result poll
	if cfg.Handshake.RemoteWaitTimeout <= cfg.Handshake.RemotePollInterval {
		return fmt.Errorf(
			"Handshake.RemoteWaitTimeout (%v) must exceed Handshake.RemotePollInterval (%v)",
			cfg.Handshake.RemoteWaitTimeout, cfg.Handshake.RemotePollInterval,
		)
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for
// non-recommended values.
//
// This is called after Validate() in New() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger types.Logger) {
	if cfg.RequestTimeout < 2*time.Second {
		logger.Warn(
			"RequestTimeout is very short, slow game hosts will see spurious 408s",
			"requestTimeout", cfg.RequestTimeout,
			"recommended", "10s",
		)
	}

	if cfg.Heartbeat.Interval < 5*time.Second {
		logger.Warn(
			"Heartbeat.Interval is very short, large fleets will see significant ping traffic",
			"interval", cfg.Heartbeat.Interval,
			"recommended", "30s",
		)
	}

	if cfg.Handshake.TTL > 15*time.Minute {
		logger.Warn(
			"Handshake.TTL is long, unconsumed public keys stay valid for the whole window",
			"ttl", cfg.Handshake.TTL,
			"recommended", "5m",
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Test timings are 5-300x faster than production defaults to enable
// rapid iteration without sacrificing test coverage. Use DefaultConfig()
// for production deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := relay.TestConfig()
//	cfg.InstanceID = "test-relay"
//	r, err := relay.New(cfg)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = "127.0.0.1:0"

	// Fast timings for test execution (5-300x faster)
	cfg.RequestTimeout = 2 * time.Second                     // 5x faster
	cfg.PresenceTTL = 2 * time.Second                        // 60x faster
	cfg.OperationTimeout = time.Second                       // 5x faster
	cfg.ShutdownTimeout = 2 * time.Second                    // 5x faster
	cfg.Heartbeat.Interval = 100 * time.Millisecond          // 300x faster
	cfg.Heartbeat.Grace = 500 * time.Millisecond             // 180x faster
	cfg.Heartbeat.SweepInterval = 100 * time.Millisecond     // 300x faster
	cfg.Handshake.TTL = time.Minute                          // 5x faster
	cfg.Handshake.StartTimeout = 2 * time.Second             // 150x faster
	cfg.Handshake.ClientPollInterval = 10 * time.Millisecond // 200x faster
	cfg.Handshake.RemoteWaitTimeout = 5 * time.Second        // 120x faster
	cfg.Handshake.RemotePollInterval = 20 * time.Millisecond // 100x faster
	cfg.Handshake.IdleTimeout = time.Minute                  // 10x faster
	cfg.Handshake.ReapInterval = 200 * time.Millisecond      // 300x faster

	return cfg
}

// LoadConfig reads a YAML config file, applies defaults, and validates.
//
// Parameters:
//   - path: Config file path
//
// Returns:
//   - Config: Loaded configuration, defaults applied
//   - error: Read, parse, or validation failure
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	return cfg, nil
}
