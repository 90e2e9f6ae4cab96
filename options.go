package relay

import "github.com/redis/go-redis/v9"

// Option configures a Relay with optional dependencies.
type Option func(*relayOptions)

// relayOptions holds optional Relay configuration.
type relayOptions struct {
	logger      Logger
	metrics     MetricsCollector
	hooks       *Hooks
	browser     Browser
	redisClient *redis.Client
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	r, err := relay.New(cfg, relay.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *relayOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	r, err := relay.New(cfg, relay.WithMetrics(relay.NewPrometheusMetrics(nil)))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *relayOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	hooks := &relay.Hooks{
//	    OnClientDisconnected: func(ctx context.Context, client *relay.Client, reason relay.DisconnectReason) {
//	        audit.Record(client.ID, reason)
//	    },
//	}
//	r, err := relay.New(cfg, relay.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *relayOptions) {
		o.hooks = hooks
	}
}

// WithBrowser sets the headless login launcher used by session starts.
//
// Without this option the relay launches Chrome via the Headless config
// section. Tests and non-Chrome deployments inject their own.
//
// Parameters:
//   - browser: Browser implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	r, err := relay.New(cfg, relay.WithBrowser(myLauncher))
func WithBrowser(browser Browser) Option {
	return func(o *relayOptions) {
		o.browser = browser
	}
}

// WithRedisClient sets a pre-connected Redis client, bypassing the
// Redis config section entirely.
//
// The relay does not close an injected client on Stop; its lifecycle
// belongs to the caller.
//
// Parameters:
//   - client: Connected go-redis client
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	r, err := relay.New(cfg, relay.WithRedisClient(client))
func WithRedisClient(client *redis.Client) Option {
	return func(o *relayOptions) {
		o.redisClient = client
	}
}
