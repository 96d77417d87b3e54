package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/openai"
	"github.com/aretw0/parley/pkg/adapters/process"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/ratelimit"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces locks and rate-limit counters next to the session keys.
const redisKeyPrefix = "parley:"

// App bundles the components shared by the commands.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Orchestrator *parley.Orchestrator
	Sessions     *session.Manager
	Metrics      *prometheus.Registry

	redis *backend.Client
}

// Close releases the Redis connection, if any.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// MetricsHandler serves the app's Prometheus registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{})
}

// NewLimiter builds the /api/query rate limiter: Redis-backed when sessions live in
// Redis (so replicas share the budget), in-memory otherwise. Nil when disabled.
func (a *App) NewLimiter() (ratelimit.Limiter, error) {
	if a.Config.Server.RateLimit == "" || a.Config.Server.RateLimit == "off" {
		return nil, nil
	}
	limit, err := ratelimit.ParseLimit(a.Config.Server.RateLimit)
	if err != nil {
		return nil, err
	}
	if a.redis != nil {
		return ratelimit.NewRedis(a.redis, limit, redisKeyPrefix+"ratelimit:"), nil
	}
	return ratelimit.NewMemory(limit), nil
}

// BuildOptions controls which parts of the App are created.
type BuildOptions struct {
	Logger *slog.Logger
	// WithModel builds the orchestrator; requires a model API key.
	WithModel bool
}

// Build wires configuration, persistence, inference and metrics into an App.
func Build(cfg config.Config, opts BuildOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = createLogger(cfg.LogLevel, cfg.LogFormat, false)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: prometheus.NewRegistry(),
	}
	app.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, client, err := NewStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	app.redis = client

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if client != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(redis.NewLocker(client, redisKeyPrefix)))
	}
	app.Sessions = session.NewManager(store, sessionOpts...)

	if opts.WithModel {
		metrics, err := observability.NewMetrics(app.Metrics)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		hooks := domain.ChainHooks(metrics.Hooks(), observability.LogHooks(logger))

		app.Orchestrator, err = NewOrchestrator(cfg, logger, hooks)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	return app, nil
}

// NewOrchestrator builds the classifier and one generator per configured handler
// on the configured OpenAI-compatible endpoint.
func NewOrchestrator(cfg config.Config, logger *slog.Logger, hooks domain.LifecycleHooks) (*parley.Orchestrator, error) {
	if err := cfg.RequireModelKey(); err != nil {
		return nil, err
	}

	llm, err := openai.New(openai.Config{
		APIKey:     cfg.Model.APIKey,
		BaseURL:    cfg.Model.BaseURL,
		Model:      cfg.Model.Name,
		MaxRetries: cfg.Model.MaxRetries,
		MaxTokens:  cfg.Model.MaxTokens,
	}, openai.WithLogger(logger), openai.WithRouterName(cfg.Router.Name))
	if err != nil {
		return nil, fmt.Errorf("error initializing model backend: %w", err)
	}

	entries := make([]registry.Entry, 0, len(cfg.Handlers))
	for _, h := range cfg.Handlers {
		var handler ports.Handler = openai.NewGenerator(llm, h.Name, h.Instructions)
		if h.Command != "" {
			if handler, err = process.NewHandler(h.Name, h.Command, h.Args); err != nil {
				return nil, fmt.Errorf("handler %q: %w", h.Name, err)
			}
		}
		entries = append(entries, registry.Entry{
			HandlerDescriptor: domain.HandlerDescriptor{Name: h.Name, Description: h.Description},
			Handler:           handler,
		})
	}

	classifier, err := openai.NewClassifier(llm, Descriptors(cfg))
	if err != nil {
		return nil, fmt.Errorf("error initializing classifier: %w", err)
	}

	reg, err := registry.New(classifier, entries, registry.WithClassifierName(cfg.Router.Name))
	if err != nil {
		return nil, fmt.Errorf("error initializing registry: %w", err)
	}

	return parley.New(reg,
		parley.WithLogger(logger),
		parley.WithLifecycleHooks(hooks),
		parley.WithStepTimeout(cfg.StepTimeout),
	)
}

// Descriptors lists the configured handlers without building any backend.
func Descriptors(cfg config.Config) []domain.HandlerDescriptor {
	out := make([]domain.HandlerDescriptor, 0, len(cfg.Handlers))
	for _, h := range cfg.Handlers {
		out = append(out, domain.HandlerDescriptor{Name: h.Name, Description: h.Description})
	}
	return out
}

// NewStore builds the configured dialogue store, wrapped with PII masking and
// encryption when configured. The Redis client is returned so it can be shared
// with the locker and the rate limiter.
func NewStore(cfg config.StoreConfig) (ports.DialogueStore, *backend.Client, error) {
	var (
		store  ports.DialogueStore
		client *backend.Client
	)

	switch cfg.Backend {
	case "", "memory":
		store = memory.NewStore()
	case "file":
		store = file.New(cfg.Path)
	case "redis":
		client = backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		store = redis.NewFromClient(client, redis.WithTTL(cfg.TTL))
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, nil, errors.Join(err, closeClient(client))
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, errors.Join(errors.New("encryption key must be base64"), err, closeClient(client))
		}
		if len(key) != 32 {
			return nil, nil, errors.Join(fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(key)), closeClient(client))
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	return middleware.Chain(store, mws...), client, nil
}

func closeClient(c *backend.Client) error {
	if c == nil {
		return nil
	}
	return c.Close()
}
