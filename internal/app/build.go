package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/balancer"
	"github.com/ent0n29/dailyquote/internal/config"
	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/generation"
	"github.com/ent0n29/dailyquote/internal/httpapi"
	"github.com/ent0n29/dailyquote/internal/objectstore"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/publish"
	"github.com/ent0n29/dailyquote/internal/quote"
	"github.com/ent0n29/dailyquote/internal/ratelimit"
	"github.com/ent0n29/dailyquote/internal/voice"
)

// janitorInterval is how often expired in-memory rate-limit windows are swept.
const janitorInterval = time.Minute

// Providers names the backends Build resolved, for startup logs.
type Providers struct {
	Text        string
	Voice       string
	Store       string
	ObjectStore string
	RateLimit   string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *generation.Orchestrator
	Records      content.Store
	Metrics      *observability.Metrics
	Providers    Providers

	// Janitor runs background maintenance until ctx is done. Nil when nothing needs it.
	Janitor func(ctx context.Context) error
	// Cleanup should be called on shutdown to release external resources (DB, Redis, NATS).
	Cleanup func() error
}

// Options tweak Build for callers other than the server.
type Options struct {
	// Registerer receives the Prometheus instruments. Nil means the default registerer.
	Registerer prometheus.Registerer
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace, opts.Registerer)

	var closers []func() error
	cleanup := func() error {
		var errs []string
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	fail := func(err error) (*BuildResult, error) {
		_ = cleanup()
		return nil, err
	}

	records, err := content.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("content store init failed: %w", err))
	}
	closers = append(closers, records.Close)

	limitStore, janitor, limitMode, err := buildLimitStore(cfg)
	if err != nil {
		return fail(err)
	}
	if c, ok := limitStore.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}

	media, mediaClose, err := buildObjectStore(cfg)
	if err != nil {
		return fail(err)
	}
	if mediaClose != nil {
		closers = append(closers, mediaClose)
	}

	text, err := resolveTextProvider(cfg)
	if err != nil {
		return fail(err)
	}
	speech, err := resolveVoiceProvider(cfg)
	if err != nil {
		return fail(err)
	}
	quality, err := voice.ParseQuality(cfg.VoiceQuality)
	if err != nil {
		return fail(err)
	}

	orchestrator := generation.New(
		records,
		balancer.New(records, logger.With().Str("component", "balancer").Logger(), balancer.WithClock(localClock(cfg.Location))),
		quote.NewGenerator(text.provider, logger.With().Str("component", "quote").Logger(), metrics, quote.WithMaxTokens(cfg.LLMMaxTokens)),
		voice.NewGenerator(speech.provider, voice.Voices{
			Primary:   cfg.VoicePrimary,
			Secondary: cfg.VoiceSecondary,
			Tertiary:  cfg.VoiceTertiary,
		}, quality, logger.With().Str("component", "voice").Logger(), metrics),
		publish.NewPublisher(media, cfg.AudioPathPrefix, logger.With().Str("component", "publisher").Logger(), metrics),
		generation.Config{
			LookbackDays: cfg.BalancerLookbackDays,
			Timeout:      cfg.GenerationTimeout,
			VoiceTimeout: cfg.VoiceTimeout,
			Location:     cfg.Location,
		},
		logger.With().Str("component", "orchestrator").Logger(),
		metrics,
	)

	guard := ratelimit.NewGuard(ratelimit.New(limitStore), logger.With().Str("component", "ratelimit").Logger(), metrics)
	api := httpapi.New(cfg, orchestrator, records, media, guard, logger.With().Str("component", "http").Logger(), metrics)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Records:      records,
		Metrics:      metrics,
		Providers: Providers{
			Text:        text.detail,
			Voice:       speech.detail,
			Store:       content.StoreMode(records),
			ObjectStore: cfg.ObjectStore,
			RateLimit:   limitMode,
		},
		Janitor: janitor,
		Cleanup: cleanup,
	}, nil
}

func buildLimitStore(cfg config.Config) (ratelimit.Store, func(context.Context) error, string, error) {
	switch cfg.RateLimitBackend {
	case "redis":
		store, client, err := ratelimit.NewRedisStoreWithURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, "", fmt.Errorf("rate limit store init failed: %w", err)
		}
		return redisLimitStore{RedisStore: store, close: client.Close}, nil, "redis", nil
	case "", "memory":
		store := ratelimit.NewMemoryStore()
		return store, func(ctx context.Context) error {
			return store.RunJanitor(ctx, janitorInterval)
		}, "memory", nil
	default:
		return nil, nil, "", fmt.Errorf("invalid RATE_LIMIT_BACKEND: %q", cfg.RateLimitBackend)
	}
}

// redisLimitStore ties the client lifetime to the store for cleanup.
type redisLimitStore struct {
	*ratelimit.RedisStore
	close func() error
}

func (s redisLimitStore) Close() error { return s.close() }

func s3Config(cfg config.Config) objectstore.S3Config {
	return objectstore.S3Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}
}

// localClock reports the current time in loc, so "today" matches APP_TIMEZONE.
func localClock(loc *time.Location) func() time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

func buildObjectStore(cfg config.Config) (objectstore.Store, func() error, error) {
	switch cfg.ObjectStore {
	case "nats":
		store, nc, err := objectstore.DialNats(cfg.NatsURL, cfg.NatsBucket, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats object store init failed: %w", err)
		}
		return store, func() error { return nc.Drain() }, nil
	case "s3":
		store, err := objectstore.DialS3(s3Config(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("s3 object store init failed: %w", err)
		}
		return store, nil, nil
	case "", "memory":
		return objectstore.NewMemoryStore(cfg.PublicBaseURL), nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid OBJECT_STORE: %q", cfg.ObjectStore)
	}
}
