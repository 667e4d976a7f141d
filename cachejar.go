// Package cachejar is an http.RoundTripper that keeps an HTTP cache and a cookie jar
// for a client. Responses are stored and reused following RFC 9111, cookies follow
// RFC 6265 matching rules.
package cachejar

import (
	"context"
	"net/http"
	"time"

	"github.com/always-cache/cachejar/cache"
	"github.com/always-cache/cachejar/metrics"
	cachekey "github.com/always-cache/cachejar/pkg/cache-key"
	responsetransformer "github.com/always-cache/cachejar/pkg/response-transformer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// RevalidatePolicy decides what happens to stored responses that need validation.
type RevalidatePolicy string

const (
	// RevalidateAlways sends a conditional request.
	RevalidateAlways RevalidatePolicy = "always"
	// RevalidateNever treats the stored response as a miss.
	RevalidateNever RevalidatePolicy = "never"
	// RevalidateSkip serves the stored response without asking the origin.
	RevalidateSkip RevalidatePolicy = "skip"
)

// MethodPurge removes the stored responses of the request URL instead of sending the request.
const MethodPurge = "PURGE"

// CookieStore is the part of a cookie jar the transport needs.
// Both cookie.Jar and cookie.FileJar implement it.
type CookieStore interface {
	AddCookieHeader(req *http.Request)
	ExtractCookies(res *http.Response, req *http.Request) (int, error)
}

type Config struct {
	// Next sends requests to the origin, http.DefaultTransport if nil.
	Next http.RoundTripper
	// Storage for cache entries. A MemCache is used if nil.
	Cache cache.CacheProvider
	// DisableCache forwards every request without caching.
	DisableCache bool
	// KeyFilter leaves volatile request parts out of cache keys.
	KeyFilter *cachekey.KeyFilter
	// DefaultTTL applies to responses without max-age.
	DefaultTTL time.Duration
	// Jar receives the cookies of responses and adds cookies to requests.
	// Cookies are not handled if nil.
	Jar CookieStore
	// Rules adjust Cache-Control of origin responses before they are stored.
	Rules responsetransformer.Rules
	// StaleOnError serves stale responses when the origin fails,
	// even without a stale-if-error directive.
	StaleOnError bool
	// Revalidate defaults to RevalidateAlways.
	Revalidate RevalidatePolicy
	// Metrics are not collected if nil.
	Metrics *metrics.Metrics
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Transport caches responses and handles cookies around another RoundTripper.
type Transport struct {
	next         http.RoundTripper
	provider     cache.CacheProvider
	storage      *cache.Storage
	jar          CookieStore
	rules        responsetransformer.Rules
	staleOnError bool
	revalidate   RevalidatePolicy
	metrics      *metrics.Metrics
	log          zerolog.Logger
	now          func() time.Time
	group        singleflight.Group
}

// New creates the transport.
func New(config Config) *Transport {
	// use the global logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}
	// create a child logger and add defaults
	logger = logger.With().
		Str("component", "cachejar").
		Logger()

	if config.Next == nil {
		config.Next = http.DefaultTransport
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Revalidate == "" {
		config.Revalidate = RevalidateAlways
	}

	t := &Transport{
		next:         config.Next,
		jar:          config.Jar,
		rules:        config.Rules,
		staleOnError: config.StaleOnError,
		revalidate:   config.Revalidate,
		metrics:      config.Metrics,
		log:          logger,
		now:          config.Clock,
	}

	if !config.DisableCache {
		if config.Cache == nil {
			config.Cache = cache.NewMemCache(config.Clock)
		}
		t.provider = config.Cache
		t.storage = cache.NewStorage(config.Cache, cache.StorageConfig{
			Keyer:      cachekey.NewCacheKeyer("", config.KeyFilter),
			DefaultTTL: config.DefaultTTL,
			Clock:      config.Clock,
		})
	}

	return t
}

// Client returns an http.Client using the transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// Storage returns the cache storage, nil when caching is disabled.
func (t *Transport) Storage() *cache.Storage {
	return t.storage
}

// Jar returns the configured cookie store.
func (t *Transport) Jar() CookieStore {
	return t.jar
}

// RunJanitor periodically purges expired entries from the cache provider
// until the context is done. It returns at once if the provider cannot sweep.
func (t *Transport) RunJanitor(ctx context.Context, interval time.Duration) {
	sweeper, ok := t.provider.(cache.Sweeper)
	if !ok || interval <= 0 {
		t.log.Debug().Msg("Cache janitor not started")
		return
	}
	cache.RunJanitor(ctx, sweeper, interval)
}
