package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2. Freshness
// §
// §  A "fresh" response is one whose age has not yet exceeded its freshness
// §  lifetime. Conversely, a "stale" response is one where it has.
// §
// §  [...]
// §
// §  When a response is "fresh" in the cache, it can be used to satisfy
// §  subsequent requests without contacting the origin server, thereby improving
// §  efficiency.
// §
// §  [...]
// §
// §  The calculation to determine if a response is fresh is:
// §
// §     response_is_fresh = (freshness_lifetime > current_age)

// Reuse is the outcome of checking a stored response against a new request.
type Reuse int

const (
	// ReuseMiss means the stored response cannot be used at all.
	ReuseMiss Reuse = iota
	// ReuseFresh means the stored response is fresh and can be sent as-is.
	ReuseFresh
	// ReuseStale means the response is stale, but the request accepts that (max-stale).
	ReuseStale
	// ReuseRevalidate means the response can be used after a successful conditional request.
	ReuseRevalidate
)

func (r Reuse) String() string {
	switch r {
	case ReuseFresh:
		return "fresh"
	case ReuseStale:
		return "stale"
	case ReuseRevalidate:
		return "revalidate"
	}
	return "miss"
}

// Exchange holds the parsed directives of one request and stored response pair,
// so every decision for a lookup works from a single parse.
type Exchange struct {
	Request         *http.Request
	Response        *http.Response
	RequestControl  CacheControl
	ResponseControl CacheControl
}

// NewExchange parses the Cache-Control fields of both messages.
func NewExchange(req *http.Request, res *http.Response) *Exchange {
	return &Exchange{
		Request:         req,
		Response:        res,
		RequestControl:  RequestCacheControl(req),
		ResponseControl: ResponseCacheControl(res),
	}
}

// IsFresh applies the freshness calculation with the given default lifetime.
func (x *Exchange) IsFresh(now time.Time, def time.Duration) bool {
	return FreshnessLifetime(x.Response, x.ResponseControl, def) > CurrentAge(x.Response, now)
}

// CanSatisfy decides whether the stored response may be used for the request.
//
// The request max-age bounds the acceptable age. A stale response is only
// acceptable under max-stale (any staleness when bare, up to the argument
// otherwise). no-cache and must-revalidate on the response, and no-cache
// (or Pragma: no-cache) on a GET request, always lead to revalidation.
func (x *Exchange) CanSatisfy(now time.Time, def time.Duration) Reuse {
	age := CurrentAge(x.Response, now)
	lifetime := FreshnessLifetime(x.Response, x.ResponseControl, def)

	satisfies := true
	if maxAge, ok := x.RequestControl.MaxAge(); ok && age > maxAge {
		satisfies = false
	}
	if minFresh, ok := x.RequestControl.MinFresh(); ok && lifetime-age < minFresh {
		satisfies = false
	}

	stale := age >= lifetime
	if satisfies && stale {
		limit, unlimited, present := x.RequestControl.MaxStale()
		switch {
		case !present, x.ResponseControl.MustRevalidate():
			// §  [...] a cache MUST NOT generate a stale response if it is prohibited by an
			// §  explicit in-protocol directive [...]
			satisfies = false
		case !unlimited && age-lifetime > limit:
			satisfies = false
		}
	}

	if satisfies && !x.mustRevalidate() {
		if stale {
			return ReuseStale
		}
		return ReuseFresh
	}
	if Revalidatable(x.Request, x.Response) {
		return ReuseRevalidate
	}
	return ReuseMiss
}

// mustRevalidate reports directives that force validation even of fresh responses.
func (x *Exchange) mustRevalidate() bool {
	if x.ResponseControl.NoCache() || x.ResponseControl.MustRevalidate() {
		return true
	}
	if x.Request.Method == http.MethodGet || x.Request.Method == http.MethodHead {
		if x.RequestControl.NoCache() || x.RequestControl.HasDirective("must-revalidate") || pragmaNoCache(x.Request) {
			return true
		}
	}
	return false
}
