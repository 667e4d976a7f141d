package cachejar

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/always-cache/cachejar/cookie"
	"github.com/always-cache/cachejar/metrics"
	cacheupdate "github.com/always-cache/cachejar/pkg/cache-update"
	"github.com/always-cache/cachejar/rfc9111"
	"github.com/always-cache/cachejar/rfc9211"

	"github.com/rs/zerolog"
)

// RoundTrip implements http.RoundTripper.
//
// Before sending, cookies are added and the cache is consulted. A usable stored
// response is returned without contacting the origin, one that needs validation is
// revalidated with a conditional request. Origin responses have their cookies
// extracted, the rules applied and are stored when allowed. When the origin fails,
// a stale stored response is served if stale-if-error or StaleOnError allow it.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := t.log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Logger()

	if req.Method == MethodPurge {
		return t.purge(req, log)
	}

	// a RoundTripper must not modify the request
	req = req.Clone(req.Context())
	if t.jar != nil {
		t.jar.AddCookieHeader(req)
	}

	status := &rfc9211.CacheStatus{}
	control := rfc9111.RequestCacheControl(req)

	if t.storage == nil {
		status.Forward(rfc9211.FwdBypass)
		return t.forward(req, nil, status, log)
	}
	if !rfc9111.CacheableRequest(req, control) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			status.Forward(rfc9211.FwdMethod)
		} else {
			status.Forward(rfc9211.FwdRequest)
		}
		return t.forward(req, nil, status, log)
	}

	stored, reason, err := t.storage.Lookup(req)
	if err != nil {
		// a failing cache is a miss
		log.Warn().Err(err).Msg("Could not look up stored response")
		t.metrics.Lookup(metrics.ResultError)
		status.Forward(rfc9211.FwdMiss)
		return t.forward(req, nil, status, log)
	}
	if stored == nil {
		log.Trace().Str("reason", string(reason)).Msg("Cache miss")
		t.metrics.Lookup(metrics.ResultMiss)
		status.Forward(reason)
		return t.forward(req, nil, status, log)
	}

	x := &rfc9111.Exchange{
		Request:         req,
		Response:        stored,
		RequestControl:  control,
		ResponseControl: rfc9111.ResponseCacheControl(stored),
	}
	now := t.now()
	reuse := x.CanSatisfy(now, t.storage.DefaultTTL())
	log.Trace().Str("reuse", reuse.String()).Msg("Found stored response")

	switch reuse {
	case rfc9111.ReuseFresh:
		t.metrics.Lookup(metrics.ResultHit)
		return t.serveStored(x, now, status), nil
	case rfc9111.ReuseStale:
		t.metrics.Lookup(metrics.ResultStale)
		rfc9111.AddWarning(x.Response.Header, rfc9111.WarningResponseIsStale)
		return t.serveStored(x, now, status), nil
	case rfc9111.ReuseRevalidate:
		switch t.revalidate {
		case RevalidateSkip:
			t.metrics.Lookup(metrics.ResultHit)
			status.Detail("revalidation skipped")
			return t.serveStored(x, now, status), nil
		case RevalidateNever:
			t.metrics.Lookup(metrics.ResultMiss)
			status.Forward(rfc9211.FwdStale)
			return t.forward(req, x, status, log)
		}
		return t.revalidateStored(x, status, log)
	}

	t.metrics.Lookup(metrics.ResultMiss)
	if x.IsFresh(now, t.storage.DefaultTTL()) {
		status.Forward(rfc9211.FwdRequest)
	} else {
		status.Forward(rfc9211.FwdStale)
	}
	return t.forward(req, x, status, log)
}

// forward sends the request to the origin. If a stored response is given,
// it is served stale when the origin fails and that is allowed.
func (t *Transport) forward(req *http.Request, stored *rfc9111.Exchange, status *rfc9211.CacheStatus, log zerolog.Logger) (*http.Response, error) {
	log.Trace().Msg("Forwarding request to origin")
	res, err := t.next.RoundTrip(req)

	if stored != nil && originFailed(res, err) && t.canServeStale(stored) {
		log.Info().Err(err).Msg("Origin failed, serving stale response")
		discard(res)
		return t.serveStaleOnError(stored, status), nil
	}
	if err != nil {
		return nil, err
	}
	return t.afterSend(req, res, status, log)
}

// afterSend runs the response side: cookies, rules, invalidation and storage.
func (t *Transport) afterSend(req *http.Request, res *http.Response, status *rfc9211.CacheStatus, log zerolog.Logger) (*http.Response, error) {
	if t.jar != nil {
		n, err := t.jar.ExtractCookies(res, req)
		t.metrics.Extracted(n)
		var perr *cookie.PersistError
		if errors.As(err, &perr) {
			// losing cookies must not go unnoticed
			log.Error().Err(err).Msg("Could not persist cookies")
			discard(res)
			return nil, err
		} else if err != nil {
			log.Warn().Err(err).Msg("Rejected cookies")
		}
	}

	if len(t.rules) > 0 && t.rules.Apply(res) {
		log.Trace().Msg("Applied response rule")
	}

	if t.storage != nil {
		t.invalidate(req, res, log)
		x := rfc9111.NewExchange(req, res)
		if x.MayStore() {
			if err := t.storage.Cache(req, res); err != nil {
				log.Warn().Err(err).Msg("Could not store response")
			} else {
				t.metrics.Stored()
				status.Stored()
			}
		}
	}

	status.ForwardStatus(res.StatusCode)
	res.Header.Set(rfc9211.HeaderName, status.String())
	return res, nil
}

// invalidate drops stored responses that an unsafe request changed.
// Resources named in Cache-Update are dropped again once their delay has passed,
// since they may have been fetched before the origin caught up.
func (t *Transport) invalidate(req *http.Request, res *http.Response, log zerolog.Logger) {
	for _, uri := range rfc9111.GetInvalidateURIs(req, res) {
		t.invalidateURI(uri, log)
	}
	for _, update := range cacheupdate.GetCacheUpdates(req, res) {
		uri := update.URL.String()
		t.invalidateURI(uri, log)
		if update.Delay > 0 {
			time.AfterFunc(update.Delay, func() { t.invalidateURI(uri, log) })
		}
	}
}

func (t *Transport) invalidateURI(uri string, log zerolog.Logger) {
	log.Trace().Str("uri", uri).Msg("Invalidating stored response")
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		r, err := http.NewRequest(method, uri, nil)
		if err != nil {
			log.Error().Err(err).Str("uri", uri).Msg("Could not create request for invalidation")
			return
		}
		if err := t.storage.Delete(r); err != nil {
			log.Warn().Err(err).Str("uri", uri).Msg("Could not invalidate stored response")
		}
	}
}

// serveStored returns a stored response with Age and Cache-Status set.
func (t *Transport) serveStored(x *rfc9111.Exchange, now time.Time, status *rfc9211.CacheStatus) *http.Response {
	res := x.Response
	rfc9111.AddAgeHeader(res, now)
	status.Hit()
	status.TTL(rfc9111.FreshnessLifetime(res, x.ResponseControl, t.storage.DefaultTTL()) - rfc9111.CurrentAge(res, now))
	res.Header.Set(rfc9211.HeaderName, status.String())
	return res
}

func (t *Transport) serveStaleOnError(x *rfc9111.Exchange, status *rfc9211.CacheStatus) *http.Response {
	t.metrics.Lookup(metrics.ResultStaleError)
	rfc9111.AddWarning(x.Response.Header, rfc9111.WarningResponseIsStale)
	rfc9111.AddWarning(x.Response.Header, rfc9111.WarningRevalidationFailed)
	status.Detail("stale-if-error")
	return t.serveStored(x, t.now(), status)
}

func (t *Transport) canServeStale(x *rfc9111.Exchange) bool {
	return t.staleOnError || x.CanServeStaleOnError(t.now(), t.storage.DefaultTTL())
}

// purge handles the PURGE method locally.
func (t *Transport) purge(req *http.Request, log zerolog.Logger) (*http.Response, error) {
	if t.storage != nil {
		if err := t.storage.Purge(req.URL.String()); err != nil {
			return nil, err
		}
	}
	log.Debug().Msg("Purged stored responses")
	body := "purged"
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// originFailed reports transport errors and server errors that stale-if-error covers.
func originFailed(res *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch res.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// discard closes a response that will not be returned.
func discard(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
