package cachejar

import (
	"net/http"
	"time"

	"github.com/always-cache/cachejar/metrics"
	serializer "github.com/always-cache/cachejar/pkg/response-serializer"
	"github.com/always-cache/cachejar/rfc9111"
	"github.com/always-cache/cachejar/rfc9211"

	"github.com/rs/zerolog"
)

type validationOutcome int

const (
	// the stored response is still valid and was freshened
	notModified validationOutcome = iota
	// the origin sent a new response
	modified
	// the resource is gone, the stored response was deleted
	gone
	// the origin answered with anything else
	failed
)

var outcomeLabels = map[validationOutcome]string{
	notModified: "not_modified",
	modified:    "modified",
	gone:        "gone",
	failed:      "failed",
}

// validation is the shareable result of one conditional request.
// Concurrent lookups of the same variant wait for a single validation and
// each build their own response from it.
type validation struct {
	outcome    validationOutcome
	statusCode int
	header     http.Header
	body       []byte
	stored     bool
}

func (v *validation) response(req *http.Request) *http.Response {
	return serializer.EntryToResponse(serializer.Entry{
		ResponseHeader: v.header,
		StatusCode:     v.statusCode,
	}, v.body, req)
}

// revalidateStored sends a conditional request for the stored response and
// acts on the answer: 304 freshens and stores it again, 200 replaces it,
// 404 and 410 delete it. Anything else, as well as transport errors, serves the
// stored response stale if allowed and fails with a RevalidationError otherwise.
func (t *Transport) revalidateStored(x *rfc9111.Exchange, status *rfc9211.CacheStatus, log zerolog.Logger) (*http.Response, error) {
	req := x.Request
	key := t.storage.Keyer().Key(req) + "\n" + rfc9111.VarySignature(x.Response.Header, req.Header)

	result, err, shared := t.group.Do(key, func() (interface{}, error) {
		return t.sendValidation(x, log)
	})
	if shared {
		status.Collapsed()
	}
	status.Forward(rfc9211.FwdStale)

	if err != nil {
		if t.canServeStale(x) {
			log.Info().Err(err).Msg("Revalidation failed, serving stale response")
			return t.serveStaleOnError(x, status), nil
		}
		t.metrics.Lookup(metrics.ResultError)
		return nil, &RevalidationError{URL: req.URL.String(), Err: err}
	}

	v := result.(*validation)
	status.ForwardStatus(v.statusCode)
	if v.stored {
		status.Stored()
	}

	switch v.outcome {
	case notModified:
		t.metrics.Lookup(metrics.ResultRevalidated)
		res := v.response(req)
		now := t.now()
		rfc9111.AddAgeHeader(res, now)
		status.TTL(rfc9111.FreshnessLifetime(res, rfc9111.ResponseCacheControl(res), t.storage.DefaultTTL()) - rfc9111.CurrentAge(res, now))
		res.Header.Set(rfc9211.HeaderName, status.String())
		return res, nil
	case modified, gone:
		t.metrics.Lookup(metrics.ResultMiss)
		res := v.response(req)
		res.Header.Set(rfc9211.HeaderName, status.String())
		return res, nil
	}

	if t.canServeStale(x) {
		log.Info().Int("status", v.statusCode).Msg("Revalidation failed, serving stale response")
		return t.serveStaleOnError(x, status), nil
	}
	t.metrics.Lookup(metrics.ResultError)
	return nil, &RevalidationError{URL: req.URL.String(), StatusCode: v.statusCode}
}

// sendValidation runs once per collapsed group of lookups.
func (t *Transport) sendValidation(x *rfc9111.Exchange, log zerolog.Logger) (*validation, error) {
	req := x.Request
	cond := rfc9111.ConditionalRequest(req.Context(), req, x.Response)

	start := time.Now()
	res, err := t.next.RoundTrip(cond)
	if err != nil {
		t.metrics.Revalidated(outcomeLabels[failed], time.Since(start).Seconds())
		return nil, err
	}

	var v *validation
	switch {
	case res.StatusCode == http.StatusNotModified && rfc9111.ValidatorsMatch(x.Response, res):
		v, err = t.freshen(x, res, log)
	case res.StatusCode == http.StatusNotModified:
		// the validators name another response, so ask again without them
		discard(res)
		log.Debug().Msg("Validators of 304 do not match stored response")
		v, err = t.refetch(x, log)
	case res.StatusCode == http.StatusOK:
		v, err = t.replace(req, res, log)
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		if derr := t.storage.Delete(req); derr != nil {
			log.Warn().Err(derr).Msg("Could not delete stored response")
		}
		v, err = t.capture(gone, res)
	default:
		v, err = t.capture(failed, res)
	}
	if err != nil {
		return nil, err
	}
	t.metrics.Revalidated(outcomeLabels[v.outcome], time.Since(start).Seconds())
	log.Debug().Int("status", res.StatusCode).Str("outcome", outcomeLabels[v.outcome]).Msg("Revalidated stored response")
	return v, nil
}

// freshen updates the stored response with the 304 fields and stores it again.
func (t *Transport) freshen(x *rfc9111.Exchange, res *http.Response, log zerolog.Logger) (*validation, error) {
	discard(res)
	if t.jar != nil {
		if _, err := t.jar.ExtractCookies(res, x.Request); err != nil {
			log.Warn().Err(err).Msg("Could not store cookies of validation response")
		}
	}

	stored := x.Response
	stored.Header.Del("Warning")
	rfc9111.Freshen(stored, res, t.now())

	body, err := serializer.ReadBody(stored)
	if err != nil {
		return nil, err
	}
	v := &validation{
		outcome:    notModified,
		statusCode: stored.StatusCode,
		header:     stored.Header.Clone(),
		body:       body,
	}
	if err := t.storage.Cache(x.Request, stored); err != nil {
		log.Warn().Err(err).Msg("Could not store freshened response")
	} else {
		t.metrics.Stored()
		v.stored = true
	}
	v.header.Del(rfc9211.HeaderName)
	return v, nil
}

// replace handles a full response to the conditional request like any origin response.
func (t *Transport) replace(req *http.Request, res *http.Response, log zerolog.Logger) (*validation, error) {
	status := &rfc9211.CacheStatus{}
	res, err := t.afterSend(req, res, status, log)
	if err != nil {
		return nil, err
	}
	v, err := t.capture(modified, res)
	if err != nil {
		return nil, err
	}
	v.stored = status.IsStored()
	return v, nil
}

// refetch sends the request unconditionally and treats the answer like any origin response.
// A failing origin still lets the stored response be served stale.
func (t *Transport) refetch(x *rfc9111.Exchange, log zerolog.Logger) (*validation, error) {
	req := x.Request
	res, err := t.next.RoundTrip(req.Clone(req.Context()))
	if err != nil {
		return nil, err
	}
	if originFailed(res, nil) && t.canServeStale(x) {
		return t.capture(failed, res)
	}
	return t.replace(req, res, log)
}

// capture reads the whole response, so it can be handed to every waiting lookup.
func (t *Transport) capture(outcome validationOutcome, res *http.Response) (*validation, error) {
	body, err := serializer.ReadBody(res)
	if err != nil {
		return nil, err
	}
	header := res.Header.Clone()
	header.Del(rfc9211.HeaderName)
	return &validation{
		outcome:    outcome,
		statusCode: res.StatusCode,
		header:     header,
		body:       body,
	}, nil
}
