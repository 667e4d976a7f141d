// Package cacheupdate reads the Cache-Update response header.
// Origins send it with responses to unsafe requests to name other resources
// that the request changed, optionally with the delay until the change is visible.
//
//	Cache-Update: /articles; delay=5, /articles/42
package cacheupdate

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/cachejar/rfc9111"

	"github.com/rs/zerolog/log"
)

const HeaderName = "Cache-Update"

var delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// URL is the changed resource, resolved against the request URL.
	URL *url.URL
	// Delay until the origin serves the changed resource.
	Delay time.Duration
}

// GetCacheUpdates gets the updates specified by the response.
// Entries that resolve to another origin than the request's are ignored.
func GetCacheUpdates(req *http.Request, res *http.Response) []CacheUpdate {
	if !rfc9111.UnsafeRequest(req) || res.StatusCode >= 400 {
		return nil
	}
	var updates []CacheUpdate
	for _, field := range res.Header.Values(HeaderName) {
		for _, update := range strings.Split(field, ",") {
			ref, params, _ := strings.Cut(update, ";")
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			u, err := url.Parse(ref)
			if err != nil {
				log.Trace().Err(err).Str("update", update).Msg("Ignoring malformed cache update")
				continue
			}
			abs := req.URL.ResolveReference(u)
			if abs.Scheme != req.URL.Scheme || abs.Host != req.URL.Host {
				continue
			}
			updates = append(updates, CacheUpdate{URL: abs, Delay: getDelay(params)})
		}
	}
	return updates
}

// getDelay reads the `delay=N` directive, N in seconds.
// It returns 0 without a valid directive.
func getDelay(params string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(params); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
