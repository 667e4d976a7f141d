package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2.1. Calculating Freshness Lifetime
// §
// §  A cache can calculate the freshness lifetime (denoted as
// §  freshness_lifetime) of a response by evaluating the following rules and
// §  using the first match:
// §
// §  *  If the cache is shared and the s-maxage response directive (Section
// §     5.2.2.10) is present, use its value, or
// §
// §  *  If the max-age response directive (Section 5.2.2.1) is present, use its
// §     value, or
// §
// §  *  If the Expires response header field (Section 5.3) is present, use its
// §     value minus the value of the Date response header field (using the time
// §     the message was received if it is not present, as per Section 6.6.1 of
// §     [HTTP]), or
// §
// §  *  Otherwise, no explicit expiration time is present in the response. A
// §     heuristic freshness lifetime might be applicable; see Section 4.2.2.

// FreshnessLifetime returns how long the response stays fresh.
// This is a private cache, so s-maxage is ignored.
// Responses without explicit expiration get the given default.
func FreshnessLifetime(res *http.Response, cc CacheControl, def time.Duration) time.Duration {
	if val, ok := cc.MaxAge(); ok {
		return val
	}
	if expires, ok := getExpires(res); ok {
		// stored responses get a Date field added, so this only skips foreign responses
		if date, ok := getDate(res); ok {
			return durationMax(0, expires.Sub(date))
		}
	}
	return def
}

// ExplicitLifetime reports whether the response carries its own expiration.
func ExplicitLifetime(res *http.Response, cc CacheControl) bool {
	if _, ok := cc.MaxAge(); ok {
		return true
	}
	_, ok := getExpires(res)
	return ok
}
