package rfc9111

import "time"

// §  4.2.4. Serving Stale Responses
// §
// §  A "stale" response is one that either has explicit expiry information or is
// §  allowed to have heuristic expiry calculated, but is not fresh according to
// §  the calculations in Section 4.2.
// §
// §  A cache MUST NOT generate a stale response if it is prohibited by an
// §  explicit in-protocol directive (e.g., by a no-cache response directive, a
// §  must-revalidate response directive, or an applicable s-maxage or
// §  proxy-revalidate response directive; see Section 5.2.2).
//
// stale-if-error (RFC 5861) is such an in-protocol directive that allows it.

// CanServeStaleOnError reports whether the stored response may be used when the
// origin cannot be reached or answers with an error. A bare stale-if-error allows
// any staleness, an argument bounds it in seconds. The request directive wins
// over the response directive.
func (x *Exchange) CanServeStaleOnError(now time.Time, def time.Duration) bool {
	limit, unlimited, present := x.RequestControl.StaleIfError()
	if !present {
		limit, unlimited, present = x.ResponseControl.StaleIfError()
	}
	if !present {
		return false
	}
	if unlimited {
		return true
	}
	staleness := CurrentAge(x.Response, now) - FreshnessLifetime(x.Response, x.ResponseControl, def)
	return staleness <= limit
}
