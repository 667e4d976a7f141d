package rfc9211

import (
	"fmt"
	"strings"
	"time"
)

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     The Cache-Status HTTP response header field indicates caches'
// §     handling of the request corresponding to the response it occurs
// §     within.
// §
// §     Its value is a List (Section 3.1 of [STRUCTURED-FIELDS]):
// §
// §     Cache-Status   = sf-list
// §
// §     Each member of the list represents a cache that has handled the
// §     request. [...]
// §
// §     Each list member identifies the cache that inserted it and this
// §     identifier MUST be a String or Token.

// CacheName identifies this cache in Cache-Status members.
const CacheName = "cachejar"

// HeaderName is the response field the status is written to.
const HeaderName = "Cache-Status"

type Status string

const (
	StatusHit = "hit"
	StatusFwd = "fwd"
)

// §  2.2.  The fwd Parameter
// §
// §     "fwd" indicates that the request went forward towards the origin and
// §     why.

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdUriMiss FwdReason = "uri-miss"

	// The cache contained a response that matched the request
	// URI, but it could not select a response based upon this request's
	// header fields and stored Vary header fields.
	FwdVaryMiss FwdReason = "vary-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdMiss FwdReason = "miss"

	// The cache was able to select a fresh response for the
	// request, but the request's semantics (e.g., Cache-Control request
	// directives) did not allow its use.
	FwdRequest FwdReason = "request"

	// The cache was able to select a response for the request, but
	// it was stale.
	FwdStale FwdReason = "stale"

	// The cache was able to select a partial response for the
	// request, but it did not contain all of the requested ranges.
	FwdPartial FwdReason = "partial"
)

// CacheStatus collects the parameters of one Cache-Status member.
// The zero value renders as a miss.
type CacheStatus struct {
	status    Status
	fwdReason FwdReason
	fwdStatus int
	ttl       *time.Duration
	stored    bool
	collapsed bool
	key       string
	detail    string
}

// Hit marks the response as served from the cache.
func (cs *CacheStatus) Hit() {
	cs.status = StatusHit
	cs.fwdReason = ""
}

// Forward marks the request as sent to the origin for the given reason.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.status = StatusFwd
	cs.fwdReason = reason
}

// §  2.3.  The fwd-status Parameter
// §
// §     "fwd-status" indicates what status code the next hop server returned
// §     in response to the forwarded request.

// ForwardStatus records the status code the origin answered with.
func (cs *CacheStatus) ForwardStatus(code int) {
	cs.fwdStatus = code
}

// §  2.4.  The ttl Parameter
// §
// §     "ttl" indicates the response's remaining freshness lifetime as
// §     calculated by the cache, as an integer number of seconds, measured
// §     when the response header section is sent by the cache. [...]
// §     This value can be negative, to indicate that the response is stale.

// TTL records the remaining freshness lifetime, negative when stale.
func (cs *CacheStatus) TTL(ttl time.Duration) {
	cs.ttl = &ttl
}

// §  2.5.  The stored Parameter
// §
// §     "stored" indicates whether the cache stored the response (Section 3
// §     of [HTTP-CACHING]); a true value indicates that it did.

// Stored marks that the forwarded response was stored.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

// §  2.6.  The collapsed Parameter
// §
// §     "collapsed" indicates whether this request was collapsed together
// §     with one or more other forward requests [...]

// Collapsed marks that the forward request was shared with concurrent requests.
func (cs *CacheStatus) Collapsed() {
	cs.collapsed = true
}

// Key records the cache key used for the lookup.
func (cs *CacheStatus) Key(key string) {
	cs.key = key
}

// Detail adds implementation specific information.
func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

// IsHit reports whether the response came from the cache.
func (cs *CacheStatus) IsHit() bool {
	return cs.status == StatusHit
}

// IsStored reports whether Stored was called.
func (cs *CacheStatus) IsStored() bool {
	return cs.stored
}

// Reason returns the forward reason, empty for hits.
func (cs *CacheStatus) Reason() FwdReason {
	return cs.fwdReason
}

func (cs *CacheStatus) String() string {
	params := []string{CacheName}
	switch {
	case cs.status == StatusHit:
		params = append(params, StatusHit)
	case cs.fwdReason != "":
		params = append(params, fmt.Sprintf("%s=%s", StatusFwd, cs.fwdReason))
	default:
		params = append(params, fmt.Sprintf("%s=%s", StatusFwd, FwdMiss))
	}
	if cs.fwdStatus != 0 {
		params = append(params, fmt.Sprintf("fwd-status=%d", cs.fwdStatus))
	}
	if cs.ttl != nil {
		params = append(params, fmt.Sprintf("ttl=%d", int64(cs.ttl.Truncate(time.Second).Seconds())))
	}
	if cs.stored {
		params = append(params, "stored")
	}
	if cs.collapsed {
		params = append(params, "collapsed")
	}
	if cs.key != "" {
		params = append(params, fmt.Sprintf("key=%q", cs.key))
	}
	if cs.detail != "" {
		params = append(params, fmt.Sprintf("detail=%q", cs.detail))
	}
	return strings.Join(params, "; ")
}
