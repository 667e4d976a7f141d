package rfc9111

import (
	"net/http"
	"net/url"
)

// §  4.4. Invalidating Stored Responses
// §
// §  Because unsafe request methods (Section 9.2.1 of [HTTP]) such as PUT, POST,
// §  or DELETE have the potential for changing state on the origin server,
// §  intervening caches are required to invalidate stored responses to keep their
// §  contents up to date.
// §
// §  A cache MUST invalidate the target URI (Section 7.1 of [HTTP]) when it
// §  receives a non-error status code in response to an unsafe request method
// §  (including methods whose safety is unknown).
// §
// §  A cache MAY invalidate other URIs when it receives a non-error status code
// §  in response to an unsafe request method (including methods whose safety is
// §  unknown). In particular, the URIs in the Location and Content-Location
// §  response header fields (if present) are candidates for invalidation; [...]
// §  a cache MUST NOT trigger an invalidation under these conditions if the
// §  origin (Section 4.3.1 of [HTTP]) of the URI to be invalidated differs from
// §  that of the target URI.

// UnsafeRequest reports request methods that are not known to be safe.
func UnsafeRequest(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// GetInvalidateURIs returns the absolute URIs whose stored responses must be invalidated.
func GetInvalidateURIs(req *http.Request, res *http.Response) []string {
	if !UnsafeRequest(req) || res.StatusCode < 200 || res.StatusCode >= 400 {
		return nil
	}
	target := req.URL
	uris := []string{target.String()}
	for _, field := range []string{"Location", "Content-Location"} {
		loc := res.Header.Get(field)
		if loc == "" {
			continue
		}
		ref, err := url.Parse(loc)
		if err != nil {
			continue
		}
		abs := target.ResolveReference(ref)
		if abs.Scheme == target.Scheme && abs.Host == target.Host && abs.String() != target.String() {
			uris = append(uris, abs.String())
		}
	}
	return uris
}
