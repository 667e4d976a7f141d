package rfc9111

import (
	"context"
	"net/http"
)

// §  4.3.1. Sending a Validation Request
// §
// §  When generating a conditional request for validation, a cache either starts
// §  with a request it is attempting to satisfy or -- if it is initiating the
// §  request independently -- synthesizes a request using a stored response by
// §  copying the method, target URI, and request header fields identified by the
// §  Vary header field (Section 4.1).
// §
// §  It then updates that request with one or more precondition header fields.
// §  These contain validator metadata sourced from a stored response(s) that has
// §  the same URI. [...]
// §
// §  When generating a conditional request for validation, a cache:
// §
// §  *  MUST send the relevant entity tags (using If-Match, If-None-Match, or
// §     If-Range) if the entity tags were provided in the stored response(s)
// §     being validated.
// §
// §  *  SHOULD send the Last-Modified value (using If-Modified-Since) if the
// §     request is not for a subrange, a single stored response is being
// §     validated, and that response contains a Last-Modified value.

// Revalidatable reports whether a conditional request can validate the stored response.
func Revalidatable(req *http.Request, stored *http.Response) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	return stored.Header.Get("ETag") != "" || stored.Header.Get("Last-Modified") != ""
}

// ConditionalRequest clones the client request into a validation request for the stored response.
// Client cache directives are dropped, so the origin answers the precondition instead.
func ConditionalRequest(ctx context.Context, req *http.Request, stored *http.Response) *http.Request {
	r := req.Clone(ctx)
	r.Header.Del("Pragma")
	r.Header.Del("Cache-Control")

	if etag := stored.Header.Get("ETag"); etag != "" {
		r.Header.Set("If-None-Match", etag)
	}
	if lastModified := stored.Header.Get("Last-Modified"); lastModified != "" {
		r.Header.Set("If-Modified-Since", lastModified)
	} else if date := stored.Header.Get("Date"); date != "" {
		r.Header.Set("If-Modified-Since", date)
	}
	return r
}
