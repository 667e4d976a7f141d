package rfc9111

import "net/http"

// §  3. Storing Responses in Caches
// §
// §  A cache MUST NOT store a response to a request unless:
// §
// §  *  the request method is understood by the cache;
// §
// §  *  the response status code is final (see Section 15 of [HTTP]);
// §
// §  *  if the response status code is 206 or 304, or the must-understand cache
// §     directive (see Section 5.2.2.3) is present: the cache understands the
// §     response status code;
// §
// §  *  the no-store cache directive is not present in the response (see Section
// §     5.2.2.5);
// §
// §  [...]
// §
// §  *  the response contains at least one of the following:
// §
// §     -  a public response directive (see Section 5.2.2.9);
// §
// §     -  a private response directive, if the cache is not shared (see Section
// §        5.2.2.7);
// §
// §     -  an Expires header field (see Section 5.3);
// §
// §     -  a max-age response directive (see Section 5.2.2.1);
// §
// §     -  if the cache is shared: an s-maxage response directive (see Section
// §        5.2.2.10);
// §
// §     -  a cache extension that allows it to be cached (see Section 5.2.3); or
// §
// §     -  a status code that is defined as heuristically cacheable (see Section
// §        4.2.2).

// MayStore reports whether the response to the request can be stored.
// This is a private cache, so "private" responses qualify.
func (x *Exchange) MayStore() bool {
	if !requestMethodIsUnderstood(x.Request.Method) {
		return false
	}
	// §  The no-store request directive indicates that a cache MUST NOT store any
	// §  part of either this request or any response to it.
	if x.RequestControl.NoStore() || x.ResponseControl.NoStore() {
		return false
	}
	if !responseStatusCodeIsFinal(x.Response.StatusCode) {
		return false
	}
	if !statusCodeUnderstoodIfNeeded(x.Response, x.ResponseControl) {
		return false
	}
	return x.ResponseControl.HasDirective("public") ||
		x.ResponseControl.HasDirective("private") ||
		ExplicitLifetime(x.Response, x.ResponseControl) ||
		statusCodeIsHeuristicallyCacheable(x.Response.StatusCode)
}

// CacheableRequest reports whether a stored response might be used for the request at all.
func CacheableRequest(req *http.Request, cc CacheControl) bool {
	return requestMethodIsUnderstood(req.Method) && !cc.NoStore()
}

// statusCodeUnderstoodIfNeeded checks if the response status code needs to be understood and is.
// It returns false if the response status code needs to be understood but isn't.
// It returns true if understanding response status code is not needed.
func statusCodeUnderstoodIfNeeded(res *http.Response, resCacheControl CacheControl) bool {
	if (res.StatusCode == http.StatusPartialContent || res.StatusCode == http.StatusNotModified) ||
		resCacheControl.HasDirective("must-understand") {
		return responseStatusCodeIsUnderstood(res.StatusCode)
	}
	return true
}

func requestMethodIsUnderstood(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	}
	return false
}

func responseStatusCodeIsUnderstood(statusCode int) bool {
	// partial content is not combined and 304s are only used for validation
	return statusCode != http.StatusPartialContent && statusCode != http.StatusNotModified &&
		statusCodeIsHeuristicallyCacheable(statusCode)
}

func responseStatusCodeIsFinal(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 599
}

// statusCodeIsHeuristicallyCacheable lists the RFC 9110 §15.1 heuristically cacheable codes.
func statusCodeIsHeuristicallyCacheable(statusCode int) bool {
	switch statusCode {
	case 200, 203, 204, 206, 300, 301, 308, 404, 405, 410, 414, 501:
		return true
	}
	return false
}
