package rfc9111

import (
	"net/http"
	"strings"
)

// §  4.1. Calculating Cache Keys with the Vary Header Field
// §
// §  When a cache receives a request that can be satisfied by a stored response
// §  and that stored response contains a Vary header field (Section 12.5.5 of
// §  [HTTP]), the cache MUST NOT use that stored response without revalidation
// §  unless all the presented request header fields nominated by that Vary field
// §  value match those fields in the original request (i.e., the request that
// §  caused the cached response to be stored).
// §
// §  [...]
// §
// §  A stored response with a Vary header field value containing a member "*"
// §  always fails to match.

// VaryMatches reports whether the request header fields nominated by the stored
// response's Vary field are equal in the stored and the presented request.
// A stored response without Vary always matches.
func VaryMatches(storedResponse http.Header, storedRequest http.Header, presented http.Header) bool {
	for _, name := range GetListHeader(storedResponse, "Vary") {
		if name == "*" {
			return false
		}
		if fieldValue(storedRequest, name) != fieldValue(presented, name) {
			return false
		}
	}
	return true
}

// VarySignature concatenates the nominated request field values,
// it identifies one variant among the stored responses for a URI.
func VarySignature(response http.Header, request http.Header) string {
	var b strings.Builder
	for _, name := range GetListHeader(response, "Vary") {
		b.WriteString(strings.ToLower(name))
		b.WriteString(": ")
		b.WriteString(fieldValue(request, name))
		b.WriteString("\n")
	}
	return b.String()
}

// NominatedHeader returns the request fields nominated by the response's Vary field,
// the only request fields a stored response needs.
func NominatedHeader(response http.Header, request http.Header) http.Header {
	nominated := make(http.Header)
	for _, name := range GetListHeader(response, "Vary") {
		if name == "*" {
			continue
		}
		for _, v := range request.Values(name) {
			nominated.Add(name, v)
		}
	}
	return nominated
}

// fieldValue combines field lines the way a recipient would.
// §  [...] by combining all the field lines with the same name [...]
func fieldValue(header http.Header, name string) string {
	lines := header.Values(name)
	values := make([]string, len(lines))
	for i, v := range lines {
		values[i] = strings.TrimSpace(v)
	}
	return strings.Join(values, ", ")
}
