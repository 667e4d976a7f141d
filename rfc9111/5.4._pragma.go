package rfc9111

import (
	"net/http"
	"strings"
)

// §  5.4. Pragma
// §
// §  The "Pragma" request header field was defined for HTTP/1.0 caches, so that
// §  clients could specify a "no-cache" request (as Cache-Control was not defined
// §  until HTTP/1.1). [...] this specification deprecates it.

// pragmaNoCache reports "Pragma: no-cache" on a request without Cache-Control.
func pragmaNoCache(req *http.Request) bool {
	if len(req.Header.Values("Cache-Control")) > 0 {
		return false
	}
	for _, p := range GetListHeader(req.Header, "Pragma") {
		if strings.EqualFold(p, "no-cache") {
			return true
		}
	}
	return false
}
