package rfc9111

import (
	"net/http"
	"strings"
)

// §  3.1. Storing Header and Trailer Fields
// §
// §  Caches MUST include all received response header fields -- including
// §  unrecognized ones -- when storing a response; this assures that new HTTP
// §  header fields can be successfully deployed. However, the following
// §  exceptions are made:
// §
// §  *  The Connection header field and fields whose names are listed in it are
// §     required by Section 7.6.1 of [HTTP] to be removed before forwarding the
// §     message. This MAY be implemented by doing so before storage.
// §
// §  *  Likewise, some fields' semantics require them to be removed before
// §     forwarding the message, and this MAY be implemented by doing so before
// §     storage; see Section 7.6.1 of [HTTP] for some examples.

// nonPersistedFields never make it into a stored entry.
// These are the hop-by-hop fields, Age (recomputed on every use) and the cookie fields.
var nonPersistedFields = []string{
	"Age",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
	"Set-Cookie",
	"Set-Cookie2",
}

// PersistableHeader returns a copy of the header without the fields that must not be stored.
func PersistableHeader(header http.Header) http.Header {
	if header == nil {
		return make(http.Header)
	}
	h := header.Clone()
	for _, name := range GetListHeader(header, "Connection") {
		h.Del(name)
	}
	for _, name := range nonPersistedFields {
		h.Del(name)
	}
	return h
}

// IsPersistable reports whether a field may be stored.
func IsPersistable(name string) bool {
	for _, n := range nonPersistedFields {
		if strings.EqualFold(n, name) {
			return false
		}
	}
	return true
}
