package rfc9111

import (
	"net/http"
	"time"
)

// §  4.3.4. Freshening Stored Responses upon Validation
// §
// §  When a cache receives a 304 (Not Modified) response, it needs to identify
// §  stored responses that are suitable for updating with the new information
// §  provided, and then do so.
// §
// §  [...]
// §
// §  For each stored response identified, the cache MUST update its header
// §  fields with the header fields provided in the 304 (Not Modified) response,
// §  as per Section 3.2.

// freshenedFields are taken over from a 304 response.
var freshenedFields = []string{"Date", "Expires", "Cache-Control", "ETag", "Last-Modified"}

// Freshen updates the stored response with the validation fields of a 304 response.
// It directly mutates the stored response headers.
func Freshen(stored *http.Response, validation *http.Response, now time.Time) {
	for _, field := range freshenedFields {
		values := validation.Header.Values(field)
		if len(values) == 0 {
			continue
		}
		stored.Header.Del(field)
		for _, v := range values {
			stored.Header.Add(field, v)
		}
	}
	// a 304 without Date was still generated now
	if validation.Header.Get("Date") == "" {
		stored.Header.Set("Date", FormatHttpDate(now))
	}
}

// ValidatorsMatch checks that a 304 response belongs to the stored response.
// A strong ETag on both sides that differs means the stored response is not the one validated.
func ValidatorsMatch(stored *http.Response, validation *http.Response) bool {
	storedTag := stored.Header.Get("ETag")
	newTag := validation.Header.Get("ETag")
	if storedTag == "" || newTag == "" {
		return true
	}
	return weakCompare(storedTag, newTag)
}

func weakCompare(a, b string) bool {
	trim := func(s string) string {
		if len(s) > 2 && (s[:2] == "W/" || s[:2] == "w/") {
			return s[2:]
		}
		return s
	}
	return trim(a) == trim(b)
}
