package rfc9111

import (
	"net/http"
	"strings"
	"time"
)

// §  5.1. Age
// §
// §  The "Age" response header field conveys the sender's estimate of the time
// §  since the response was generated or successfully validated at the origin
// §  server.
// §
// §    Age = delta-seconds
// §
// §  [...] a recipient [...] ought to ignore a malformed Age field.

func getAge(res *http.Response) (time.Duration, bool) {
	secondsStr := res.Header.Get("Age")
	// tolerate parameters and repeated list members, only the first value counts
	if i := strings.IndexAny(secondsStr, ";,"); i >= 0 {
		secondsStr = secondsStr[:i]
	}
	return parseDeltaSeconds(secondsStr)
}
