package rfc9111

import (
	"net/http"
	"time"
)

// §  5.3. Expires
// §
// §  The "Expires" response header field gives the date/time after which the
// §  response is considered stale. [...]
// §
// §  A cache recipient MUST interpret invalid date formats, especially the value
// §  "0", as representing a time in the past (i.e., "already expired").

func getExpires(res *http.Response) (time.Time, bool) {
	raw, present := res.Header["Expires"]
	if !present || len(raw) == 0 {
		return time.Time{}, false
	}
	if exp, err := HttpDate(raw[0]); err == nil {
		return exp, true
	}
	return time.Unix(0, 0), true
}

func getDate(res *http.Response) (time.Time, bool) {
	if dateHeader := res.Header.Get("Date"); dateHeader != "" {
		if date, err := HttpDate(dateHeader); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}
