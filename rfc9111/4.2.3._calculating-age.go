package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2.3. Calculating Age
// §
// §  The "Age" header field is used to convey an estimated age of the response
// §  message when obtained from a cache. [...]
// §
// §  age_value
// §     The term "age_value" denotes the value of the Age header field [...]
// §
// §  date_value
// §     The term "date_value" denotes the value of the Date header field [...]
// §
// §  now
// §     The term "now" means the current value of this implementation's clock

// CurrentAge estimates the age of a response at the given time.
// The Age field wins when present, otherwise the age is the time elapsed since Date.
// Without either the response is treated as brand new.
//
// Stored responses never keep their Age field, so for them the age follows from Date.
func CurrentAge(res *http.Response, now time.Time) time.Duration {
	if age, present := getAge(res); present {
		return age
	}
	if date, present := getDate(res); present {
		return durationMax(0, now.Sub(date))
	}
	return 0
}

// AddAgeHeader sets the Age header of a response served from the cache.
// It directly mutates the response headers.
func AddAgeHeader(res *http.Response, now time.Time) {
	res.Header.Set("Age", toDeltaSeconds(CurrentAge(res, now)))
}

func durationMax(d1, d2 time.Duration) time.Duration {
	if d1 > d2 {
		return d1
	}
	return d2
}
