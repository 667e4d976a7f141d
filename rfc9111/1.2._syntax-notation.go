package rfc9111

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// §  1.2.2. Delta Seconds
// §
// §  The delta-seconds rule specifies a non-negative integer, representing
// §  time in seconds.
// §
// §    delta-seconds  = 1*DIGIT
// §
// §  A recipient parsing a delta-seconds value and converting it to binary
// §  form ought to use an arithmetic type of at least 31 bits of non-negative
// §  integer range. If a cache receives a delta-seconds value greater than the
// §  greatest integer it can represent, or if any of its subsequent
// §  calculations overflows, the cache MUST consider the value to be 2147483648
// §  (2^31) or the greatest positive integer it can conveniently represent.

const maxDeltaSeconds = 2147483648

// parseDeltaSeconds returns the duration and whether the value was a valid delta-seconds.
func parseDeltaSeconds(secondsStr string) (time.Duration, bool) {
	secondsStr = strings.TrimSpace(secondsStr)
	if secondsStr == "" {
		return 0, false
	}
	seconds, err := strconv.ParseUint(secondsStr, 10, 64)
	if err != nil {
		// overflow still means "a very long time"
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return maxDeltaSeconds * time.Second, true
		}
		return 0, false
	}
	if seconds > maxDeltaSeconds {
		seconds = maxDeltaSeconds
	}
	return time.Second * time.Duration(seconds), true
}

func deltaSeconds(secondsStr string) time.Duration {
	d, _ := parseDeltaSeconds(secondsStr)
	return d
}

func toDeltaSeconds(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	return fmt.Sprintf("%.f", duration.Truncate(time.Second).Seconds())
}

// HttpDate parses an HTTP-date as defined in RFC 9110 §5.6.7,
// accepting the obsolete formats recipients are required to understand.
func HttpDate(dateStr string) (time.Time, error) {
	if date, err := imfDate(dateStr); err == nil {
		return date, err
	} else {
		// try to parse as obsolete date
		if date, err := obsDate(dateStr); err == nil {
			return date, err
		}
		// return original error if unsuccessful
		return date, err
	}
}

const imfDateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

func imfDate(dateStr string) (time.Time, error) {
	date, err := time.Parse(imfDateLayout, normalizeDateStr(dateStr))
	if err != nil {
		return date, err
	}
	if _, offset := date.Zone(); offset != 0 {
		return date, fmt.Errorf("date %s is not in GMT time, but %s", date, date.Location())
	}
	return date, err
}

func obsDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, err
	}
	return time.Parse(time.ANSIC, str)
}

// normalizeDateStr upper-cases the zone only, month and day names are matched as given.
func normalizeDateStr(dateStr string) string {
	dateStr = strings.TrimSpace(dateStr)
	if i := strings.LastIndexByte(dateStr, ' '); i >= 0 {
		return dateStr[:i+1] + strings.ToUpper(dateStr[i+1:])
	}
	return dateStr
}

// FormatHttpDate renders t in the preferred IMF-fixdate format.
func FormatHttpDate(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05") + " GMT"
}

// GetListHeader returns the comma separated members of all field lines with the given name.
// Empty members are skipped.
func GetListHeader(header http.Header, field string) []string {
	list := make([]string, 0)
	for _, hdr := range header.Values(field) {
		for _, item := range strings.Split(hdr, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
	}
	return list
}
