package cookie

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const httpOnlyPrefix = "#HttpOnly_"

// ParseNetscape reads cookies in the Netscape cookies.txt format used by curl and browsers.
// Comment lines are skipped, except the #HttpOnly_ prefix which marks HttpOnly cookies.
// Malformed lines are skipped with a warning.
func ParseNetscape(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = line[len(httpOnlyPrefix):]
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			log.Warn().Int("line", lineNo).Msg("Skipping malformed Netscape cookie line")
			continue
		}
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			log.Warn().Int("line", lineNo).Str("expiry", fields[4]).Msg("Skipping Netscape cookie with invalid expiry")
			continue
		}

		c := Cookie{
			Name:     fields[5],
			Value:    fields[6],
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			HttpOnly: httpOnly,
		}
		// zero expiry marks a session cookie
		if expiry > 0 {
			c.Expires = time.Unix(expiry, 0)
		} else {
			c.Discard = true
		}
		cookies = append(cookies, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read Netscape cookies: %w", err)
	}
	return cookies, nil
}

// ImportNetscape adds the cookies from a Netscape cookies.txt stream to the jar.
// It returns the number of stored cookies.
func (j *Jar) ImportNetscape(r io.Reader) (int, error) {
	cookies, err := ParseNetscape(r)
	if err != nil {
		return 0, err
	}
	stored := 0
	for _, c := range cookies {
		if j.Add(c) {
			stored++
		}
	}
	return stored, nil
}

// ImportNetscape adds the cookies and persists the jar.
func (fj *FileJar) ImportNetscape(r io.Reader) (int, error) {
	n, err := fj.jar.ImportNetscape(r)
	if err != nil {
		return n, err
	}
	return fj.persist(n)
}
