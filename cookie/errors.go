package cookie

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned for Set-Cookie values that do not start with a name=value pair.
var ErrMalformed = errors.New("malformed Set-Cookie header")

// ValidationError explains why a cookie cannot be stored.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return "invalid cookie: " + e.Reason
	}
	return fmt.Sprintf("invalid cookie %q: %s", e.Name, e.Reason)
}

// PersistError is returned when a cookie file cannot be read or written.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("cookie jar %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
