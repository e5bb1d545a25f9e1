package retry

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// StatusError attaches an HTTP-style status code to an error so the
// classifier can reason about it.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// WithStatus wraps err with a status code. A nil err stays nil.
func WithStatus(code int, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Code: code, Err: err}
}

type statusCoder interface {
	StatusCode() int
}

var transientStatusCodes = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
}

var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.ECONNREFUSED,
}

var transientMessageFragments = []string{
	"network",
	"timeout",
	"connection",
}

// IsTransient is the default classifier. Anything it does not recognise is
// treated as permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// A status code is authoritative: a 404 that mentions "connection" is still permanent.
	var sc statusCoder
	if errors.As(err, &sc) {
		return transientStatusCodes[sc.StatusCode()]
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		for _, e := range transientErrnos {
			if errno == e {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range transientMessageFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
