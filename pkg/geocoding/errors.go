package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cenkalti/backoff/v4"
)

var ErrTimeout = fmt.Errorf("geocoder timed out")
var ErrQuotaExceeded = fmt.Errorf("geocoder quota exceeded")
var ErrServiceError = fmt.Errorf("geocoder service error")
var ErrNoResult = fmt.Errorf("no address found")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func NewQuotaExceededError(provider, reason string) error {
	return &myError{
		msg:    fmt.Sprintf("%s: quota exceeded (%s)", provider, reason),
		target: ErrQuotaExceeded,
	}
}

func NewServiceError(provider, reason string) error {
	return &myError{
		msg:    fmt.Sprintf("%s: %s", provider, reason),
		target: ErrServiceError,
	}
}

// NewDeniedError marks a provider that will keep refusing requests, e.g. for a
// missing or invalid key. Retrying it is pointless.
func NewDeniedError(provider, reason string) error {
	return backoff.Permanent(&myError{
		msg:    fmt.Sprintf("%s: request denied (%s)", provider, reason),
		target: ErrServiceError,
	})
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

// classify maps a transport failure to a timeout or a service error
func classify(provider string, err error) error {
	var netErr net.Error

	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &myError{
			msg:    fmt.Sprintf("%s: %s", provider, err.Error()),
			target: ErrTimeout,
		}
	}

	return NewServiceError(provider, err.Error())
}
