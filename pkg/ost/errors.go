package ost

import (
	"fmt"
)

var ErrMissingCredentials = fmt.Errorf("missing credentials")
var ErrInvalidCredentials = fmt.Errorf("invalid credentials")
var ErrEndpointNotFound = fmt.Errorf("endpoint not found")
var ErrSourceUnavailable = fmt.Errorf("source unavailable")

var ErrAgencyNotFound = fmt.Errorf("agency not found")
var ErrMissingArgument = fmt.Errorf("missing argument")
var ErrRequest = fmt.Errorf("request error")
var ErrBadResponse = fmt.Errorf("bad response")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func NewMissingCredentialsError(requestURL string) error {
	return &myError{
		msg:    "URL without API key: " + redactKey(requestURL),
		target: ErrMissingCredentials,
	}
}

func NewInvalidCredentialsError() error {
	return &myError{
		msg:    "invalid key",
		target: ErrInvalidCredentials,
	}
}

func NewEndpointNotFoundError(requestURL string) error {
	return &myError{
		msg:    "API not found: " + redactKey(requestURL),
		target: ErrEndpointNotFound,
	}
}

func NewSourceUnavailableError(reason string) error {
	return &myError{
		msg:    "OST is down (" + reason + ")",
		target: ErrSourceUnavailable,
	}
}
