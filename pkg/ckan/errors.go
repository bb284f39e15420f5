package ckan

import (
	"fmt"
)

var ErrAccessDenied = fmt.Errorf("catalog access denied")
var ErrNotFound = fmt.Errorf("catalog object not found")
var ErrActionFailed = fmt.Errorf("catalog action failed")
var ErrRequest = fmt.Errorf("request error")
var ErrBadResponse = fmt.Errorf("bad response")
var ErrInternal = fmt.Errorf("internal error")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func newActionError(target error, errorType, message, endpoint string) error {
	return &myError{
		msg:    fmt.Sprintf("%s - %s - %s", errorType, message, endpoint),
		target: target,
	}
}
