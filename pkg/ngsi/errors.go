package ngsi

import (
	"fmt"
)

var ErrEntityStoreRejected = fmt.Errorf("entity store rejected update")
var ErrMissingID = fmt.Errorf("missing entity id")
var ErrBadPoint = fmt.Errorf("invalid point")
var ErrRequest = fmt.Errorf("request error")
var ErrBadResponse = fmt.Errorf("bad response")
var ErrInternal = fmt.Errorf("internal error")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

// NewEntityStoreRejectedError keeps the raw response body for diagnostics
func NewEntityStoreRejectedError(entityType string, body []byte) error {
	return &myError{
		msg:    fmt.Sprintf("%s update unsuccessful. context broker returned: %s", entityType, string(body)),
		target: ErrEntityStoreRejected,
	}
}
