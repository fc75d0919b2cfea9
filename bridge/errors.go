package bridge

import (
	"errors"
	"fmt"
)

// ErrUnknownOp is returned by hosts for operations they do not implement.
var ErrUnknownOp = errors.New("unknown operation")

// HostError reports a failed host call. It is never retried.
type HostError struct {
	Op  string
	Err error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host call %s: %v", e.Op, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// hostError wraps err as a HostError for op unless it already is one.
func hostError(op string, err error) error {
	var he *HostError
	if errors.As(err, &he) {
		return err
	}
	return &HostError{Op: op, Err: err}
}
