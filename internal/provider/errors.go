package provider

import (
	"errors"
	"fmt"
)

// RemoteError marks a transient communication failure with a vendor. Callers
// leave the affected row untouched and retry on the next reconciliation tick.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError wraps a vendor communication failure.
func NewRemoteError(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}

// IsRemote reports whether the error chain contains a RemoteError.
func IsRemote(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}
