package stream

import (
	"errors"
	"fmt"
)

// TransportError reports that the upstream failed before completion.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
