package conversation

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when an operation would overlap a live stream.
var ErrConflict = errors.New("a stream is already in progress")

// ConflictError names the rejected operation and the chat whose stream holds
// the slot.
type ConflictError struct {
	Op     string
	ChatID string
}

func (e *ConflictError) Error() string {
	if e.ChatID == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v for chat %s", e.Op, ErrConflict, e.ChatID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
