package service

import (
	"errors"
	"fmt"
)

var (
	ErrTurnCancelled   = errors.New("turn cancelled")
	ErrUnauthenticated = errors.New("authentication required")
	ErrEmptyInput      = errors.New("message content is empty")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidLogin    = errors.New("invalid credentials")
	ErrWeakPassword    = errors.New("password needs 8-64 characters from at least three of: digits, lower case, upper case, symbols")
)

// PersistenceError is a failed store call. It is reported to the client but
// never stops a turn.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UploadError is the failure of one attachment in a batch.
type UploadError struct {
	FileName string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.FileName, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
