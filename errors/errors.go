// Package errors provides error types and utilities for the job queue.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClaimed  = errors.New("job already claimed")
	ErrEmptyJobType    = errors.New("job type cannot be empty")
	ErrUnknownJobType  = errors.New("unknown job type")
	ErrNilHandler      = errors.New("handler cannot be nil")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidAttempts = errors.New("invalid attempts")
	ErrTimeout         = errors.New("operation timed out")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// StoreError represents job store errors
type StoreError struct {
	Op    string // operation being performed
	JobID string // job id (if applicable)
	Err   error  // underlying error
}

func (e *StoreError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("store %s on job %s: %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// HandlerError represents a failed handler attempt
type HandlerError struct {
	Type  string // job type
	JobID string // job id
	Err   error  // underlying error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for job %s: %v", e.Type, e.JobID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// SerializationError represents encoding/decoding errors
type SerializationError struct {
	Format string // serialization format
	Err    error  // underlying error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization (%s): %v", e.Format, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ConnectionError means the coordination store could not be reached
type ConnectionError struct {
	URI string // connection URI (may be redacted)
	Err error  // underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Temporary() bool {
	if t, ok := e.Err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return true
}

func (e *ConnectionError) Timeout() bool {
	if t, ok := e.Err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}

// OrphanError is returned when a queued id has no backing record. By the
// time it is returned the id has already been moved to the failed set.
type OrphanError struct {
	JobID string
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("job %s has no record", e.JobID)
}

// Helper functions for creating errors

// NewStoreError creates a new store error
func NewStoreError(op, jobID string, err error) error {
	return &StoreError{Op: op, JobID: jobID, Err: err}
}

// NewHandlerError creates a new handler error
func NewHandlerError(jobType, jobID string, err error) error {
	return &HandlerError{Type: jobType, JobID: jobID, Err: err}
}

// NewSerializationError creates a new serialization error
func NewSerializationError(format string, err error) error {
	return &SerializationError{Format: format, Err: err}
}

// NewConnectionError creates a new connection error
func NewConnectionError(uri string, err error) error {
	return &ConnectionError{URI: uri, Err: err}
}

// IsUnavailable reports whether err means the coordination store is unreachable
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectionError
	return errors.As(err, &connErr) || errors.Is(err, ErrNotConnected)
}

// IsOrphan reports whether err is an OrphanError
func IsOrphan(err error) bool {
	var orphan *OrphanError
	return errors.As(err, &orphan)
}

// IsTemporary checks if an error is temporary and retryable
func IsTemporary(err error) bool {
	if t, ok := err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return errors.Is(err, ErrTimeout) || IsUnavailable(err)
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return errors.Is(err, ErrTimeout)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error with the given text
func New(text string) error { return errors.New(text) }
