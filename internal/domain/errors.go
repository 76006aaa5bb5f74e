package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no job matches the given id.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a guarded update finds the job in a
	// different status than expected.
	ErrConflict = errors.New("job status precondition failed")

	// ErrInvalidTransition is returned for status changes outside the
	// transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus is returned when a status string cannot be parsed.
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrInvalidJobID is returned for ids that cannot have been generated
	// by the store.
	ErrInvalidJobID = errors.New("invalid job id")
)

// StoreError wraps persistence failures.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err as a StoreError for operation op.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// BrokerError wraps publish, consume and connection failures.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError wraps err as a BrokerError for operation op.
func NewBrokerError(op string, err error) error {
	return &BrokerError{Op: op, Err: err}
}

// UpstreamError is returned when the inference endpoint fails or answers
// with a non-success status. StatusCode is zero for transport failures.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err wraps a StoreError.
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}

// IsUpstreamError reports whether err wraps an UpstreamError.
func IsUpstreamError(err error) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr)
}
