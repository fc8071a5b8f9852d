package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record is not in storage
	ErrNotFound = errors.New("record not found")

	// ErrStoreClosed is returned when attempting to use a closed storage instance
	ErrStoreClosed = errors.New("storage is closed")

	// ErrNilRecord is returned when attempting to store a nil record
	ErrNilRecord = errors.New("record is nil")
)
