package queue

import "errors"

var (
	// ErrUnknownColumn is returned when a match or patch names a column the
	// queue table does not have.
	ErrUnknownColumn = errors.New("unknown queue column")
	// ErrEmptyMatch guards UpdateWhere and Delete against unfiltered writes.
	ErrEmptyMatch = errors.New("match fields required")
	// ErrAlreadyQueued is returned when a package already has a pending record
	// in the same batch.
	ErrAlreadyQueued = errors.New("package already queued")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
