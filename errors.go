package bunstore

import "errors"

var (
	// ErrInvalidOp reports an op the batch planner cannot classify. The
	// whole batch fails before any statement reaches the backend.
	ErrInvalidOp = errors.New("bunstore: invalid operation")

	// ErrInvalidNamespace reports a namespace that violates the segment
	// rules (empty, contains ".", or uses the reserved wildcard).
	ErrInvalidNamespace = errors.New("bunstore: invalid namespace")

	// ErrInvalidKey reports an empty item key.
	ErrInvalidKey = errors.New("bunstore: invalid key")

	// ErrDecode reports a backend row that could not be decoded into an
	// item or namespace. It is fatal to the batch that read it.
	ErrDecode = errors.New("bunstore: decode failed")

	// ErrClosed reports use of a store after Close.
	ErrClosed = errors.New("bunstore: store is closed")
)
