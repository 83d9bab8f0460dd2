package collection

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("uniqueness constraint violated")
	ErrCorruption      = errors.New("corruption")
	ErrActiveUndoStack = errors.New("cannot set revision while there is an existing undo stack")
	ErrIndexNotFound   = errors.New("index not found")
	ErrInvalidOptions  = errors.New("invalid options")

	// ErrFrameCommitted is returned by a session whose frame was committed
	// while it was still open.
	ErrFrameCommitted = errors.New("session frame already committed")
)
