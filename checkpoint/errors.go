package checkpoint

import (
	"errors"
	"fmt"
)

// Error kinds a caller can test for with errors.Is.
var (
	// ErrIO means the marker or a payload could not be read or written.
	ErrIO = errors.New("checkpoint I/O failure")

	// ErrFormat means the marker or the clock scalars could not be parsed.
	ErrFormat = errors.New("malformed checkpoint")

	// ErrRandomState means the generator state could not be restored.
	ErrRandomState = errors.New("random state restore failure")
)

// Error describes a failed checkpoint operation.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("checkpoint: %s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func ioError(op, path string, err error) error {
	return &Error{Op: op, Path: path, Kind: ErrIO, Err: err}
}

func formatError(op, path string, err error) error {
	return &Error{Op: op, Path: path, Kind: ErrFormat, Err: err}
}
