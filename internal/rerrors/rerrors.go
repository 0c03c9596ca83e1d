// Package rerrors defines the sentinel errors returned synchronously
// by the command API for the first three error kinds in the renderer's
// error model: invalid argument, unknown entity, and precondition
// violation. Asynchronous failures never flow through this package —
// they are reported as Events instead (see internal/event).
package rerrors

import "errors"

var (
	// ErrInvalidArgument is wrapped by errors rejecting an out-of-range
	// or otherwise malformed argument (OB size outside [1, 4096],
	// zero-sized readPixels rect). A framerate <= 0 is not rejected.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownEntity is wrapped by errors referring to a display,
	// scene, or buffer handle that does not exist.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrPrecondition is wrapped by errors describing an operation
	// attempted in the wrong state (e.g. starting the render thread
	// after doOneLoop was already called directly).
	ErrPrecondition = errors.New("precondition violation")
)
