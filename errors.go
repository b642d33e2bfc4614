package assemblefs

import (
	"errors"
	"fmt"
)

// Argument and pipeline errors
var (
	ErrInvalidGlob          = errors.New("expected a glob string or array of glob strings")
	ErrMissingDest          = errors.New("expected dest to be a string or function")
	ErrMissingFile          = errors.New("expected a file")
	ErrHandlerNotRegistered = errors.New("middleware handler is not registered")
	ErrInvalidDest          = errors.New("expected dest to resolve to a string")
	ErrInvalidBase          = errors.New("expected base to resolve to a string")
	ErrNoHost               = errors.New("expected a host")
	ErrNoEngine             = errors.New("expected a file system engine")
	ErrNoCollection         = errors.New("collection does not exist")
)

// ArgumentError is returned synchronously when a caller passes arguments
// no pipeline could run with.
type ArgumentError struct {
	Op  string
	Arg string
	Err error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %v", e.Op, e.Arg, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// HookError records a failure raised while dispatching a lifecycle hook for
// a file.
type HookError struct {
	Hook string
	Path string
	Err  error
}

func (e *HookError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Hook, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Hook, e.Path, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// notRegisteredError names the dispatch point that is missing.
type notRegisteredError struct {
	name string
}

func (e *notRegisteredError) Error() string {
	return fmt.Sprintf("middleware handler %q is not registered", e.name)
}

func (e *notRegisteredError) Is(target error) bool {
	return target == ErrHandlerNotRegistered
}

// IsArgumentError reports whether err was caused by invalid arguments.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsHookError reports whether err was raised by a lifecycle hook.
func IsHookError(err error) bool {
	var he *HookError
	return errors.As(err, &he)
}
