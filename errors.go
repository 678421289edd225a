package filealloc

import (
	"errors"
	"fmt"

	"github.com/hupe1980/filealloc/internal/backing"
)

var (
	// ErrCreateFailed indicates that the backing file could not be created
	// (permissions, disk space, missing directory). Non-fatal: the caller
	// sees an ordinary allocation failure.
	ErrCreateFailed = errors.New("backing file creation failed")

	// ErrMapFailed indicates that the backing file could not be mapped into
	// the address space. Non-fatal: the caller sees an ordinary allocation
	// failure.
	ErrMapFailed = errors.New("backing file mapping failed")

	// ErrDenied is returned when an interceptor vetoes an allocation.
	ErrDenied = errors.New("allocation denied")

	// ErrNotFound is returned by FileOf for addresses the allocator does
	// not manage.
	ErrNotFound = errors.New("address not managed by filealloc")

	// ErrInvalidLayout is returned for layouts with a negative size or an
	// unsupported alignment.
	ErrInvalidLayout = errors.New("invalid layout")

	// ErrLimitExceeded is returned when the configured mapped-memory budget
	// would be exceeded. It behaves exactly like an out-of-memory condition.
	ErrLimitExceeded = errors.New("mapped memory limit exceeded")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var ce *backing.CreateError
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	var me *backing.MapError
	if errors.As(err, &me) {
		return fmt.Errorf("%w: %w", ErrMapFailed, err)
	}

	return err
}
