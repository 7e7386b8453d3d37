package shm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a non-numeric or out of range capacity or count.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrResourceCreation reports a region that could not be created or sized.
	ErrResourceCreation = errors.New("shared region creation failed")
	// ErrResourceAttach reports a region that could not be attached.
	ErrResourceAttach = errors.New("shared region attach failed")
	// ErrTeardown reports a region that could not be removed.
	ErrTeardown = errors.New("shared region teardown failed")
	// ErrRegionClosed is returned by accessors after Close or Remove.
	ErrRegionClosed = errors.New("shared region closed")
)

// BoundsError is returned for a header field or slot index outside the layout.
type BoundsError struct {
	Kind  string // "header" or "slot"
	Index int
	Limit int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.Kind, e.Index, e.Limit)
}
