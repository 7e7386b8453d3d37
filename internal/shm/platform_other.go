//go:build !linux

package shm

import (
	"context"
)

// MapRegion is not implemented on this platform.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is not implemented on this platform.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return ErrUnsupported
}

// UnlinkRegion is not implemented on this platform.
func UnlinkRegion(ctx context.Context, opts MapOptions) error {
	return ErrUnsupported
}
