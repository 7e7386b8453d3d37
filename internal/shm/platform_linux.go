//go:build linux

package shm

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
// A created region is truncated to opts.Size and zero filled.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := opts.Path()
	if err != nil {
		return nil, err
	}
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		if opts.Size <= 0 {
			return nil, fmt.Errorf("invalid region size %d", opts.Size)
		}
		if !canCreateOnDevShm(uint64(opts.Size), path) {
			return nil, fmt.Errorf("not enough space left on %s for %d bytes", DefaultDir, opts.Size)
		}
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	size := opts.Size
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fstat: %w", err)
		}
		if size == 0 {
			size = int(st.Size)
		}
		if size <= 0 || int64(size) > st.Size {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("region %s is %d bytes, want %d", path, st.Size, size)
		}
	}
	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	if opts.Create {
		clear(addr)
	}
	region := &MappedRegion{
		Addr: addr,
		Path: path,
		fd:   fd,
	}
	register(region)
	return region, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	unregister(region)
	err := unix.Munmap(region.Addr)
	region.Addr = nil
	if cerr := unix.Close(region.fd); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// UnlinkRegion removes the name of a region. Existing mappings stay valid.
func UnlinkRegion(ctx context.Context, opts MapOptions) error {
	path, err := opts.Path()
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}

// canCreateOnDevShm reports whether the tmpfs has size bytes free. Paths
// outside /dev/shm are not checked.
func canCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, DefaultDir+"/") {
		return true
	}
	stat, err := disk.Usage(DefaultDir)
	if err != nil {
		return true
	}
	return stat.Free >= size
}
