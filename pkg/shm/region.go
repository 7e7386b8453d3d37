package shm

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/srediag/shm-bbuf/internal/logger"
	internalshm "github.com/srediag/shm-bbuf/internal/shm"
)

const (
	// DefaultName is the region both binaries agree on when BBUF_SHM_NAME is unset.
	DefaultName = "bbuf_shm"
	// DefaultSize is the size the producer gives the region.
	DefaultSize = 4096
)

var regionLogger = logger.New("shm", nil)

// Region is a shared byte region of fixed size. A Region created with Create is
// owned by the caller; one returned by Attach belongs to the peer that created
// it, but either side may Remove it.
type Region struct {
	mu      sync.Mutex
	opts    internalshm.MapOptions
	mapped  *internalshm.MappedRegion
	mem     []byte
	owner   bool
	closed  bool
	removed bool
}

// CreateOptions defines how the producer creates a region.
type CreateOptions struct {
	// Name identifies the region for both processes.
	Name string
	// Dir overrides /dev/shm.
	Dir string
	// Size is the total size in bytes.
	Size int
}

// AttachOptions defines how the consumer attaches to a region.
type AttachOptions struct {
	Name string
	Dir  string
	// Size of the mapping; zero maps the whole region.
	Size int
}

// Create creates (or reuses and truncates) the named region, maps it and zero
// fills it. Any failure wraps ErrResourceCreation.
func Create(ctx context.Context, opts CreateOptions) (*Region, error) {
	if opts.Size <= 0 || opts.Size%wordSize != 0 {
		return nil, fmt.Errorf("%w: size %d is not a positive multiple of %d", ErrResourceCreation, opts.Size, wordSize)
	}
	mopts := internalshm.MapOptions{Name: opts.Name, Dir: opts.Dir, Size: opts.Size, Create: true}
	mapped, err := internalshm.MapRegion(ctx, mopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceCreation, opts.Name, err)
	}
	regionLogger.Infof("created region %s, size %d", mapped.Path, len(mapped.Addr))
	return &Region{opts: mopts, mapped: mapped, mem: mapped.Addr, owner: true}, nil
}

// Attach maps an existing region. Any failure wraps ErrResourceAttach.
func Attach(ctx context.Context, opts AttachOptions) (*Region, error) {
	mopts := internalshm.MapOptions{Name: opts.Name, Dir: opts.Dir, Size: opts.Size}
	mapped, err := internalshm.MapRegion(ctx, mopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceAttach, opts.Name, err)
	}
	regionLogger.Infof("attached region %s, size %d", mapped.Path, len(mapped.Addr))
	return &Region{opts: mopts, mapped: mapped, mem: mapped.Addr}, nil
}

// NewHeapRegion returns a process-local region of size bytes, rounded down to
// a whole number of words. It stands in for a mapped region when both roles run
// in one process.
func NewHeapRegion(size int) *Region {
	words := make([]int32, size/wordSize)
	var mem []byte
	if len(words) > 0 {
		mem = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*wordSize)
	}
	return &Region{mem: mem, owner: true, opts: internalshm.MapOptions{Name: "heap"}}
}

// Name returns the name the region was created or attached with.
func (r *Region) Name() string {
	return r.opts.Name
}

// Size returns the size of the mapping in bytes.
func (r *Region) Size() int {
	return len(r.mem)
}

// Path returns the file backing the region, or "" for a heap region.
func (r *Region) Path() string {
	if r.mapped == nil {
		return ""
	}
	return r.mapped.Path
}

// Owner reports whether this side created the region.
func (r *Region) Owner() bool {
	return r.owner
}

// Bytes returns the raw mapping. It must not be used after Close.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Layout returns the header/ring view of the region.
func (r *Region) Layout(headerFields int) (*Layout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegionClosed
	}
	return NewLayout(r.mem, headerFields)
}

// Inspect runs fn while the region is guaranteed to stay mapped. It returns
// ErrRegionClosed without calling fn once the region is closed.
func (r *Region) Inspect(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegionClosed
	}
	return fn()
}

// Close unmaps the region, leaving its name in place.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Region) closeLocked() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.mapped == nil {
		return nil
	}
	if err := internalshm.UnmapRegion(context.Background(), r.mapped); err != nil {
		regionLogger.Warnf("unmap region %s failed: %v", r.mapped.Path, err)
		return err
	}
	return nil
}

// Remove unmaps the region and unlinks its name. Failures wrap ErrTeardown.
func (r *Region) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	unmapErr := r.closeLocked()
	if r.mapped == nil || r.removed {
		return nil
	}
	r.removed = true
	if err := internalshm.UnlinkRegion(context.Background(), r.opts); err != nil {
		regionLogger.Warnf("remove region %s failed: %v", r.mapped.Path, err)
		return fmt.Errorf("%w: %w", ErrTeardown, err)
	}
	regionLogger.Infof("removed region %s", r.mapped.Path)
	if unmapErr != nil {
		return fmt.Errorf("%w: %w", ErrTeardown, unmapErr)
	}
	return nil
}

// Mapped returns the paths of regions this process currently has mapped.
func Mapped() []string {
	return internalshm.Mapped()
}

// IsMapped reports whether this process currently maps path.
func IsMapped(path string) bool {
	return internalshm.IsMapped(path)
}
