// Package shm contains the platform helpers behind pkg/shm: mapping a named
// region into the process, unlinking it, and word-sized access to its bytes.
package shm

import (
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// DefaultDir is where named regions live, the tmpfs behind shm_open(3).
const DefaultDir = "/dev/shm"

// ErrUnsupported is returned on platforms without a MapRegion implementation.
var ErrUnsupported = errors.New("shared memory regions are not supported on this platform")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
	fd   int
	key  string
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name string
	// Dir overrides DefaultDir, mostly for tests.
	Dir string
	// Size is required when creating. When attaching, zero means the current
	// size of the region.
	Size   int
	Create bool
}

// Path returns the file backing the region named in opts.
func (o MapOptions) Path() (string, error) {
	name := strings.TrimPrefix(o.Name, "/")
	if name == "" || strings.ContainsRune(name, '/') {
		return "", errors.New("invalid region name " + o.Name)
	}
	dir := o.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name), nil
}

// mapped holds every live mapping of this process, keyed by path and a
// sequence number since one path may be mapped more than once.
var (
	mapped = cmap.New[*MappedRegion]()
	mapSeq atomic.Uint64
)

func register(r *MappedRegion) {
	r.key = r.Path + "#" + strconv.FormatUint(mapSeq.Add(1), 10)
	mapped.Set(r.key, r)
}

func unregister(r *MappedRegion) {
	mapped.Remove(r.key)
}

// Mapped returns the sorted paths of the regions currently mapped by this
// process.
func Mapped() []string {
	seen := make(map[string]struct{})
	for item := range mapped.IterBuffered() {
		seen[item.Val.Path] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// IsMapped reports whether path is currently mapped by this process.
func IsMapped(path string) bool {
	found := false
	mapped.IterCb(func(_ string, r *MappedRegion) {
		if r.Path == path {
			found = true
		}
	})
	return found
}
