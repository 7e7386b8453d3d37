package shm

import (
	"sync/atomic"
	"unsafe"
)

// Word addresses a 32-bit cell of a mapped region. Offsets handed out by
// pkg/shm are multiples of 4 from a page aligned base, so every Word is aligned.
type Word struct {
	p *int32
}

// WordAt returns the Word at byte offset off of mem. The caller checks bounds.
func WordAt(mem []byte, off int) Word {
	return Word{p: (*int32)(unsafe.Pointer(&mem[off]))}
}

// Load is an acquire load visible across processes sharing the mapping.
func (w Word) Load() int32 {
	return atomic.LoadInt32(w.p)
}

// Store is a release store visible across processes sharing the mapping.
func (w Word) Store(v int32) {
	atomic.StoreInt32(w.p, v)
}

// LoadPlain reads the cell with an ordinary load.
func (w Word) LoadPlain() int32 {
	return *w.p
}

// StorePlain writes the cell with an ordinary store.
func (w Word) StorePlain(v int32) {
	*w.p = v
}

// Aligned reports whether mem starts on a 4 byte boundary.
func Aligned(mem []byte) bool {
	return len(mem) == 0 || uintptr(unsafe.Pointer(&mem[0]))%4 == 0
}
