package shm

import "unsafe"

func heapWords(r *Region) []int32 {
	mem := r.Bytes()
	return unsafe.Slice((*int32)(unsafe.Pointer(&mem[0])), len(mem)/wordSize)
}
