package shm

import "unsafe"

func unsafeBytes(w []int32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&w[0])), len(w)*4)
}
