// Package shm provides the shared region used by the bounded buffer: a named,
// fixed-size byte region mapped by a producer and a consumer process, and the
// Layout that turns it into a header of int32 fields followed by int32 ring
// slots.
//
// Both sides compute offsets the same way: header field i lives at byte 4*i,
// ring slot j at byte 4*(headerFields+j).
//
// Example usage:
//
//	region, err := shm.Create(ctx, shm.CreateOptions{Name: "bbuf_shm", Size: 4096})
//	// ...
//	layout, err := region.Layout(5)
//	_ = layout.WriteHeaderField(0, 5)
//	_ = layout.WriteSlot(0, 1234)
//
// The peer calls shm.Attach with the same name and retires the region with
// Region.Remove once it is done.
package shm
