package cmem

import (
	"fmt"
	"sync"
	"unsafe"
)

// Allocator is the designated allocation path for memory whose ownership
// crosses the boundary. The native engine uses the C heap; the software
// engine uses Heap.
type Allocator interface {
	Alloc(n int) unsafe.Pointer
	Free(p unsafe.Pointer)
}

// Heap is a Go-backed Allocator that tracks every live allocation. Freeing a
// pointer it did not hand out, or freeing one twice, panics.
type Heap struct {
	mu     sync.Mutex
	live   map[unsafe.Pointer][]byte
	allocs int
	frees  int
}

// NewHeap returns an empty Heap.
func NewHeap() *Heap {
	return &Heap{live: make(map[unsafe.Pointer][]byte)}
}

// Alloc returns n zeroed bytes, or nil when n is not positive.
func (h *Heap) Alloc(n int) unsafe.Pointer {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	p := unsafe.Pointer(&buf[0])
	h.mu.Lock()
	h.live[p] = buf
	h.allocs++
	h.mu.Unlock()
	return p
}

// Free releases p. A nil pointer is ignored.
func (h *Heap) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[p]; !ok {
		panic(fmt.Errorf("%w: free of unknown or already released pointer %p", ErrContractViolation, p))
	}
	delete(h.live, p)
	h.frees++
}

// Live returns the number of allocations not yet freed.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Stats returns the cumulative allocation and free counts.
func (h *Heap) Stats() (allocs, frees int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocs, h.frees
}

func wipe(p unsafe.Pointer, n int) {
	if p == nil || n <= 0 {
		return
	}
	clear(unsafe.Slice((*byte)(p), n))
}

// Export copies b into freshly allocated boundary memory. Ownership of the
// result passes to the receiver of the Mem.
func Export(a Allocator, b []byte) (Mem, error) {
	if len(b) == 0 {
		return Mem{}, nil
	}
	size := checkedLen(len(b))
	p := a.Alloc(len(b))
	if p == nil {
		return Mem{}, ErrOutOfMemory
	}
	copy(unsafe.Slice((*byte)(p), len(b)), b)
	return Mem{Data: p, Size: size}, nil
}

// ExportSet copies bufs into freshly allocated boundary memory: one region
// for the lengths and one for the flattened bytes.
func ExportSet(a Allocator, bufs [][]byte) (Mems, error) {
	if len(bufs) == 0 {
		return Mems{}, nil
	}
	count := checkedLen(len(bufs))
	total := 0
	for _, b := range bufs {
		checkedLen(len(b))
		total += len(b)
	}
	checkedLen(total)

	sp := a.Alloc(len(bufs) * sizeofInt32)
	if sp == nil {
		return Mems{}, ErrOutOfMemory
	}
	var dp unsafe.Pointer
	if total > 0 {
		if dp = a.Alloc(total); dp == nil {
			a.Free(sp)
			return Mems{}, ErrOutOfMemory
		}
	}

	sizes := unsafe.Slice((*int32)(sp), count)
	var flat []byte
	if dp != nil {
		flat = unsafe.Slice((*byte)(dp), total)
	}
	offset := 0
	for i, b := range bufs {
		sizes[i] = int32(len(b))
		offset += copy(flat[offset:], b)
	}
	return Mems{Count: count, Data: dp, Sizes: sp}, nil
}

// Take copies the bytes behind m, wipes them and releases m through a.
func Take(a Allocator, m Mem) []byte {
	out := Copy(m)
	Release(a, m)
	return out
}

// TakeSet copies every buffer of m, wipes the region and releases both the
// region and the lengths array through a.
func TakeSet(a Allocator, m Mems) [][]byte {
	out := CopySet(m)
	ReleaseSet(a, m)
	return out
}

// Release wipes and frees m without reading it.
func Release(a Allocator, m Mem) {
	if m.Data == nil {
		return
	}
	wipe(m.Data, int(m.Size))
	a.Free(m.Data)
}

// ReleaseSet wipes and frees the region and lengths array of m.
func ReleaseSet(a Allocator, m Mems) {
	_, total := sizesOf(m)
	if m.Data != nil {
		wipe(m.Data, total)
		a.Free(m.Data)
	}
	if m.Sizes != nil {
		a.Free(m.Sizes)
	}
}
