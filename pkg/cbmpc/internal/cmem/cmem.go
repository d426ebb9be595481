package cmem

import (
	"errors"
	"fmt"
	"math"
	"unsafe"
)

var (
	// ErrContractViolation is the panic value (wrapped) raised when a boundary
	// buffer is malformed.
	ErrContractViolation = errors.New("cmem: boundary contract violation")

	// ErrOutOfMemory reports that the allocator could not provide boundary
	// memory.
	ErrOutOfMemory = errors.New("cmem: allocation failed")
)

const sizeofInt32 = int(unsafe.Sizeof(int32(0)))

// Mem is a single boundary buffer.
type Mem struct {
	Data unsafe.Pointer
	Size int32
}

// Mems is an ordered set of boundary buffers stored as one flattened region
// and Count int32 lengths.
type Mems struct {
	Count int32
	Data  unsafe.Pointer
	Sizes unsafe.Pointer
}

// Empty reports whether m encodes the empty buffer.
func (m Mem) Empty() bool { return m.Data == nil || m.Size == 0 }

func violation(format string, args ...any) {
	panic(fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...)))
}

func checkedLen(n int) int32 {
	if n > math.MaxInt32 {
		violation("buffer of %d bytes exceeds the boundary size limit", n)
	}
	return int32(n)
}

// View lends b to the boundary without copying. The empty slice maps to
// (nil, 0). b must stay reachable and unmodified while the engine uses it.
func View(b []byte) Mem {
	if len(b) == 0 {
		return Mem{}
	}
	return Mem{Data: unsafe.Pointer(unsafe.SliceData(b)), Size: checkedLen(len(b))}
}

// Copy returns a freshly allocated copy of the bytes behind m. A nil pointer
// yields an empty slice whatever the declared size.
func Copy(m Mem) []byte {
	if m.Size < 0 {
		violation("negative buffer size %d", m.Size)
	}
	if m.Data == nil || m.Size == 0 {
		return []byte{}
	}
	out := make([]byte, m.Size)
	copy(out, unsafe.Slice((*byte)(m.Data), m.Size))
	return out
}

// ViewSet flattens bufs into a single region plus a lengths array. The result
// references Go memory and must not be released.
func ViewSet(bufs [][]byte) Mems {
	if len(bufs) == 0 {
		return Mems{}
	}
	count := checkedLen(len(bufs))
	sizes := make([]int32, count)
	total := 0
	for i, b := range bufs {
		sizes[i] = checkedLen(len(b))
		total += len(b)
	}
	out := Mems{Count: count, Sizes: unsafe.Pointer(&sizes[0])}
	if total == 0 {
		return out
	}
	checkedLen(total)
	data := make([]byte, 0, total)
	for _, b := range bufs {
		data = append(data, b...)
	}
	out.Data = unsafe.Pointer(&data[0])
	return out
}

// sizesOf validates m and returns its lengths and their sum.
func sizesOf(m Mems) ([]int32, int) {
	if m.Count < 0 {
		violation("negative buffer count %d", m.Count)
	}
	if m.Count == 0 {
		return nil, 0
	}
	if m.Sizes == nil {
		violation("buffer count %d without a lengths array", m.Count)
	}
	sizes := unsafe.Slice((*int32)(m.Sizes), m.Count)
	total := 0
	for i, n := range sizes {
		if n < 0 {
			violation("negative length %d at index %d", n, i)
		}
		total += int(n)
	}
	if total > 0 && m.Data == nil {
		violation("lengths add up to %d bytes but the data region is nil", total)
	}
	return sizes, total
}

// CopySet rebuilds the individual buffers of m, slicing the flattened region
// with running offsets derived from the lengths. Element order and
// boundaries are preserved and no element aliases boundary memory.
func CopySet(m Mems) [][]byte {
	sizes, total := sizesOf(m)
	out := make([][]byte, len(sizes))
	if len(sizes) == 0 {
		return out
	}
	var flat []byte
	if total > 0 {
		flat = unsafe.Slice((*byte)(m.Data), total)
	}
	offset := 0
	for i, n := range sizes {
		end := offset + int(n)
		out[i] = append(make([]byte, 0, n), flat[offset:end]...)
		offset = end
	}
	if offset != total {
		violation("consumed %d of %d flattened bytes", offset, total)
	}
	return out
}

// Len returns the declared number of buffers in m.
func (m Mems) Len() int { return int(m.Count) }
