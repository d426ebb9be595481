// Package softnative is a pure-Go MPC engine that speaks the same calling
// convention as libcbmpc: opaque references, integer status codes, boundary
// buffers from package cmem, and transport access only through the
// registry.Handle callbacks of a backend.Bridge.
//
// The protocols are honest-but-curious renditions over secp256k1. They are
// meant for development and testing of the session layer, not for custody of
// real keys.
package softnative

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
)

// CurveSecp256k1 is the OpenSSL NID of the only curve this engine supports.
const CurveSecp256k1 = 714

const (
	defaultPaillierBits = 2048
	minPaillierBits     = 1024
)

// Option configures an Engine.
type Option func(*Engine)

// WithPaillierBits sets the modulus size of the Paillier keys generated during
// DKG. Values below 1024 are raised to 1024.
func WithPaillierBits(bits int) Option {
	return func(e *Engine) {
		if bits < minPaillierBits {
			bits = minPaillierBits
		}
		e.paillierBits = bits
	}
}

// WithCallbacks replaces the transport callbacks. Tests use it to interpose
// on the trampolines.
func WithCallbacks(cb backend.Callbacks) Option {
	return func(e *Engine) { e.cb = cb }
}

// Engine implements backend.Engine in Go. Each Engine owns its registry and
// heap, so independent engines never share handles.
type Engine struct {
	reg          *registry.Registry
	heap         *cmem.Heap
	cb           backend.Callbacks
	paillierBits int

	mu   sync.Mutex
	objs map[unsafe.Pointer]any
}

// New returns an Engine with a fresh registry and heap and callbacks wired
// through a backend.Bridge.
func New(opts ...Option) *Engine {
	e := &Engine{
		reg:          registry.New(),
		heap:         cmem.NewHeap(),
		paillierBits: defaultPaillierBits,
		objs:         make(map[unsafe.Pointer]any),
	}
	e.cb = backend.NewBridge(e.reg, e.heap).Callbacks()
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Name() string                 { return "soft" }
func (e *Engine) Version() string              { return "softnative/secp256k1" }
func (e *Engine) Allocator() cmem.Allocator    { return e.heap }
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Heap exposes the engine's allocator with its accounting.
func (e *Engine) Heap() *cmem.Heap { return e.heap }

// Live returns the number of opaque references not yet freed.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.objs)
}

func (e *Engine) track(p unsafe.Pointer, v any) unsafe.Pointer {
	e.mu.Lock()
	e.objs[p] = v
	e.mu.Unlock()
	return p
}

// untrack removes p. Freeing an unknown or already freed reference is a
// caller bug and panics, as a double free would in native code.
func (e *Engine) untrack(p unsafe.Pointer) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.objs[p]
	if !ok {
		panic(fmt.Errorf("%w: free of unknown or released reference %p", cmem.ErrContractViolation, p))
	}
	delete(e.objs, p)
	return v
}

func lookup[T any](e *Engine, p unsafe.Pointer) (*T, bool) {
	if p == nil {
		return nil, false
	}
	e.mu.Lock()
	v, ok := e.objs[p]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	t, ok := v.(*T)
	return t, ok
}

// export moves b into engine-allocated boundary memory.
func (e *Engine) export(b []byte, out *cmem.Mem) backend.Status {
	m, err := cmem.Export(e.heap, b)
	if err != nil {
		return backend.StatusMemory
	}
	*out = m
	return backend.StatusOK
}

func (e *Engine) exportSet(bufs [][]byte, out *cmem.Mems) backend.Status {
	m, err := cmem.ExportSet(e.heap, bufs)
	if err != nil {
		return backend.StatusMemory
	}
	*out = m
	return backend.StatusOK
}

var _ backend.Engine = (*Engine)(nil)
