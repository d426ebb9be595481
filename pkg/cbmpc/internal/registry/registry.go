// Package registry maps opaque handles to transport implementations so that
// native code, which can only carry a pointer-sized value, can reach a Go
// transport from a callback.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownHandle reports a lookup or removal of a handle that is not
// registered: either the engine misused a handle or it was already released.
var ErrUnknownHandle = errors.New("registry: unknown transport handle")

// Handle is the opaque value handed to the native engine in place of a Go
// pointer. The zero Handle is never issued.
type Handle uintptr

// Transport is the capability the engine needs from a caller: deliver bytes
// to one peer, read the next message from one peer, and read one message
// from each of several peers. ReceiveAll returns results aligned with
// senders and fails as a whole if any sender fails.
type Transport interface {
	Send(receiver int32, msg []byte) error
	Receive(sender int32) ([]byte, error)
	ReceiveAll(senders []int32) ([][]byte, error)
}

// Registry is a handle table guarded by a single mutex. The lock covers map
// operations only; transports are invoked after it is released.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]Transport
}

// New returns an empty registry. Tests construct their own; the native engine
// uses Process.
func New() *Registry {
	return &Registry{next: 1, entries: make(map[Handle]Transport)}
}

var (
	processOnce sync.Once
	process     *Registry
)

// Process returns the registry shared by everything in the process that
// needs a fixed, closure-free callback path, such as the cgo trampolines.
func Process() *Registry {
	processOnce.Do(func() { process = New() })
	return process
}

// Register stores t under a freshly minted handle. Handles are never reused
// within a registry.
func (r *Registry) Register(t Transport) Handle {
	if t == nil {
		panic("registry: nil transport")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.entries[h] = t
	return h
}

// Resolve returns the transport registered under h.
func (r *Registry) Resolve(h Handle) (Transport, error) {
	r.mu.Lock()
	t, ok := r.entries[h]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return t, nil
}

// MustResolve is Resolve for callers that cannot recover from a bad handle.
// It panics when h is not registered.
func (r *Registry) MustResolve(h Handle) Transport {
	t, err := r.Resolve(h)
	if err != nil {
		panic(err)
	}
	return t
}

// Unregister removes h. It is the only way a handle is released.
func (r *Registry) Unregister(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(r.entries, h)
	return nil
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
