package backend

import (
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/registry"
)

// Bridge implements the transport callbacks on top of a registry. It resolves
// the handle, invokes the Go transport and moves bytes across the boundary
// with the engine's allocator.
//
// An unknown handle is an engine bug and panics. Transport failures are
// reported as StatusNetwork and allocation failures as StatusMemory.
type Bridge struct {
	reg   *registry.Registry
	alloc cmem.Allocator
}

// NewBridge returns a Bridge over reg whose outputs are allocated with alloc.
func NewBridge(reg *registry.Registry, alloc cmem.Allocator) *Bridge {
	return &Bridge{reg: reg, alloc: alloc}
}

// Callbacks returns the callback table backed by b.
func (b *Bridge) Callbacks() Callbacks {
	return Callbacks{Send: b.Send, Receive: b.Receive, ReceiveAll: b.ReceiveAll}
}

// Send copies msg out of boundary memory and hands it to the transport. The
// transport may retain the copy.
func (b *Bridge) Send(h registry.Handle, receiver int32, msg cmem.Mem) Status {
	t := b.reg.MustResolve(h)
	if err := t.Send(receiver, cmem.Copy(msg)); err != nil {
		return StatusNetwork
	}
	return StatusOK
}

// Receive reads one message from sender and exports it into out. out is
// reset to the empty buffer on failure.
func (b *Bridge) Receive(h registry.Handle, sender int32, out *cmem.Mem) Status {
	if out == nil {
		return StatusParam
	}
	*out = cmem.Mem{}
	t := b.reg.MustResolve(h)
	msg, err := t.Receive(sender)
	if err != nil {
		return StatusNetwork
	}
	m, err := cmem.Export(b.alloc, msg)
	if err != nil {
		return StatusMemory
	}
	*out = m
	return StatusOK
}

// ReceiveAll reads one message from each sender and exports them into out in
// sender order. It is all-or-nothing: if the transport fails, or returns a
// different number of messages than requested, nothing is exported.
func (b *Bridge) ReceiveAll(h registry.Handle, senders []int32, out *cmem.Mems) Status {
	if out == nil {
		return StatusParam
	}
	*out = cmem.Mems{}
	t := b.reg.MustResolve(h)
	if len(senders) == 0 {
		return StatusOK
	}
	// senders may live in engine memory; the transport gets its own copy.
	msgs, err := t.ReceiveAll(append([]int32(nil), senders...))
	if err != nil || len(msgs) != len(senders) {
		return StatusNetwork
	}
	set, err := cmem.ExportSet(b.alloc, msgs)
	if err != nil {
		return StatusMemory
	}
	*out = set
	return StatusOK
}
