package mocknet

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
)

// Faults lists the misbehaviour of a Faulty transport. The zero value
// forwards everything unchanged. Only the first matching send rewrite
// applies.
type Faults struct {
	// FailAfterSends makes every send after the first n fail. Zero disables it.
	FailAfterSends int
	// FailAfterReceives does the same for receives, counting each sender of a
	// ReceiveAll.
	FailAfterReceives int
	// DropSends reports success without delivering.
	DropSends bool
	// SendEmpty replaces every payload with an empty one.
	SendEmpty bool
	// Garbage replaces every payload byte with 0xFF.
	Garbage bool
	// ReplayFirst sends the first payload again in place of later ones.
	ReplayFirst bool
	// Corrupt flips the bits of the first byte.
	Corrupt bool
	// Truncate sends only the first half of the payload.
	Truncate bool
}

// Faulty wraps a Transport and misbehaves as configured. It is used to check
// that a protocol aborts cleanly when a peer deviates.
type Faulty struct {
	inner  cbmpc.Transport
	faults Faults

	mu       sync.Mutex
	sends    int
	receives int
	first    []byte
}

// NewFaulty returns inner wrapped with faults.
func NewFaulty(inner cbmpc.Transport, faults Faults) *Faulty {
	return &Faulty{inner: inner, faults: faults}
}

func (f *Faulty) Send(ctx context.Context, to cbmpc.RoleID, msg []byte) error {
	f.mu.Lock()
	f.sends++
	n := f.sends
	if f.faults.ReplayFirst && f.first == nil {
		f.first = append([]byte{}, msg...)
	}
	first := f.first
	f.mu.Unlock()

	if f.faults.FailAfterSends > 0 && n > f.faults.FailAfterSends {
		return fmt.Errorf("mocknet: faulty send %d after %d", n, f.faults.FailAfterSends)
	}
	if f.faults.DropSends {
		return nil
	}
	return f.inner.Send(ctx, to, f.rewrite(msg, first))
}

func (f *Faulty) rewrite(msg, first []byte) []byte {
	switch {
	case f.faults.SendEmpty:
		return []byte{}
	case f.faults.Garbage:
		out := make([]byte, len(msg))
		for i := range out {
			out[i] = 0xFF
		}
		return out
	case f.faults.ReplayFirst:
		return first
	case f.faults.Corrupt && len(msg) > 0:
		out := append([]byte{}, msg...)
		out[0] ^= 0xFF
		return out
	case f.faults.Truncate:
		return msg[:len(msg)/2]
	}
	return msg
}

func (f *Faulty) countReceives(k int) error {
	f.mu.Lock()
	f.receives += k
	n := f.receives
	f.mu.Unlock()
	if f.faults.FailAfterReceives > 0 && n > f.faults.FailAfterReceives {
		return fmt.Errorf("mocknet: faulty receive %d after %d", n, f.faults.FailAfterReceives)
	}
	return nil
}

func (f *Faulty) Receive(ctx context.Context, from cbmpc.RoleID) ([]byte, error) {
	if err := f.countReceives(1); err != nil {
		return nil, err
	}
	return f.inner.Receive(ctx, from)
}

func (f *Faulty) ReceiveAll(ctx context.Context, from []cbmpc.RoleID) ([][]byte, error) {
	if err := f.countReceives(len(from)); err != nil {
		return nil, err
	}
	return f.inner.ReceiveAll(ctx, from)
}

var _ cbmpc.Transport = (*Faulty)(nil)

// RunFaulty is Run with the transport of party bad wrapped in faults.
func RunFaulty(ctx context.Context, parties int, bad cbmpc.RoleID, faults Faults, fn func(ctx context.Context, self cbmpc.RoleID, t cbmpc.Transport) error) error {
	eps := New().Mesh(parties)
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range eps {
		var t cbmpc.Transport = ep
		if cbmpc.RoleID(i) == bad {
			t = NewFaulty(ep, faults)
		}
		g.Go(func() error { return fn(gctx, cbmpc.RoleID(i), t) })
	}
	return g.Wait()
}
