package mocknet

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
)

// Run drives fn once per party of an n-party job on a fresh Net, each call on
// its own goroutine. The first error cancels the context of the others and is
// returned.
func Run(ctx context.Context, parties int, fn func(ctx context.Context, self cbmpc.RoleID, t cbmpc.Transport) error) error {
	eps := New().Mesh(parties)
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range eps {
		g.Go(func() error { return fn(gctx, cbmpc.RoleID(i), ep) })
	}
	return g.Wait()
}

// Run2P drives fn for both roles of a two-party job on a fresh Net.
func Run2P(ctx context.Context, fn func(ctx context.Context, role cbmpc.Role, t cbmpc.Transport) error) error {
	n := New()
	p1 := n.Ep2P(cbmpc.RoleID(cbmpc.RoleP1), cbmpc.RoleID(cbmpc.RoleP2))
	p2 := n.Ep2P(cbmpc.RoleID(cbmpc.RoleP2), cbmpc.RoleID(cbmpc.RoleP1))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fn(gctx, cbmpc.RoleP1, p1) })
	g.Go(func() error { return fn(gctx, cbmpc.RoleP2, p2) })
	return g.Wait()
}
